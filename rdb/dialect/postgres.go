package dialect

import (
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// PostgreSQL SQLSTATE
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

type Postgres struct{}

func (Postgres) Name() string { return DriverPostgres }

func (Postgres) Quote(id ident.Identifier) string {
	return `"` + id.String() + `"`
}

func (Postgres) Rebind(query string) string { return rebindDollar(query) }

func (Postgres) ListTablesSQL() string {
	return "SELECT table_name FROM information_schema.tables " +
		"WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name"
}

func (Postgres) ColumnsSQL() string {
	return "SELECT column_name, data_type, udt_name FROM information_schema.columns " +
		"WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position"
}

func (Postgres) PrimaryKeySQL() string {
	return "SELECT kcu.column_name FROM information_schema.table_constraints tc " +
		"JOIN information_schema.key_column_usage kcu " +
		"ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema " +
		"WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema() AND tc.table_name = ? " +
		"ORDER BY kcu.ordinal_position"
}

func (Postgres) ForeignKeysSQL() string {
	return "SELECT kcu.column_name, ccu.table_name, ccu.column_name FROM information_schema.table_constraints tc " +
		"JOIN information_schema.key_column_usage kcu " +
		"ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema " +
		"JOIN information_schema.constraint_column_usage ccu " +
		"ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema " +
		"WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema() AND tc.table_name = ? " +
		"ORDER BY kcu.ordinal_position"
}

func (Postgres) MatchExpr(column string) string { return "CAST(" + column + " AS TEXT) ILIKE ?" }

func (Postgres) MatchArg(term string) any { return "%" + term + "%" }

func (Postgres) YearExpr(column string) string { return "EXTRACT(YEAR FROM " + column + ")" }

func (Postgres) DateExpr(column string) string { return "CAST(" + column + " AS DATE)" }

// NumericEqExpr 参数类型按列推断，整数列会把 1.5 截断成 1，这里固定按 NUMERIC 比较
func (Postgres) NumericEqExpr(column string) string { return column + " = CAST(? AS NUMERIC)" }

func (Postgres) ClassifyError(err error) error {
	var e *pgconn.PgError
	if !errors.As(err, &e) {
		return nil
	}
	switch e.Code {
	case pgForeignKeyViolation:
		return rdb.ErrReferenced
	case pgUniqueViolation:
		return rdb.ErrDuplicateKey
	}
	return nil
}
