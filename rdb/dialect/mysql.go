package dialect

import (
	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb"
	"github.com/pkg/errors"
)

// MySQL 错误码
const (
	mysqlErrRowIsReferenced  = 1451
	mysqlErrRowIsReferenced1 = 1217
	mysqlErrDupEntry         = 1062
)

type MySQL struct{}

func (MySQL) Name() string { return DriverMySQL }

func (MySQL) Quote(id ident.Identifier) string {
	return "`" + id.String() + "`"
}

func (MySQL) Rebind(query string) string { return query }

func (MySQL) ListTablesSQL() string {
	return "SELECT table_name FROM information_schema.tables " +
		"WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name"
}

func (MySQL) ColumnsSQL() string {
	return "SELECT column_name, data_type, column_type FROM information_schema.columns " +
		"WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position"
}

func (MySQL) PrimaryKeySQL() string {
	return "SELECT column_name FROM information_schema.key_column_usage " +
		"WHERE table_schema = DATABASE() AND table_name = ? AND constraint_name = 'PRIMARY' " +
		"ORDER BY ordinal_position"
}

func (MySQL) ForeignKeysSQL() string {
	return "SELECT column_name, referenced_table_name, referenced_column_name " +
		"FROM information_schema.key_column_usage " +
		"WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL " +
		"ORDER BY ordinal_position"
}

func (MySQL) MatchExpr(column string) string { return "LOWER(" + column + ") LIKE ?" }

func (MySQL) MatchArg(term string) any { return lowerLikeArg(term) }

func (MySQL) YearExpr(column string) string { return "YEAR(" + column + ")" }

func (MySQL) DateExpr(column string) string { return "DATE(" + column + ")" }

func (MySQL) NumericEqExpr(column string) string { return column + " = ?" }

func (MySQL) ClassifyError(err error) error {
	var e *mysql.MySQLError
	if !errors.As(err, &e) {
		return nil
	}
	switch e.Number {
	case mysqlErrRowIsReferenced, mysqlErrRowIsReferenced1:
		return rdb.ErrReferenced
	case mysqlErrDupEntry:
		return rdb.ErrDuplicateKey
	}
	return nil
}
