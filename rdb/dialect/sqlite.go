package dialect

import (
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLite struct{}

func (SQLite) Name() string { return DriverSQLite }

func (SQLite) Quote(id ident.Identifier) string {
	return `"` + id.String() + `"`
}

func (SQLite) Rebind(query string) string { return query }

func (SQLite) ListTablesSQL() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
}

// ColumnsSQL sqlite 只有声明类型，数据类型和完整类型都取 type
func (SQLite) ColumnsSQL() string {
	return "SELECT name, type, type FROM pragma_table_info(?) ORDER BY cid"
}

func (SQLite) PrimaryKeySQL() string {
	return "SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk"
}

func (SQLite) ForeignKeysSQL() string {
	return `SELECT "from", "table", COALESCE("to", '') FROM pragma_foreign_key_list(?) ORDER BY id, seq`
}

func (SQLite) MatchExpr(column string) string { return "LOWER(" + column + ") LIKE ?" }

func (SQLite) MatchArg(term string) any { return lowerLikeArg(term) }

func (SQLite) YearExpr(column string) string {
	return "CAST(strftime('%Y', " + column + ") AS INTEGER)"
}

func (SQLite) DateExpr(column string) string { return "date(" + column + ")" }

func (SQLite) NumericEqExpr(column string) string { return column + " = ?" }

func (SQLite) ClassifyError(err error) error {
	var e sqlite3.Error
	if !errors.As(err, &e) {
		return nil
	}
	switch e.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return rdb.ErrReferenced
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return rdb.ErrDuplicateKey
	}
	return nil
}
