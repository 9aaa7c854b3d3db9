package dialect

import (
	"strconv"
	"strings"

	"github.com/hatlonely/dbkit/ident"
	"github.com/pkg/errors"
)

// Dialect 不同数据库引擎的语句差异
// 目录查询返回的语句使用 ? 占位符，执行前统一经过 Rebind
type Dialect interface {
	Name() string
	// Quote 引用已校验的标识符，避免与保留字冲突（如 Match）
	Quote(id ident.Identifier) string
	// Rebind 把 ? 占位符改写成引擎的占位符格式
	Rebind(query string) string

	// ListTablesSQL 无参数，返回一列表名
	ListTablesSQL() string
	// ColumnsSQL 参数为表名，返回 列名、数据类型、完整列类型
	ColumnsSQL() string
	// PrimaryKeySQL 参数为表名，按主键顺序返回列名
	PrimaryKeySQL() string
	// ForeignKeysSQL 参数为表名，返回 列名、引用表、引用列
	ForeignKeysSQL() string

	// MatchExpr 大小写不敏感的子串匹配，参数由 MatchArg 生成
	MatchExpr(column string) string
	MatchArg(term string) any
	// YearExpr 提取年份，结果与整数比较
	YearExpr(column string) string
	// DateExpr 提取日期，结果与 YYYY-MM-DD 比较
	DateExpr(column string) string
	// NumericEqExpr 数值列与搜索词相等，参数可能是 int64 或 float64
	NumericEqExpr(column string) string

	// ClassifyError 把驱动错误归类，返回 rdb.ErrReferenced / rdb.ErrDuplicateKey，无法归类时返回 nil
	ClassifyError(err error) error
}

const (
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// New 按 database/sql 的驱动名返回方言
func New(driver string) (Dialect, error) {
	switch driver {
	case DriverMySQL:
		return MySQL{}, nil
	case DriverSQLite, "sqlite":
		return SQLite{}, nil
	case DriverPostgres, "postgres", "postgresql":
		return Postgres{}, nil
	default:
		return nil, errors.Errorf("unsupported driver: %s", driver)
	}
}

// rebindDollar 把 ? 改写成 $1 $2 ...，跳过单引号字符串中的 ?
func rebindDollar(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			sb.WriteByte(c)
		case c == '?' && !quoted:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func lowerLikeArg(term string) any {
	return "%" + strings.ToLower(term) + "%"
}
