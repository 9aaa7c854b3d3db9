package query

import (
	"github.com/hatlonely/dbkit/rdb/dialect"
)

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool    QueryType = "bool"
	QueryTypeTerm    QueryType = "term"
	QueryTypeNumeric QueryType = "numeric"
	QueryTypeMatch   QueryType = "match"
	QueryTypeYear    QueryType = "year"
	QueryTypeDate    QueryType = "date"
)

// Query 查询节点接口
// 字段名都是校验过的标识符，值总是作为绑定参数返回
type Query interface {
	Type() QueryType
	ToSQL(d dialect.Dialect) (string, []any, error)
}
