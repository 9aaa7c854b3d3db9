package query

import (
	"strings"

	"github.com/hatlonely/dbkit/rdb/dialect"
)

// BoolQuery 布尔查询
// Must 之间 AND，Should 之间 OR，MustNot 取反后 AND
type BoolQuery struct {
	Must    []Query `json:"must,omitempty"`
	Should  []Query `json:"should,omitempty"`
	MustNot []Query `json:"must_not,omitempty"`
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

// Empty 没有任何子句
func (q *BoolQuery) Empty() bool {
	return len(q.Must) == 0 && len(q.Should) == 0 && len(q.MustNot) == 0
}

func (q *BoolQuery) ToSQL(d dialect.Dialect) (string, []any, error) {
	var conditions []string
	var args []any

	if len(q.Must) > 0 {
		sql, queryArgs, err := join(d, q.Must, " AND ", "")
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, sql)
		args = append(args, queryArgs...)
	}

	if len(q.Should) > 0 {
		sql, queryArgs, err := join(d, q.Should, " OR ", "")
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, sql)
		args = append(args, queryArgs...)
	}

	if len(q.MustNot) > 0 {
		sql, queryArgs, err := join(d, q.MustNot, " AND ", "NOT ")
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, sql)
		args = append(args, queryArgs...)
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	if len(conditions) == 1 {
		return conditions[0], args, nil
	}
	for i := range conditions {
		conditions[i] = "(" + conditions[i] + ")"
	}

	return strings.Join(conditions, " AND "), args, nil
}

// join 子句按顺序拼接，参数顺序与子句顺序一致
func join(d dialect.Dialect, queries []Query, sep string, not string) (string, []any, error) {
	parts := make([]string, 0, len(queries))
	var args []any
	for _, query := range queries {
		sql, queryArgs, err := query.ToSQL(d)
		if err != nil {
			return "", nil, err
		}
		if not != "" {
			sql = not + "(" + sql + ")"
		}
		parts = append(parts, sql)
		args = append(args, queryArgs...)
	}
	return strings.Join(parts, sep), args, nil
}
