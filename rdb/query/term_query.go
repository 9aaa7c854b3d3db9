package query

import (
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/pkg/errors"
)

// TermQuery 精确匹配查询
type TermQuery struct {
	Field ident.Identifier `json:"field"`
	Value any              `json:"value"`
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) ToSQL(d dialect.Dialect) (string, []any, error) {
	if q.Field.IsZero() {
		return "", nil, errors.New("term query has no field")
	}
	return d.Quote(q.Field) + " = ?", []any{q.Value}, nil
}
