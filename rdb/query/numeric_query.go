package query

import (
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/pkg/errors"
)

// NumericQuery 数值列等于搜索词，比较方式由方言决定
type NumericQuery struct {
	Field ident.Identifier `json:"field"`
	Value any              `json:"value"`
}

func (q *NumericQuery) Type() QueryType {
	return QueryTypeNumeric
}

func (q *NumericQuery) ToSQL(d dialect.Dialect) (string, []any, error) {
	if q.Field.IsZero() {
		return "", nil, errors.New("numeric query has no field")
	}
	return d.NumericEqExpr(d.Quote(q.Field)), []any{q.Value}, nil
}
