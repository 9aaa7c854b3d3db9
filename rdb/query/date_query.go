package query

import (
	"time"

	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/pkg/errors"
)

// DateQuery 日期列的日期部分等于 Date，绑定值为 YYYY-MM-DD
type DateQuery struct {
	Field ident.Identifier `json:"field"`
	Date  time.Time        `json:"date"`
}

func (q *DateQuery) Type() QueryType {
	return QueryTypeDate
}

func (q *DateQuery) ToSQL(d dialect.Dialect) (string, []any, error) {
	if q.Field.IsZero() {
		return "", nil, errors.New("date query has no field")
	}
	return d.DateExpr(d.Quote(q.Field)) + " = ?", []any{q.Date.Format(time.DateOnly)}, nil
}
