package query

import (
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/pkg/errors"
)

// YearQuery 日期列的年份等于 Year
type YearQuery struct {
	Field ident.Identifier `json:"field"`
	Year  int              `json:"year"`
}

func (q *YearQuery) Type() QueryType {
	return QueryTypeYear
}

func (q *YearQuery) ToSQL(d dialect.Dialect) (string, []any, error) {
	if q.Field.IsZero() {
		return "", nil, errors.New("year query has no field")
	}
	return d.YearExpr(d.Quote(q.Field)) + " = ?", []any{q.Year}, nil
}
