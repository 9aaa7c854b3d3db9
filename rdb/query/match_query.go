package query

import (
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/pkg/errors"
)

// MatchQuery 大小写不敏感的子串匹配，通配符不转义
type MatchQuery struct {
	Field ident.Identifier `json:"field"`
	Value string           `json:"value"`
}

func (q *MatchQuery) Type() QueryType {
	return QueryTypeMatch
}

func (q *MatchQuery) ToSQL(d dialect.Dialect) (string, []any, error) {
	if q.Field.IsZero() {
		return "", nil, errors.New("match query has no field")
	}
	return d.MatchExpr(d.Quote(q.Field)), []any{d.MatchArg(q.Value)}, nil
}
