package database

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/hatlonely/dbkit/rdb/query"
	"github.com/hatlonely/dbkit/schema"
	"github.com/pkg/errors"
)

// 搜索词的日期格式，按顺序尝试，最后一个为仅年份
var termLayouts = []string{time.DateOnly, time.DateTime, "2006"}

// Term 解析后的搜索词
type Term struct {
	Raw string

	IsInt   bool
	Int     int64
	IsFloat bool
	Float   float64

	IsTemporal bool
	YearOnly   bool
	Time       time.Time
}

// ParseTerm 依次尝试整数、浮点数；日期格式独立尝试，"2024" 同时是整数和年份
func ParseTerm(raw string) Term {
	term := Term{Raw: strings.TrimSpace(raw)}
	if term.Raw == "" {
		return term
	}

	if i, err := strconv.ParseInt(term.Raw, 10, 64); err == nil {
		term.IsInt, term.Int = true, i
	} else if f, err := strconv.ParseFloat(term.Raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		term.IsFloat, term.Float = true, f
	}

	for i, layout := range termLayouts {
		if len(term.Raw) != len(layout) {
			continue
		}
		t, err := time.Parse(layout, term.Raw)
		if err != nil {
			continue
		}
		term.IsTemporal, term.Time = true, t
		term.YearOnly = i == len(termLayouts)-1
		break
	}
	return term
}

// Numeric 数值解析结果，整数优先
func (t Term) Numeric() (any, bool) {
	switch {
	case t.IsInt:
		return t.Int, true
	case t.IsFloat:
		return t.Float, true
	default:
		return nil, false
	}
}

// BuildSearchQuery 每个适用的列一个子句，子句之间 OR，顺序与列顺序一致
// 只有时刻的时间列不参与年份和日期匹配
func BuildSearchQuery(columns []schema.TypedColumn, term Term) *query.BoolQuery {
	q := &query.BoolQuery{}
	if term.Raw == "" {
		return q
	}

	numeric, isNumeric := term.Numeric()
	for _, c := range columns {
		switch c.Category {
		case schema.CategoryText, schema.CategoryEnumerated:
			q.Should = append(q.Should, &query.MatchQuery{Field: c.Name, Value: term.Raw})
		case schema.CategoryNumeric:
			if isNumeric {
				q.Should = append(q.Should, &query.NumericQuery{Field: c.Name, Value: numeric})
			}
		case schema.CategoryTemporal:
			if !term.IsTemporal || c.TimeOfDay {
				continue
			}
			if term.YearOnly {
				q.Should = append(q.Should, &query.YearQuery{Field: c.Name, Year: term.Time.Year()})
			} else {
				q.Should = append(q.Should, &query.DateQuery{Field: c.Name, Date: term.Time})
			}
		}
	}
	return q
}

// Search 搜索词先去掉首尾空白，空白搜索词不匹配任何行（而不是匹配全部行）
// 没有可用的子句时不发出语句，直接返回空结果
func (s *SQL) Search(ctx context.Context, table string, term string) ([]rdb.Record, error) {
	tableID, err := ident.Validate(table)
	if err != nil {
		return nil, errors.WithMessage(err, "table")
	}

	parsed := ParseTerm(term)
	if parsed.Raw == "" {
		return nil, nil
	}

	columns, err := s.TypedColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil
	}

	q := BuildSearchQuery(columns, parsed)
	if q.Empty() {
		return nil, nil
	}

	sqlStr, args, err := searchSQL(s.dialect, tableID, q)
	if err != nil {
		return nil, err
	}

	records, err := s.query(ctx, sqlStr, args)
	if err != nil {
		return nil, s.storeError(ctx, "search", table, err)
	}
	return records, nil
}

func searchSQL(d dialect.Dialect, table ident.Identifier, q *query.BoolQuery) (string, []any, error) {
	where, args, err := q.ToSQL(d)
	if err != nil {
		return "", nil, errors.WithMessage(err, "build search query")
	}
	return "SELECT * FROM " + d.Quote(table) + " WHERE " + where, args, nil
}

// SearchAll 依次搜索每张表，单表失败记录告警后继续，只保留有结果的表
func (s *SQL) SearchAll(ctx context.Context, term string) (map[string][]rdb.Record, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}

	scanID := uuid.NewString()
	logger := s.logger.With("scan", scanID)
	logger.DebugContext(ctx, "search all tables", "term", term, "tables", len(tables))

	results := make(map[string][]rdb.Record)
	for _, table := range tables {
		records, err := s.Search(ctx, table, term)
		if err != nil {
			logger.WarnContext(ctx, "search table failed", "table", table, "error", err)
			continue
		}
		if len(records) > 0 {
			results[table] = records
		}
	}
	return results, nil
}
