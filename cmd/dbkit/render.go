package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hatlonely/dbkit/rdb"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func renderRecords(w io.Writer, format string, columns []string, records []rdb.Record) error {
	if format == formatJSON {
		if records == nil {
			records = []rdb.Record{}
		}
		return renderJSON(w, records)
	}

	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, r := range records {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			row[i] = formatValue(r[c])
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(records))
	return nil
}

func renderRows(w io.Writer, format string, header []string, rows [][]string) error {
	if format == formatJSON {
		objects := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			object := make(map[string]string, len(header))
			for i, h := range header {
				object[h] = row[i]
			}
			objects = append(objects, object)
		}
		return renderJSON(w, objects)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = v
		}
		t.AppendRow(r)
	}
	t.Render()
	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatValue 零点的时间只显示日期
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.DateTime)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
