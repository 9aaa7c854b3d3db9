package schema

import (
	"reflect"
	"strings"
	"time"

	"github.com/hatlonely/dbkit/ident"
	"github.com/pkg/errors"
)

// tableNamer 结构体实现 Table() 方法时用作表名
type tableNamer interface {
	Table() string
}

var timeType = reflect.TypeOf(time.Time{})

// FromStruct 从结构体构建表描述
// 支持的 tag 格式：
//   - `rdb:"column,pk,prefix=T,type=enum,values=A|B,ref=Table.column,optional"`
//   - `table:"table_name"` 写在任意字段上，指定表名
//
// 表名优先级：table tag > Table() 方法 > 结构体名
func FromStruct(v any) (*Table, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %T", v)
	}
	rt := rv.Type()

	tableName := tableNameOf(v, rt)

	var keys []string
	var prefix string
	var columns []Column
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("rdb")
		if tag == "-" {
			continue
		}

		column, isKey, keyPrefix, err := parseFieldTag(field, tag)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", field.Name)
		}
		if isKey {
			keys = append(keys, column.Name.String())
			if keyPrefix != "" {
				prefix = keyPrefix
			}
		}
		columns = append(columns, column)
	}

	var key Key
	var err error
	switch len(keys) {
	case 0:
		return nil, errors.Errorf("struct %s has no pk field", rt.Name())
	case 1:
		key, err = NewSingleKey(keys[0], prefix)
	default:
		if prefix != "" {
			return nil, errors.Errorf("struct %s: prefix is not supported on a composite key", rt.Name())
		}
		key, err = NewCompositeKey(keys...)
	}
	if err != nil {
		return nil, err
	}

	return NewTable(tableName, key, columns...)
}

func MustFromStruct(v any) *Table {
	t, err := FromStruct(v)
	if err != nil {
		panic(err)
	}
	return t
}

func tableNameOf(v any, rt reflect.Type) string {
	for i := 0; i < rt.NumField(); i++ {
		if name := rt.Field(i).Tag.Get("table"); name != "" {
			return name
		}
	}
	if n, ok := v.(tableNamer); ok {
		return n.Table()
	}
	return rt.Name()
}

func parseFieldTag(field reflect.StructField, tag string) (Column, bool, string, error) {
	name := field.Name
	kind := inferKind(field.Type)
	var isKey, optional bool
	var prefix string
	var values []string
	var ref string

	parts := strings.Split(tag, ",")
	if len(parts) > 0 && parts[0] != "" && !strings.Contains(parts[0], "=") {
		name = strings.TrimSpace(parts[0])
		parts = parts[1:]
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			switch strings.TrimSpace(k) {
			case "type":
				kind = kindOf(Category(strings.TrimSpace(v)))
				if kind == nil {
					return Column{}, false, "", errors.Errorf("unknown type %q", v)
				}
			case "prefix":
				prefix = strings.TrimSpace(v)
			case "values":
				values = strings.Split(v, "|")
			case "ref":
				ref = strings.TrimSpace(v)
			default:
				return Column{}, false, "", errors.Errorf("unknown tag option %q", k)
			}
			continue
		}
		switch part {
		case "pk", "primary":
			isKey = true
		case "optional":
			optional = true
		default:
			return Column{}, false, "", errors.Errorf("unknown tag option %q", part)
		}
	}

	switch kind.(type) {
	case Enum:
		kind = Enum{Values: values}
	case Ref:
		table, column, ok := strings.Cut(ref, ".")
		if !ok {
			return Column{}, false, "", errors.Errorf("ref %q must be Table.column", ref)
		}
		refTable, err := ident.Validate(table)
		if err != nil {
			return Column{}, false, "", err
		}
		refColumn, err := ident.Validate(column)
		if err != nil {
			return Column{}, false, "", err
		}
		kind = Ref{Table: refTable, Column: refColumn}
	}
	if ref != "" {
		if _, ok := kind.(Ref); !ok {
			return Column{}, false, "", errors.Errorf("ref is only valid with type=ref")
		}
	}
	if prefix != "" && !isKey {
		return Column{}, false, "", errors.Errorf("prefix is only valid on a pk field")
	}

	column, err := NewColumn(name, kind)
	if err != nil {
		return Column{}, false, "", err
	}
	column.Optional = optional || field.Type.Kind() == reflect.Ptr
	return column, isKey, prefix, nil
}

func kindOf(c Category) Kind {
	switch c {
	case CategoryText:
		return Text{}
	case CategoryNumeric:
		return Numeric{}
	case CategoryTemporal:
		return Temporal{}
	case CategoryEnumerated:
		return Enum{}
	case CategoryReference:
		return Ref{}
	}
	return nil
}

// inferKind 从 Go 类型推断列类型，无法推断的按文本处理
func inferKind(t reflect.Type) Kind {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return Temporal{}
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Numeric{}
	default:
		return Text{}
	}
}
