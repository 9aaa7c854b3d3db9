package schema

import (
	"github.com/hatlonely/dbkit/ident"
	"github.com/pkg/errors"
)

type Options struct {
	// 启动时是否通过目录查询构建表描述，Tables 中的同名表覆盖查询结果
	Introspect bool           `cfg:"introspect" def:"false"`
	Tables     []TableOptions `cfg:"tables" validate:"dive"`
}

type TableOptions struct {
	Name    string          `cfg:"name" validate:"required"`
	Key     []string        `cfg:"key" validate:"required,min=1"`
	Prefix  string          `cfg:"prefix"`
	Columns []ColumnOptions `cfg:"columns" validate:"dive"`
}

type ColumnOptions struct {
	Name      string   `cfg:"name" validate:"required"`
	Type      Category `cfg:"type" validate:"required,oneof=text numeric temporal enum ref"`
	Values    []string `cfg:"values"`
	RefTable  string   `cfg:"refTable"`
	RefColumn string   `cfg:"refColumn"`
	Optional  bool     `cfg:"optional"`
}

func NewRegistryWithOptions(options *Options) (*Registry, error) {
	if options == nil {
		return NewRegistry()
	}
	tables := make([]*Table, 0, len(options.Tables))
	for i := range options.Tables {
		t, err := NewTableWithOptions(&options.Tables[i])
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return NewRegistry(tables...)
}

func NewTableWithOptions(options *TableOptions) (*Table, error) {
	if options == nil {
		return nil, errors.New("table options is nil")
	}

	var key Key
	var err error
	switch len(options.Key) {
	case 0:
		return nil, errors.Errorf("table %s has no primary key", options.Name)
	case 1:
		key, err = NewSingleKey(options.Key[0], options.Prefix)
	default:
		if options.Prefix != "" {
			return nil, errors.Errorf("table %s: prefix is not supported on a composite key", options.Name)
		}
		key, err = NewCompositeKey(options.Key...)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "table %s", options.Name)
	}

	columns := make([]Column, 0, len(options.Columns))
	for _, co := range options.Columns {
		kind, err := newKindWithOptions(&co)
		if err != nil {
			return nil, errors.WithMessagef(err, "table %s", options.Name)
		}
		c, err := NewColumn(co.Name, kind)
		if err != nil {
			return nil, errors.WithMessagef(err, "table %s", options.Name)
		}
		c.Optional = co.Optional
		columns = append(columns, c)
	}

	return NewTable(options.Name, key, columns...)
}

// newKindWithOptions 配置里的类型字符串只在这里转换成 Kind 变体
func newKindWithOptions(options *ColumnOptions) (Kind, error) {
	switch options.Type {
	case CategoryText:
		return Text{}, nil
	case CategoryNumeric:
		return Numeric{}, nil
	case CategoryTemporal:
		return Temporal{}, nil
	case CategoryEnumerated:
		return Enum{Values: options.Values}, nil
	case CategoryReference:
		refTable, err := ident.Validate(options.RefTable)
		if err != nil {
			return nil, errors.WithMessagef(err, "column %s refTable", options.Name)
		}
		refColumn, err := ident.Validate(options.RefColumn)
		if err != nil {
			return nil, errors.WithMessagef(err, "column %s refColumn", options.Name)
		}
		return Ref{Table: refTable, Column: refColumn}, nil
	default:
		return nil, errors.Errorf("column %s has unknown type %q", options.Name, options.Type)
	}
}
