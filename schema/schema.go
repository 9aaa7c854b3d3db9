package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/dbkit/ident"
	"github.com/pkg/errors"
)

var (
	ErrMissingKey    = errors.New("missing key column")
	ErrRequiredValue = errors.New("value is required")
	ErrInvalidValue  = errors.New("invalid value")
)

// Category 列的类型族
type Category string

const (
	CategoryText       Category = "text"
	CategoryNumeric    Category = "numeric"
	CategoryTemporal   Category = "temporal"
	CategoryEnumerated Category = "enum"
	CategoryReference  Category = "ref"
)

// Kind 列类型，封闭的变体集合：Text / Numeric / Temporal / Enum / Ref
// 每个变体只携带自己需要的字段
type Kind interface {
	Category() Category
	isKind()
}

type Text struct{}

type Numeric struct{}

type Temporal struct{}

// Enum 枚举列，Values 为合法取值
type Enum struct {
	Values []string
}

// Ref 外键列，指向 Table.Column
type Ref struct {
	Table  ident.Identifier
	Column ident.Identifier
}

func (Text) Category() Category     { return CategoryText }
func (Numeric) Category() Category  { return CategoryNumeric }
func (Temporal) Category() Category { return CategoryTemporal }
func (Enum) Category() Category     { return CategoryEnumerated }
func (Ref) Category() Category      { return CategoryReference }

func (Text) isKind()     {}
func (Numeric) isKind()  {}
func (Temporal) isKind() {}
func (Enum) isKind()     {}
func (Ref) isKind()      {}

// TypedColumn 列名和类型族，由目录查询得到
// TimeOfDay 标记 time 这类只有时刻的时间列
type TypedColumn struct {
	Name      ident.Identifier
	Category  Category
	TimeOfDay bool
}

// Column 列描述
type Column struct {
	Name     ident.Identifier
	Kind     Kind
	Optional bool
}

func NewColumn(name string, kind Kind) (Column, error) {
	id, err := ident.Validate(name)
	if err != nil {
		return Column{}, errors.WithMessage(err, "column name")
	}
	if kind == nil {
		return Column{}, errors.Errorf("column %s has no kind", name)
	}
	return Column{Name: id, Kind: kind}, nil
}

// Coerce 按列类型把用户输入转换成绑定参数
func (c Column) Coerce(input string) (any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		if c.Optional {
			return nil, nil
		}
		return nil, errors.Wrapf(ErrRequiredValue, "column %s", c.Name)
	}

	switch k := c.Kind.(type) {
	case Text:
		return input, nil
	case Numeric:
		if i, err := strconv.ParseInt(input, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "column %s expects a number, got %q", c.Name, input)
		}
		return f, nil
	case Temporal:
		for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05"} {
			if _, err := time.Parse(layout, input); err == nil {
				return input, nil
			}
		}
		return nil, errors.Wrapf(ErrInvalidValue, "column %s expects YYYY-MM-DD, got %q", c.Name, input)
	case Enum:
		if len(k.Values) == 0 {
			return input, nil
		}
		for _, v := range k.Values {
			if strings.EqualFold(v, input) {
				return v, nil
			}
		}
		return nil, errors.Wrapf(ErrInvalidValue, "column %s must be one of %s, got %q",
			c.Name, strings.Join(k.Values, ", "), input)
	case Ref:
		return input, nil
	default:
		return nil, errors.Errorf("column %s has unsupported kind %T", c.Name, c.Kind)
	}
}

// Key 主键定义：SingleKey 或 CompositeKey
type Key interface {
	Columns() []ident.Identifier
	isKey()
}

// SingleKey 单列主键，Prefix 非空时支持自动生成 ID
type SingleKey struct {
	Column ident.Identifier
	Prefix string
}

// CompositeKey 复合主键，不支持自动生成
type CompositeKey struct {
	Cols []ident.Identifier
}

func NewSingleKey(column string, prefix string) (*SingleKey, error) {
	id, err := ident.Validate(column)
	if err != nil {
		return nil, errors.WithMessage(err, "key column")
	}
	if prefix != "" {
		if _, err := ident.Validate(prefix); err != nil {
			return nil, errors.WithMessage(err, "key prefix")
		}
	}
	return &SingleKey{Column: id, Prefix: prefix}, nil
}

func NewCompositeKey(columns ...string) (*CompositeKey, error) {
	if len(columns) < 2 {
		return nil, errors.Errorf("composite key needs at least two columns, got %d", len(columns))
	}
	ids, err := ident.ValidateAll(columns)
	if err != nil {
		return nil, errors.WithMessage(err, "key column")
	}
	return &CompositeKey{Cols: ids}, nil
}

func (k *SingleKey) Columns() []ident.Identifier    { return []ident.Identifier{k.Column} }
func (k *CompositeKey) Columns() []ident.Identifier { return k.Cols }

func (*SingleKey) isKey()    {}
func (*CompositeKey) isKey() {}

// Table 表描述，启动时构建，之后只读
type Table struct {
	Name    ident.Identifier
	Key     Key
	Columns []Column
}

func NewTable(name string, key Key, columns ...Column) (*Table, error) {
	id, err := ident.Validate(name)
	if err != nil {
		return nil, errors.WithMessage(err, "table name")
	}
	if key == nil {
		return nil, errors.Errorf("table %s has no primary key", name)
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c.Name.String()] {
			return nil, errors.Errorf("table %s declares column %s twice", name, c.Name)
		}
		seen[c.Name.String()] = true
	}
	return &Table{Name: id, Key: key, Columns: columns}, nil
}

func (t *Table) KeyColumns() []ident.Identifier {
	return t.Key.Columns()
}

// Prefix 返回自动生成 ID 的前缀，复合主键或未配置前缀时返回 false
func (t *Table) Prefix() (ident.Identifier, string, bool) {
	k, ok := t.Key.(*SingleKey)
	if !ok || k.Prefix == "" {
		return ident.Identifier{}, "", false
	}
	return k.Column, k.Prefix, true
}

func (t *Table) IsComposite() bool {
	_, ok := t.Key.(*CompositeKey)
	return ok
}

func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name.String() == name {
			return c, true
		}
	}
	return Column{}, false
}

// CheckKey 校验 values 覆盖了全部主键列
func (t *Table) CheckKey(values map[string]any) error {
	var missing []string
	for _, k := range t.KeyColumns() {
		if _, ok := values[k.String()]; !ok {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrMissingKey, "table %s requires %s", t.Name, strings.Join(missing, ", "))
	}
	return nil
}
