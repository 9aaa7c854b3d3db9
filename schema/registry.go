package schema

import (
	"strings"

	"github.com/pkg/errors"
)

// Registry 表描述注册表，启动时构建一次，之后只读，显式传给各组件
type Registry struct {
	tables map[string]*Table
	names  []string
}

func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if t == nil {
			continue
		}
		name := t.Name.String()
		if _, ok := r.tables[name]; ok {
			return nil, errors.Errorf("table %s registered twice", name)
		}
		r.tables[name] = t
		r.names = append(r.names, name)
	}
	return r, nil
}

// Table 按表名查找，精确匹配优先，其次忽略大小写
func (r *Registry) Table(name string) (*Table, bool) {
	if r == nil {
		return nil, false
	}
	if t, ok := r.tables[name]; ok {
		return t, true
	}
	for _, n := range r.names {
		if strings.EqualFold(n, name) {
			return r.tables[n], true
		}
	}
	return nil, false
}

// Tables 按注册顺序返回
func (r *Registry) Tables() []*Table {
	if r == nil {
		return nil
	}
	tables := make([]*Table, 0, len(r.names))
	for _, n := range r.names {
		tables = append(tables, r.tables[n])
	}
	return tables
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Overlay 返回新的注册表：同名表以 overlay 的主键和列定义为准，
// overlay 未声明的列沿用 r 中的定义，其余表保留
func (r *Registry) Overlay(overlay *Registry) *Registry {
	merged := &Registry{tables: map[string]*Table{}}
	for _, t := range r.Tables() {
		if o, ok := overlay.Table(t.Name.String()); ok {
			t = mergeTable(t, o)
		}
		merged.tables[t.Name.String()] = t
		merged.names = append(merged.names, t.Name.String())
	}
	for _, t := range overlay.Tables() {
		if _, ok := merged.Table(t.Name.String()); !ok {
			merged.tables[t.Name.String()] = t
			merged.names = append(merged.names, t.Name.String())
		}
	}
	return merged
}

func mergeTable(base *Table, overlay *Table) *Table {
	columns := make([]Column, 0, len(base.Columns)+len(overlay.Columns))
	for _, c := range base.Columns {
		if o, ok := overlay.Column(c.Name.String()); ok {
			c = o
		}
		columns = append(columns, c)
	}
	for _, c := range overlay.Columns {
		if _, ok := base.Column(c.Name.String()); !ok {
			columns = append(columns, c)
		}
	}
	return &Table{Name: overlay.Name, Key: overlay.Key, Columns: columns}
}
