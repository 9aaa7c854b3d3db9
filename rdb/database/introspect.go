package database

import (
	"context"

	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/schema"
	"github.com/pkg/errors"
)

// catalogColumn 目录中的一列：列名、数据类型、完整列类型（如 enum('A','B')、varchar(50)）
type catalogColumn struct {
	Name       string
	DataType   string
	ColumnType string
}

type foreignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Tables 当前 schema 下的全部表
func (s *SQL) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(s.dialect.ListTablesSQL()))
	if err != nil {
		return nil, errors.Wrap(err, "list tables failed")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}
		tables = append(tables, name)
	}
	return tables, errors.Wrap(rows.Err(), "rows.Err")
}

// TypedColumns 每次调用都重新查询目录，无法映射的类型不返回
func (s *SQL) TypedColumns(ctx context.Context, table string) ([]schema.TypedColumn, error) {
	columns, err := s.catalogColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	typed := make([]schema.TypedColumn, 0, len(columns))
	for _, c := range columns {
		category, ok := categoryOf(c)
		if !ok {
			continue
		}
		name, err := ident.Validate(c.Name)
		if err != nil {
			s.logger.DebugContext(ctx, "skip column with invalid name", "table", table, "column", c.Name)
			continue
		}
		typed = append(typed, schema.TypedColumn{
			Name:      name,
			Category:  category,
			TimeOfDay: category == schema.CategoryTemporal && (schema.IsTimeOfDay(c.DataType) || schema.IsTimeOfDay(c.ColumnType)),
		})
	}
	return typed, nil
}

// TextColumns 文本和枚举列，以及类型未知但属于字符类的列
func (s *SQL) TextColumns(ctx context.Context, table string) ([]string, error) {
	columns, err := s.catalogColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, c := range columns {
		category, ok := categoryOf(c)
		switch {
		case ok && (category == schema.CategoryText || category == schema.CategoryEnumerated):
		case !ok && schema.IsCharacterLike(c.ColumnType):
		default:
			continue
		}
		if _, err := ident.Validate(c.Name); err != nil {
			continue
		}
		names = append(names, c.Name)
	}
	return names, nil
}

// Describe 通过目录查询构建表描述：主键（单列或复合）、外键、枚举取值
func (s *SQL) Describe(ctx context.Context, table string) (*schema.Table, error) {
	columns, err := s.catalogColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.Errorf("table [%s] not found", table)
	}

	pk, err := s.catalogStrings(ctx, s.dialect.PrimaryKeySQL(), table)
	if err != nil {
		return nil, errors.WithMessagef(err, "primary key of table [%s]", table)
	}
	fks, err := s.catalogForeignKeys(ctx, table)
	if err != nil {
		return nil, errors.WithMessagef(err, "foreign keys of table [%s]", table)
	}

	var key schema.Key
	switch len(pk) {
	case 0:
		return nil, errors.Errorf("table [%s] has no primary key", table)
	case 1:
		key, err = schema.NewSingleKey(pk[0], "")
	default:
		key, err = schema.NewCompositeKey(pk...)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "table [%s]", table)
	}

	refs := make(map[string]foreignKey, len(fks))
	for _, fk := range fks {
		refs[fk.Column] = fk
	}

	descriptors := make([]schema.Column, 0, len(columns))
	for _, c := range columns {
		kind, err := kindOf(c, refs)
		if err != nil {
			return nil, errors.WithMessagef(err, "table [%s] column [%s]", table, c.Name)
		}
		col, err := schema.NewColumn(c.Name, kind)
		if err != nil {
			return nil, errors.WithMessagef(err, "table [%s]", table)
		}
		descriptors = append(descriptors, col)
	}

	return schema.NewTable(table, key, descriptors...)
}

// DescribeAll 描述当前 schema 下的全部表，无法描述的表记录告警后跳过
func (s *SQL) DescribeAll(ctx context.Context) (*schema.Registry, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}

	descriptors := make([]*schema.Table, 0, len(tables))
	for _, table := range tables {
		t, err := s.Describe(ctx, table)
		if err != nil {
			s.logger.WarnContext(ctx, "skip table", "table", table, "error", err)
			continue
		}
		descriptors = append(descriptors, t)
	}
	return schema.NewRegistry(descriptors...)
}

func (s *SQL) catalogColumns(ctx context.Context, table string) ([]catalogColumn, error) {
	tableID, err := ident.Validate(table)
	if err != nil {
		return nil, errors.WithMessage(err, "table")
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(s.dialect.ColumnsSQL()), tableID.String())
	if err != nil {
		return nil, errors.Wrapf(err, "query columns of table [%s] failed", table)
	}
	defer rows.Close()

	var columns []catalogColumn
	for rows.Next() {
		var c catalogColumn
		if err := rows.Scan(&c.Name, &c.DataType, &c.ColumnType); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}
		columns = append(columns, c)
	}
	return columns, errors.Wrap(rows.Err(), "rows.Err")
}

func (s *SQL) catalogStrings(ctx context.Context, sqlStr string, table string) ([]string, error) {
	tableID, err := ident.Validate(table)
	if err != nil {
		return nil, errors.WithMessage(err, "table")
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(sqlStr), tableID.String())
	if err != nil {
		return nil, errors.Wrap(err, "query catalog failed")
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}
		values = append(values, v)
	}
	return values, errors.Wrap(rows.Err(), "rows.Err")
}

func (s *SQL) catalogForeignKeys(ctx context.Context, table string) ([]foreignKey, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(s.dialect.ForeignKeysSQL()), table)
	if err != nil {
		return nil, errors.Wrap(err, "query catalog failed")
	}
	defer rows.Close()

	var fks []foreignKey
	for rows.Next() {
		var fk foreignKey
		if err := rows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}
		fks = append(fks, fk)
	}
	return fks, errors.Wrap(rows.Err(), "rows.Err")
}

// categoryOf 先按数据类型查表，失败再按完整列类型查
func categoryOf(c catalogColumn) (schema.Category, bool) {
	if category, ok := schema.CategoryOf(c.DataType); ok {
		return category, true
	}
	return schema.CategoryOf(c.ColumnType)
}

// kindOf 外键优先，其次按类型族；未知类型按文本处理
func kindOf(c catalogColumn, refs map[string]foreignKey) (schema.Kind, error) {
	if fk, ok := refs[c.Name]; ok {
		refTable, err := ident.Validate(fk.RefTable)
		if err != nil {
			return nil, err
		}
		refColumnName := fk.RefColumn
		if refColumnName == "" {
			refColumnName = c.Name
		}
		refColumn, err := ident.Validate(refColumnName)
		if err != nil {
			return nil, err
		}
		return schema.Ref{Table: refTable, Column: refColumn}, nil
	}

	category, _ := categoryOf(c)
	switch category {
	case schema.CategoryNumeric:
		return schema.Numeric{}, nil
	case schema.CategoryTemporal:
		return schema.Temporal{}, nil
	case schema.CategoryEnumerated:
		return schema.Enum{Values: schema.ParseEnumValues(c.ColumnType)}, nil
	default:
		return schema.Text{}, nil
	}
}
