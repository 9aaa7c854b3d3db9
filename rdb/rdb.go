package rdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hatlonely/dbkit/schema"
	"github.com/pkg/errors"
)

var (
	ErrMissingKey     = schema.ErrMissingKey
	ErrEmptyKey       = errors.New("empty key")
	ErrEmptyUpdate    = errors.New("empty update")
	ErrEmptyRecord    = errors.New("empty record")
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownTable   = errors.New("unknown table")
	ErrNoPrefix       = errors.New("table has no id prefix")

	// 存储层拒绝语句时的错误类别
	ErrStore        = errors.New("store error")
	ErrReferenced   = errors.New("record is referenced elsewhere")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Record 列名到值的映射，与列顺序无关
type Record map[string]any

// Engine 基于表描述的增删改查和关键字搜索
type Engine interface {
	// Tables 当前 schema 下的全部表名
	Tables(ctx context.Context) ([]string, error)
	// TextColumns 可以做子串匹配的列（文本和枚举）
	TextColumns(ctx context.Context, table string) ([]string, error)
	// TypedColumns 列名和类型族，未知类型的列不返回
	TypedColumns(ctx context.Context, table string) ([]schema.TypedColumn, error)
	// Describe 通过目录查询构建表描述
	Describe(ctx context.Context, table string) (*schema.Table, error)

	// NextID 计算 (table, prefix) 的下一个 ID，不写入
	NextID(ctx context.Context, table string, keyColumn string, prefix string) (string, error)

	Insert(ctx context.Context, table string, record Record) error
	// InsertWithNextID 按注册表中的前缀生成主键后插入，返回生成的 ID
	InsertWithNextID(ctx context.Context, table string, record Record) (string, error)
	// Update 返回受影响的行数，0 行不视为错误
	Update(ctx context.Context, table string, key Record, updates Record) (int64, error)
	// Delete 返回受影响的行数，0 行不视为错误
	Delete(ctx context.Context, table string, key Record) (int64, error)
	Get(ctx context.Context, table string, key Record) (Record, error)
	View(ctx context.Context, table string, limit int) ([]Record, error)

	Search(ctx context.Context, table string, term string) ([]Record, error)
	// SearchAll 在所有表上搜索，只保留有结果的表
	SearchAll(ctx context.Context, term string) (map[string][]Record, error)

	Close() error
}

// StoreError 存储层拒绝语句，Kind 为 ErrReferenced / ErrDuplicateKey / ErrStore
type StoreError struct {
	Op    string
	Table string
	Kind  error
	Err   error
}

func NewStoreError(op string, table string, kind error, err error) *StoreError {
	if kind == nil {
		kind = ErrStore
	}
	return &StoreError{Op: op, Table: table, Kind: kind, Err: err}
}

func (e *StoreError) Error() string {
	if e.Kind == ErrStore {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Table, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is 同时匹配具体类别和 ErrStore
func (e *StoreError) Is(target error) bool {
	return target == e.Kind || target == ErrStore
}

// ScanRecords 把结果集逐行转换为 Record，[]byte 转换为 string
func ScanRecords(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "rows.Columns failed")
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows.Err")
	}
	return records, nil
}
