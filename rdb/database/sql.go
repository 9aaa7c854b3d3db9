package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/log"
	"github.com/hatlonely/dbkit/log/logger"
	"github.com/hatlonely/dbkit/rdb"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/hatlonely/dbkit/rdb/query"
	"github.com/hatlonely/dbkit/schema"
	"github.com/hatlonely/dbkit/uid/seqid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var _ rdb.Engine = (*SQL)(nil)

type SQLOptions struct {
	Driver   string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3 pgx"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`

	// View 未指定条数时返回的行数
	ViewLimit int `cfg:"viewLimit" def:"100"`

	IDGenerator seqid.GeneratorOptions `cfg:"idGenerator"`
}

// SQL 基于 database/sql 的引擎实现
// 表名和列名先经过 ident 校验再由方言引用后拼进语句，值总是作为绑定参数
type SQL struct {
	db        *sql.DB
	ownsDB    bool
	dialect   dialect.Dialect
	registry  *schema.Registry
	generator *seqid.Generator
	viewLimit int
	logger    logger.Logger
}

// NewSQLWithOptions 打开连接，Close 时关闭
func NewSQLWithOptions(options *SQLOptions) (*SQL, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	dsn, err := buildDSN(options)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open failed, driver [%s]", options.Driver)
	}

	if options.MaxConns > 0 {
		db.SetMaxOpenConns(options.MaxConns)
	}
	if options.MaxIdle > 0 {
		db.SetMaxIdleConns(options.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "db.Ping failed")
	}

	s, err := NewSQLWithDB(db, options.Driver, options)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLWithDB 使用调用方的连接，Close 不关闭连接
func NewSQLWithDB(db *sql.DB, driver string, options *SQLOptions) (*SQL, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if options == nil {
		options = &SQLOptions{}
	}

	d, err := dialect.New(driver)
	if err != nil {
		return nil, err
	}

	viewLimit := options.ViewLimit
	if viewLimit <= 0 {
		viewLimit = 100
	}

	l := log.Default()
	return &SQL{
		db:        db,
		dialect:   d,
		generator: seqid.NewGenerator(db, d, &options.IDGenerator).WithLogger(l),
		viewLimit: viewLimit,
		logger:    l,
	}, nil
}

func buildDSN(options *SQLOptions) (string, error) {
	switch options.Driver {
	case dialect.DriverMySQL:
		var cfg *mysql.Config
		if options.DSN != "" {
			var err error
			if cfg, err = mysql.ParseDSN(options.DSN); err != nil {
				return "", errors.Wrap(err, "mysql.ParseDSN failed")
			}
		} else {
			cfg = mysql.NewConfig()
			cfg.User = options.Username
			cfg.Passwd = options.Password
			cfg.Net = "tcp"
			cfg.Addr = net.JoinHostPort(options.Host, portOf(options))
			cfg.DBName = options.Database
			cfg.ParseTime = true
			if options.Charset != "" {
				cfg.Params = map[string]string{"charset": options.Charset}
			}
		}
		// 受影响行数按匹配行计算，更新为相同值时不为 0
		cfg.ClientFoundRows = true
		return cfg.FormatDSN(), nil
	case dialect.DriverSQLite:
		if options.DSN != "" {
			return options.DSN, nil
		}
		return options.Database, nil
	case dialect.DriverPostgres:
		if options.DSN != "" {
			return options.DSN, nil
		}
		return fmt.Sprintf("postgres://%s:%s@%s/%s",
			options.Username, options.Password, net.JoinHostPort(options.Host, portOf(options)), options.Database), nil
	default:
		return "", errors.Errorf("unsupported driver: %s", options.Driver)
	}
}

// portOf 未配置端口时按驱动取默认端口
func portOf(options *SQLOptions) string {
	if options.Port != "" {
		return options.Port
	}
	switch options.Driver {
	case dialect.DriverPostgres:
		return "5432"
	default:
		return "3306"
	}
}

// WithRegistry 设置表描述注册表，用于主键校验、列顺序和自动生成 ID
func (s *SQL) WithRegistry(registry *schema.Registry) *SQL {
	s.registry = registry
	return s
}

func (s *SQL) WithLogger(l logger.Logger) *SQL {
	if l != nil {
		s.logger = l
		s.generator.WithLogger(l)
	}
	return s
}

// WithLocker 设置生成 ID 时使用的锁
func (s *SQL) WithLocker(locker seqid.Locker) *SQL {
	s.generator.WithLocker(locker)
	return s
}

func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *SQL) Registry() *schema.Registry {
	return s.registry
}

func (s *SQL) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *SQL) NextID(ctx context.Context, table string, keyColumn string, prefix string) (string, error) {
	return s.generator.NextID(ctx, table, keyColumn, prefix)
}

func (s *SQL) Insert(ctx context.Context, table string, record rdb.Record) error {
	tableID, err := ident.Validate(table)
	if err != nil {
		return errors.WithMessage(err, "table")
	}
	if len(record) == 0 {
		return errors.Wrapf(rdb.ErrEmptyRecord, "table [%s]", table)
	}

	columns, err := s.orderColumns(table, record)
	if err != nil {
		return err
	}

	quoted := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		quoted = append(quoted, s.dialect.Quote(c))
		placeholders = append(placeholders, "?")
		args = append(args, record[c.String()])
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.Quote(tableID), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	if _, err := s.exec(ctx, sqlStr, args); err != nil {
		return s.storeError(ctx, "insert", table, err)
	}
	return nil
}

// InsertWithNextID 表必须在注册表中且配置了前缀，主键由生成器在锁内生成
func (s *SQL) InsertWithNextID(ctx context.Context, table string, record rdb.Record) (string, error) {
	t, ok := s.registry.Table(table)
	if !ok {
		return "", errors.Wrapf(rdb.ErrUnknownTable, "table [%s]", table)
	}
	keyColumn, prefix, ok := t.Prefix()
	if !ok {
		return "", errors.Wrapf(rdb.ErrNoPrefix, "table [%s]", table)
	}

	return s.generator.Reserve(ctx, t.Name.String(), keyColumn.String(), prefix, func(ctx context.Context, id string) error {
		values := make(rdb.Record, len(record)+1)
		for k, v := range record {
			values[k] = v
		}
		values[keyColumn.String()] = id
		return s.Insert(ctx, t.Name.String(), values)
	})
}

// Update 0 行受影响不视为错误，返回值由调用方决定如何提示
func (s *SQL) Update(ctx context.Context, table string, key rdb.Record, updates rdb.Record) (int64, error) {
	tableID, err := ident.Validate(table)
	if err != nil {
		return 0, errors.WithMessage(err, "table")
	}
	if len(key) == 0 {
		return 0, errors.Wrapf(rdb.ErrEmptyKey, "table [%s]", table)
	}
	if len(updates) == 0 {
		return 0, errors.Wrapf(rdb.ErrEmptyUpdate, "table [%s]", table)
	}
	if err := s.checkKey(table, key); err != nil {
		return 0, err
	}

	columns, err := s.orderColumns(table, updates)
	if err != nil {
		return 0, err
	}
	setParts := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+len(key))
	for _, c := range columns {
		setParts = append(setParts, s.dialect.Quote(c)+" = ?")
		args = append(args, updates[c.String()])
	}

	where, whereArgs, err := s.whereKey(table, key)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		s.dialect.Quote(tableID), strings.Join(setParts, ", "), where)

	res, err := s.exec(ctx, sqlStr, args)
	if err != nil {
		return 0, s.storeError(ctx, "update", table, err)
	}
	return rowsAffected(res), nil
}

// Delete 外键引用导致的失败返回 rdb.ErrReferenced
func (s *SQL) Delete(ctx context.Context, table string, key rdb.Record) (int64, error) {
	tableID, err := ident.Validate(table)
	if err != nil {
		return 0, errors.WithMessage(err, "table")
	}
	if len(key) == 0 {
		return 0, errors.Wrapf(rdb.ErrEmptyKey, "table [%s]", table)
	}
	if err := s.checkKey(table, key); err != nil {
		return 0, err
	}

	where, args, err := s.whereKey(table, key)
	if err != nil {
		return 0, err
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s", s.dialect.Quote(tableID), where)

	res, err := s.exec(ctx, sqlStr, args)
	if err != nil {
		return 0, s.storeError(ctx, "delete", table, err)
	}
	return rowsAffected(res), nil
}

func (s *SQL) Get(ctx context.Context, table string, key rdb.Record) (rdb.Record, error) {
	tableID, err := ident.Validate(table)
	if err != nil {
		return nil, errors.WithMessage(err, "table")
	}
	if len(key) == 0 {
		return nil, errors.Wrapf(rdb.ErrEmptyKey, "table [%s]", table)
	}
	if err := s.checkKey(table, key); err != nil {
		return nil, err
	}

	where, args, err := s.whereKey(table, key)
	if err != nil {
		return nil, err
	}

	sqlStr := fmt.Sprintf("SELECT * FROM %s WHERE %s", s.dialect.Quote(tableID), where)
	records, err := s.query(ctx, sqlStr, args)
	if err != nil {
		return nil, s.storeError(ctx, "get", table, err)
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(rdb.ErrRecordNotFound, "table [%s]", table)
	}
	return records[0], nil
}

// View 返回前 limit 行，limit <= 0 时使用 ViewLimit，注册过的表按主键排序
func (s *SQL) View(ctx context.Context, table string, limit int) ([]rdb.Record, error) {
	tableID, err := ident.Validate(table)
	if err != nil {
		return nil, errors.WithMessage(err, "table")
	}
	if limit <= 0 {
		limit = s.viewLimit
	}

	sqlStr := "SELECT * FROM " + s.dialect.Quote(tableID)
	if t, ok := s.registry.Table(table); ok {
		keys := make([]string, 0, len(t.KeyColumns()))
		for _, k := range t.KeyColumns() {
			keys = append(keys, s.dialect.Quote(k))
		}
		sqlStr += " ORDER BY " + strings.Join(keys, ", ")
	}
	sqlStr += " LIMIT ?"

	records, err := s.query(ctx, sqlStr, []any{limit})
	if err != nil {
		return nil, s.storeError(ctx, "view", table, err)
	}
	return records, nil
}

// checkKey 注册过的表必须提供全部主键列，在发出任何语句之前拒绝
func (s *SQL) checkKey(table string, key rdb.Record) error {
	t, ok := s.registry.Table(table)
	if !ok {
		return nil
	}
	return t.CheckKey(key)
}

// orderColumns 主键列按声明顺序在前，其余按列名排序，保证生成的语句稳定
func (s *SQL) orderColumns(table string, values rdb.Record) ([]ident.Identifier, error) {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	if t, ok := s.registry.Table(table); ok {
		keyOrder := make(map[string]int, len(t.KeyColumns()))
		for i, k := range t.KeyColumns() {
			keyOrder[k.String()] = i
		}
		sort.SliceStable(names, func(i, j int) bool {
			oi, iok := keyOrder[names[i]]
			oj, jok := keyOrder[names[j]]
			if iok && jok {
				return oi < oj
			}
			return iok && !jok
		})
	}

	ids, err := ident.ValidateAll(names)
	if err != nil {
		return nil, errors.WithMessagef(err, "column of table [%s]", table)
	}
	return ids, nil
}

func (s *SQL) whereKey(table string, key rdb.Record) (string, []any, error) {
	columns, err := s.orderColumns(table, key)
	if err != nil {
		return "", nil, err
	}
	q := &query.BoolQuery{}
	for _, c := range columns {
		q.Must = append(q.Must, &query.TermQuery{Field: c, Value: key[c.String()]})
	}
	return q.ToSQL(s.dialect)
}

func (s *SQL) exec(ctx context.Context, sqlStr string, args []any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(sqlStr), args...)
}

func (s *SQL) query(ctx context.Context, sqlStr string, args []any) ([]rdb.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(sqlStr), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rdb.ScanRecords(rows)
}

func (s *SQL) storeError(ctx context.Context, op string, table string, err error) error {
	kind := s.dialect.ClassifyError(err)
	s.logger.WarnContext(ctx, "statement failed", "op", op, "table", table, "error", err)
	return rdb.NewStoreError(op, table, kind, err)
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
