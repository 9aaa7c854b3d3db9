package report

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hatlonely/dbkit/rdb"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrUnknownReport = errors.New("unknown report")
	ErrNotReadOnly   = errors.New("report is not a read-only statement")
	ErrArgCount      = errors.New("report argument count mismatch")
)

// Definition 预定义的只读统计语句，参数按 Params 顺序绑定到 ? 占位符
type Definition struct {
	Name        string   `cfg:"name" validate:"required"`
	Label       string   `cfg:"label"`
	Description string   `cfg:"description"`
	SQL         string   `cfg:"sql" validate:"required"`
	Params      []string `cfg:"params"`
}

// Runner 在调用方的连接上执行报表，连接的生命周期由调用方负责
type Runner struct {
	db          *gorm.DB
	definitions []Definition
	index       map[string]int
}

func NewRunner(db *sql.DB, driver string, definitions []Definition) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}

	var dialector gorm.Dialector
	switch driver {
	case dialect.DriverMySQL:
		dialector = mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true})
	case dialect.DriverSQLite, "sqlite":
		dialector = sqlite.Dialector{Conn: db}
	default:
		return nil, errors.Errorf("reports are not supported on driver: %s", driver)
	}

	index := make(map[string]int, len(definitions))
	for i, def := range definitions {
		if def.Name == "" {
			return nil, errors.Errorf("report #%d has no name", i)
		}
		if _, ok := index[def.Name]; ok {
			return nil, errors.Errorf("report [%s] defined twice", def.Name)
		}
		if err := checkReadOnly(def.SQL); err != nil {
			return nil, errors.WithMessagef(err, "report [%s]", def.Name)
		}
		index[def.Name] = i
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "gorm.Open failed")
	}

	return &Runner{db: gdb, definitions: definitions, index: index}, nil
}

// List 按定义顺序返回
func (r *Runner) List() []Definition {
	return r.definitions
}

func (r *Runner) Get(name string) (Definition, error) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, errors.Wrapf(ErrUnknownReport, "report [%s]", name)
	}
	return r.definitions[i], nil
}

func (r *Runner) Run(ctx context.Context, name string, args ...any) ([]rdb.Record, error) {
	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if len(args) != len(def.Params) {
		return nil, errors.Wrapf(ErrArgCount, "report [%s] expects %d arguments (%s), got %d",
			name, len(def.Params), strings.Join(def.Params, ", "), len(args))
	}

	rows, err := r.db.WithContext(ctx).Raw(def.SQL, args...).Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "run report [%s] failed", name)
	}
	defer rows.Close()

	records, err := rdb.ScanRecords(rows)
	if err != nil {
		return nil, errors.WithMessagef(err, "report [%s]", name)
	}
	return records, nil
}

// checkReadOnly 只允许单条 SELECT 或 WITH 语句，末尾的分号可以省略
func checkReadOnly(statement string) error {
	s := strings.TrimSpace(statement)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" {
		return errors.Wrap(ErrNotReadOnly, "empty statement")
	}

	quote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == ';':
			return errors.Wrap(ErrNotReadOnly, "multiple statements")
		}
	}

	keyword := strings.ToUpper(strings.Fields(s)[0])
	if keyword != "SELECT" && keyword != "WITH" {
		return errors.Wrapf(ErrNotReadOnly, "statement starts with %s", keyword)
	}
	return nil
}
