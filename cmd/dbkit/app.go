package main

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hatlonely/dbkit/cfg"
	"github.com/hatlonely/dbkit/log"
	"github.com/hatlonely/dbkit/log/logger"
	"github.com/hatlonely/dbkit/log/writer"
	"github.com/hatlonely/dbkit/rdb"
	"github.com/hatlonely/dbkit/rdb/database"
	"github.com/hatlonely/dbkit/report"
	"github.com/hatlonely/dbkit/schema"
	"github.com/hatlonely/dbkit/uid/seqid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Database   database.SQLOptions        `cfg:"database"`
	Logger     logger.SLogOptions         `cfg:"logger"`
	Schema     schema.Options             `cfg:"schema"`
	Lock       LockOptions                `cfg:"lock"`
	Observable database.ObservableOptions `cfg:"observable"`
	Reports    []report.Definition        `cfg:"reports" validate:"dive"`
}

// LockOptions 自动生成 ID 时的串行化方式
type LockOptions struct {
	Type  string                   `cfg:"type" def:"local" validate:"oneof=none local redis"`
	Redis seqid.RedisLockerOptions `cfg:"redis"`
}

// defaultOptions 命令输出写 stdout，日志默认写 stderr
func defaultOptions() *Options {
	return &Options{
		Logger: logger.SLogOptions{
			Level: "warn",
			Output: writer.Options{
				Type:    "console",
				Console: &writer.ConsoleWriterOptions{Target: "stderr"},
			},
		},
	}
}

// LoadOptions 读取配置文件，DBKIT_ 开头的环境变量覆盖文件中的同名 key
func LoadOptions(filename string) (*Options, error) {
	c, err := cfg.NewConfigWithPrefix(filename, "DBKIT")
	if err != nil {
		return nil, err
	}
	options := defaultOptions()
	if err := c.ConvertTo(options); err != nil {
		return nil, errors.WithMessagef(err, "config [%s]", filename)
	}
	return options, nil
}

// App 一次命令执行所需的全部组件
type App struct {
	sql      *database.SQL
	engine   rdb.Engine
	registry *schema.Registry
	reports  *report.Runner
	logger   logger.Logger

	closers []func() error
	server  *http.Server
}

func NewAppWithOptions(ctx context.Context, options *Options) (*App, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	l, err := log.NewLoggerWithOptions(&options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	s, err := database.NewSQLWithOptions(&options.Database)
	if err != nil {
		if c, ok := l.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, errors.WithMessage(err, "failed to open database")
	}
	app := &App{sql: s, logger: l}
	if c, ok := l.(io.Closer); ok {
		app.closers = append(app.closers, c.Close)
	}
	app.closers = append(app.closers, s.Close)
	s.WithLogger(l)

	if err := app.initRegistry(ctx, &options.Schema); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.initLocker(&options.Lock); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.engine = s
	if options.Observable.EnableMetrics || options.Observable.EnableLogging || options.Observable.EnableTracing {
		obs, err := database.NewObservableSQLWithOptions(s, &options.Observable, prometheus.DefaultRegisterer)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.engine = obs.WithLogger(l)
	}

	if len(options.Reports) > 0 {
		runner, err := report.NewRunner(s.DB(), options.Database.Driver, options.Reports)
		if err != nil {
			_ = app.Close()
			return nil, errors.WithMessage(err, "failed to load reports")
		}
		app.reports = runner
	}

	return app, nil
}

// initRegistry 配置的表覆盖目录查询得到的同名表
func (a *App) initRegistry(ctx context.Context, options *schema.Options) error {
	configured, err := schema.NewRegistryWithOptions(options)
	if err != nil {
		return errors.WithMessage(err, "invalid schema")
	}

	registry := configured
	if options.Introspect {
		introspected, err := a.sql.DescribeAll(ctx)
		if err != nil {
			return errors.WithMessage(err, "failed to introspect schema")
		}
		registry = introspected.Overlay(configured)
	}

	a.registry = registry
	a.sql.WithRegistry(registry)
	return nil
}

func (a *App) initLocker(options *LockOptions) error {
	switch options.Type {
	case "", "local":
		a.sql.WithLocker(seqid.NewLocalLocker())
	case "none":
		a.sql.WithLocker(seqid.NopLocker{})
	case "redis":
		locker := seqid.NewRedisLockerWithOptions(&options.Redis)
		a.closers = append(a.closers, locker.Close)
		a.sql.WithLocker(locker)
	default:
		return errors.Errorf("unsupported lock type: %s", options.Type)
	}
	return nil
}

// ServeMetrics 在后台暴露 /metrics，Close 时关闭
func (a *App) ServeMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}

func (a *App) Close() error {
	var errs []string
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseAssignments 解析 col=val 参数，已注册的列按列类型转换
func (a *App) parseAssignments(table string, args []string) (rdb.Record, error) {
	t, registered := a.registry.Table(table)
	record := make(rdb.Record, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Errorf("expected column=value, got %q", arg)
		}
		if registered {
			if column, ok := t.Column(name); ok {
				v, err := column.Coerce(value)
				if err != nil {
					return nil, err
				}
				record[name] = v
				continue
			}
		}
		record[name] = value
	}
	return record, nil
}

// columnsOf 已注册的表按主键和声明顺序排列，其余列按名字排序
func (a *App) columnsOf(table string, records []rdb.Record) []string {
	seen := map[string]bool{}
	var columns []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	present := map[string]bool{}
	for _, r := range records {
		for k := range r {
			present[k] = true
		}
	}

	if t, ok := a.registry.Table(table); ok {
		for _, k := range t.KeyColumns() {
			if present[k.String()] {
				add(k.String())
			}
		}
		for _, c := range t.Columns {
			if present[c.Name.String()] {
				add(c.Name.String())
			}
		}
	}

	var rest []string
	for k := range present {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		add(k)
	}
	return columns
}
