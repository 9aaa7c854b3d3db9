package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/dbkit/log"
	"github.com/hatlonely/dbkit/log/logger"
	"github.com/hatlonely/dbkit/rdb"
	"github.com/hatlonely/dbkit/schema"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ rdb.Engine = (*ObservableSQL)(nil)

type ObservableOptions struct {
	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics" def:"true"`

	// EnableLogging 是否启用日志记录
	EnableLogging bool `cfg:"enableLogging" def:"true"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称标识，用于所有观测维度
	// - Metrics: 作为指标名前缀
	// - Logging: 作为 component 字段值
	// - Tracing: 作为 span 的 component 属性
	Name string `cfg:"name" def:"dbkit"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
	resultRows        *prometheus.HistogramVec
}

// NewObservableMetrics 创建指标并注册到 registerer，同名指标已注册时复用已有的
func NewObservableMetrics(name string, registerer prometheus.Registerer) (*ObservableMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	metrics := &ObservableMetrics{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of engine operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		activeOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active engine operations",
			},
			[]string{"operation"},
		),
		resultRows: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_result_rows",
				Help:    "Number of rows returned or affected by engine operations",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"operation"},
		),
	}

	var err error
	if metrics.operationCounter, err = register(registerer, metrics.operationCounter); err != nil {
		return nil, err
	}
	if metrics.operationDuration, err = register(registerer, metrics.operationDuration); err != nil {
		return nil, err
	}
	if metrics.activeOperations, err = register(registerer, metrics.activeOperations); err != nil {
		return nil, err
	}
	if metrics.resultRows, err = register(registerer, metrics.resultRows); err != nil {
		return nil, err
	}
	return metrics, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register collector failed")
	}
	return c, nil
}

// ObservableSQL 装饰器，为任何 rdb.Engine 添加观测能力
type ObservableSQL struct {
	engine rdb.Engine

	logger        logger.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

// NewObservableSQLWithOptions registerer 为 nil 时注册到默认 registry
func NewObservableSQLWithOptions(engine rdb.Engine, options *ObservableOptions, registerer prometheus.Registerer) (*ObservableSQL, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if options == nil {
		return nil, errors.New("options is nil")
	}
	name := options.Name
	if name == "" {
		name = "dbkit"
	}

	obs := &ObservableSQL{
		engine:        engine,
		name:          name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}

	if options.EnableLogging {
		obs.logger = log.Default().WithGroup("observableSQL")
	}

	if options.EnableMetrics {
		metrics, err := NewObservableMetrics(name, registerer)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create metrics")
		}
		obs.metrics = metrics
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("rdb.%s", name))
	}

	return obs, nil
}

func (obs *ObservableSQL) WithLogger(l logger.Logger) *ObservableSQL {
	if l != nil && obs.enableLogging {
		obs.logger = l.WithGroup("observableSQL")
	}
	return obs
}

// observeOperation 统一的操作观测逻辑，fn 返回结果行数或受影响行数
func (obs *ObservableSQL) observeOperation(ctx context.Context, operation string, table string, fn func(context.Context) (int, error)) error {
	start := time.Now()

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("rdb.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
				attribute.String("table", table),
			),
		)
		defer span.End()
	}

	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	rows, err := fn(ctx)
	duration := time.Since(start)

	if obs.enableTracing && span != nil {
		span.SetAttributes(
			attribute.Int64("duration_ms", duration.Milliseconds()),
			attribute.Int("rows", rows),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
		if err == nil {
			obs.metrics.resultRows.WithLabelValues(operation).Observe(float64(rows))
		}
	}

	if obs.enableLogging && obs.logger != nil {
		if err != nil {
			obs.logger.ErrorContext(ctx, "engine operation failed",
				"component", obs.name,
				"operation", operation,
				"table", table,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.InfoContext(ctx, "engine operation completed",
				"component", obs.name,
				"operation", operation,
				"table", table,
				"rows", rows,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}

func (obs *ObservableSQL) Tables(ctx context.Context) ([]string, error) {
	var result []string
	err := obs.observeOperation(ctx, "tables", "", func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.Tables(ctx)
		return len(result), err
	})
	return result, err
}

func (obs *ObservableSQL) TextColumns(ctx context.Context, table string) ([]string, error) {
	var result []string
	err := obs.observeOperation(ctx, "text_columns", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.TextColumns(ctx, table)
		return len(result), err
	})
	return result, err
}

func (obs *ObservableSQL) TypedColumns(ctx context.Context, table string) ([]schema.TypedColumn, error) {
	var result []schema.TypedColumn
	err := obs.observeOperation(ctx, "typed_columns", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.TypedColumns(ctx, table)
		return len(result), err
	})
	return result, err
}

func (obs *ObservableSQL) Describe(ctx context.Context, table string) (*schema.Table, error) {
	var result *schema.Table
	err := obs.observeOperation(ctx, "describe", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.Describe(ctx, table)
		if result == nil {
			return 0, err
		}
		return len(result.Columns), err
	})
	return result, err
}

func (obs *ObservableSQL) NextID(ctx context.Context, table string, keyColumn string, prefix string) (string, error) {
	var result string
	err := obs.observeOperation(ctx, "next_id", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.NextID(ctx, table, keyColumn, prefix)
		return 0, err
	})
	return result, err
}

func (obs *ObservableSQL) Insert(ctx context.Context, table string, record rdb.Record) error {
	return obs.observeOperation(ctx, "insert", table, func(ctx context.Context) (int, error) {
		if err := obs.engine.Insert(ctx, table, record); err != nil {
			return 0, err
		}
		return 1, nil
	})
}

func (obs *ObservableSQL) InsertWithNextID(ctx context.Context, table string, record rdb.Record) (string, error) {
	var result string
	err := obs.observeOperation(ctx, "insert_with_next_id", table, func(ctx context.Context) (int, error) {
		var err error
		if result, err = obs.engine.InsertWithNextID(ctx, table, record); err != nil {
			return 0, err
		}
		return 1, nil
	})
	return result, err
}

func (obs *ObservableSQL) Update(ctx context.Context, table string, key rdb.Record, updates rdb.Record) (int64, error) {
	var result int64
	err := obs.observeOperation(ctx, "update", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.Update(ctx, table, key, updates)
		return int(result), err
	})
	return result, err
}

func (obs *ObservableSQL) Delete(ctx context.Context, table string, key rdb.Record) (int64, error) {
	var result int64
	err := obs.observeOperation(ctx, "delete", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.Delete(ctx, table, key)
		return int(result), err
	})
	return result, err
}

func (obs *ObservableSQL) Get(ctx context.Context, table string, key rdb.Record) (rdb.Record, error) {
	var result rdb.Record
	err := obs.observeOperation(ctx, "get", table, func(ctx context.Context) (int, error) {
		var err error
		if result, err = obs.engine.Get(ctx, table, key); err != nil {
			return 0, err
		}
		return 1, nil
	})
	return result, err
}

func (obs *ObservableSQL) View(ctx context.Context, table string, limit int) ([]rdb.Record, error) {
	var result []rdb.Record
	err := obs.observeOperation(ctx, "view", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.View(ctx, table, limit)
		return len(result), err
	})
	return result, err
}

func (obs *ObservableSQL) Search(ctx context.Context, table string, term string) ([]rdb.Record, error) {
	var result []rdb.Record
	err := obs.observeOperation(ctx, "search", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.Search(ctx, table, term)
		return len(result), err
	})
	return result, err
}

func (obs *ObservableSQL) SearchAll(ctx context.Context, term string) (map[string][]rdb.Record, error) {
	var result map[string][]rdb.Record
	err := obs.observeOperation(ctx, "search_all", "", func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.engine.SearchAll(ctx, term)
		n := 0
		for _, records := range result {
			n += len(records)
		}
		return n, err
	})
	return result, err
}

func (obs *ObservableSQL) Close() error {
	return obs.engine.Close()
}
