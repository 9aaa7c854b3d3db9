package seqid

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/log"
	"github.com/hatlonely/dbkit/log/logger"
	"github.com/hatlonely/dbkit/rdb/dialect"
	"github.com/pkg/errors"
)

var ErrUnparseableID = errors.New("unparseable id")

// Querier *sql.DB 和 *sql.Tx 都满足
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type GeneratorOptions struct {
	// 已有最大 ID 无法解析时返回 ErrUnparseableID，否则回退到 prefix + AAA001 并记录告警
	Strict bool `cfg:"strict"`
}

// Generator 根据表中已有的最大 ID 计算下一个 ID，每次调用都重新读取，不缓存
type Generator struct {
	db      Querier
	dialect dialect.Dialect
	strict  bool
	locker  Locker
	logger  logger.Logger
}

func NewGenerator(db Querier, d dialect.Dialect, options *GeneratorOptions) *Generator {
	if options == nil {
		options = &GeneratorOptions{}
	}
	return &Generator{
		db:      db,
		dialect: d,
		strict:  options.Strict,
		locker:  NopLocker{},
		logger:  log.Default(),
	}
}

func (g *Generator) WithLocker(locker Locker) *Generator {
	if locker != nil {
		g.locker = locker
	}
	return g
}

func (g *Generator) WithLogger(l logger.Logger) *Generator {
	if l != nil {
		g.logger = l
	}
	return g
}

// NextID 返回 (table, prefix) 下的下一个 ID，不写入
// 两个并发调用可能得到同一个值，需要串行化时使用 Reserve
func (g *Generator) NextID(ctx context.Context, table string, keyColumn string, prefix string) (string, error) {
	tableID, err := ident.Validate(table)
	if err != nil {
		return "", errors.WithMessage(err, "table")
	}
	keyID, err := ident.Validate(keyColumn)
	if err != nil {
		return "", errors.WithMessage(err, "key column")
	}
	if prefix != "" {
		if _, err := ident.Validate(prefix); err != nil {
			return "", errors.WithMessage(err, "prefix")
		}
	}

	key := g.dialect.Quote(keyID)
	query := "SELECT " + key + " FROM " + g.dialect.Quote(tableID) +
		" WHERE " + key + " LIKE ? ESCAPE '!' ORDER BY LENGTH(" + key + ") DESC, " + key + " DESC LIMIT 1"

	var maxID string
	err = g.db.QueryRowContext(ctx, g.dialect.Rebind(query), likePrefix(prefix)).Scan(&maxID)
	if errors.Is(err, sql.ErrNoRows) {
		return First(prefix).String(), nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "query max id failed, table [%s]", table)
	}

	id, ok := Parse(prefix, maxID)
	if !ok {
		if g.strict {
			return "", errors.Wrapf(ErrUnparseableID, "table [%s] max id [%s]", table, maxID)
		}
		g.logger.WarnContext(ctx, "unparseable max id, restart sequence",
			"table", table, "prefix", prefix, "maxID", maxID)
		return First(prefix).String(), nil
	}
	return id.Next().String(), nil
}

// Reserve 持有 (table, prefix) 的锁，计算下一个 ID 并交给 fn 写入，fn 返回后释放锁
func (g *Generator) Reserve(ctx context.Context, table string, keyColumn string, prefix string, fn func(ctx context.Context, id string) error) (string, error) {
	unlock, err := g.locker.Lock(ctx, table+":"+prefix)
	if err != nil {
		return "", errors.WithMessagef(err, "lock table [%s] prefix [%s] failed", table, prefix)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			g.logger.WarnContext(ctx, "unlock failed", "table", table, "prefix", prefix, "error", err)
		}
	}()

	id, err := g.NextID(ctx, table, keyColumn, prefix)
	if err != nil {
		return "", err
	}
	if err := fn(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// likePrefix 前缀中的 _ 在 LIKE 中是通配符，用 ! 转义
func likePrefix(prefix string) string {
	return strings.ReplaceAll(prefix, "_", "!_") + "%"
}
