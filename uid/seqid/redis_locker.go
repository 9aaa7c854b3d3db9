package seqid

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock timeout")

// unlockScript 只删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockerOptions Redis 锁配置
type RedisLockerOptions struct {
	Addr     string `cfg:"addr" def:"localhost:6379"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db"`
	// 锁 key 前缀，完整 key 为 KeyPrefix + table:prefix
	KeyPrefix string `cfg:"keyPrefix" def:"dbkit:seqid:"`
	// 锁自动过期时间，防止持有者崩溃后死锁
	TTL time.Duration `cfg:"ttl" def:"5s"`
	// 获取锁的重试间隔
	RetryInterval time.Duration `cfg:"retryInterval" def:"50ms"`
	// 获取锁的最长等待时间
	Timeout time.Duration `cfg:"timeout" def:"3s"`
}

// RedisLocker 基于 SET NX PX 的跨进程锁
type RedisLocker struct {
	client        redis.UniversalClient
	keyPrefix     string
	ttl           time.Duration
	retryInterval time.Duration
	timeout       time.Duration
}

func NewRedisLockerWithOptions(options *RedisLockerOptions) *RedisLocker {
	if options == nil {
		options = &RedisLockerOptions{}
	}
	if options.Addr == "" {
		options.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	})
	return NewRedisLocker(client, options)
}

// NewRedisLocker 使用已有的客户端
func NewRedisLocker(client redis.UniversalClient, options *RedisLockerOptions) *RedisLocker {
	if options == nil {
		options = &RedisLockerOptions{}
	}
	l := &RedisLocker{
		client:        client,
		keyPrefix:     options.KeyPrefix,
		ttl:           options.TTL,
		retryInterval: options.RetryInterval,
		timeout:       options.Timeout,
	}
	if l.keyPrefix == "" {
		l.keyPrefix = "dbkit:seqid:"
	}
	if l.ttl == 0 {
		l.ttl = 5 * time.Second
	}
	if l.retryInterval == 0 {
		l.retryInterval = 50 * time.Millisecond
	}
	if l.timeout == 0 {
		l.timeout = 3 * time.Second
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(ctx context.Context) error, error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(err, "redis.SetNX failed, key [%s]", redisKey)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrLockTimeout, "key [%s]", redisKey)
		case <-ticker.C:
		}
	}

	return func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			return errors.Wrapf(err, "redis unlock failed, key [%s]", redisKey)
		}
		return nil
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
