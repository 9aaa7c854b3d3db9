package seqid

import (
	"context"
	"sync"
)

// Locker 串行化同一 (table, prefix) 上的“读取最大值-计算-插入”过程
type Locker interface {
	// Lock 阻塞直到获得锁或 ctx 结束，返回的 unlock 释放锁
	Lock(ctx context.Context, key string) (unlock func(ctx context.Context) error, err error)
}

// NopLocker 不加锁，依赖存储层主键唯一约束把并发冲突变成插入失败
type NopLocker struct{}

func (NopLocker) Lock(ctx context.Context, key string) (func(ctx context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// LocalLocker 进程内按 key 加锁
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]chan struct{}{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(ctx context.Context) error, error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
