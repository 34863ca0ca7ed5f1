package dispatcher

import (
	"context"
	"sync"
	"time"
)

// IdempotencyGuard 一次性令牌：同一 key 在 ttl 内只有第一次 Acquire 成功
type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryGuard 进程内令牌
type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryGuard 创建内存令牌
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expires, ok := g.keys[key]; ok && (expires.IsZero() || now.Before(expires)) {
		return false, nil
	}

	// 过期时间为零值表示永不过期
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	for k, exp := range g.keys {
		if !exp.IsZero() && !now.Before(exp) {
			delete(g.keys, k)
		}
	}
	g.keys[key] = expires
	return true, nil
}

// keyedMutex 按 emergency id 加锁，无人持有时回收
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock 返回解锁函数
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
