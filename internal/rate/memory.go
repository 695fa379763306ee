package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// =================================================================================
// MEMORY LIMITER
// =================================================================================

// MemoryLimiter: fixed window en memoria, mismo algoritmo que RedisLimiter
// pero por proceso. En modo embedded cada nodo cuenta por separado.
type MemoryLimiter struct {
	mu     sync.Mutex
	c      *gocache.Cache
	max    int64
	window time.Duration
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		c:      gocache.New(window, window),
		max:    int64(max),
		window: window,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.window)
	winEnd := winStart.Add(l.window)
	k := fmt.Sprintf("%s:%d", sanitizeKey(key), winStart.Unix())

	l.mu.Lock()
	var hits int64
	if err := l.c.Add(k, int64(1), l.window); err == nil {
		hits = 1
	} else {
		n, ierr := l.c.IncrementInt64(k, 1)
		if ierr != nil {
			// La entrada expiró entre Add e Increment; arrancamos ventana nueva.
			l.c.Set(k, int64(1), l.window)
			n = 1
		}
		hits = n
	}
	l.mu.Unlock()

	ttl := time.Until(winEnd)
	if ttl < 0 {
		ttl = 0
	}

	allowed := hits <= l.max
	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

var _ Limiter = (*MemoryLimiter)(nil)
