// Package dedupe remembers keys that have already been handled, such as
// webhook event ids and scheduler reminders.
package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard claims a key for ttl. Claim reports false when the key is already
// held. Release drops a claim so that a failed handler can be retried.
type Guard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// sweepEvery is how often Claim drops expired keys from a MemoryGuard.
const sweepEvery = time.Minute

type MemoryGuard struct {
	mu        sync.Mutex
	keys      map[string]time.Time
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if now.Sub(g.lastSweep) >= sweepEvery {
		for k, exp := range g.keys {
			if !now.Before(exp) {
				delete(g.keys, k)
			}
		}
		g.lastSweep = now
	}
	if exp, ok := g.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.keys[key] = now.Add(ttl)
	return true, nil
}

// Len reports how many keys are currently held, expired ones included until
// the next sweep.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

func (g *MemoryGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

// RedisGuard implements Guard with SET NX so several server replicas share
// the same claims.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisGuard(client redis.UniversalClient, prefix string) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix}
}

func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+key, time.Now().Unix(), ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.prefix+key).Err()
}
