// Package replay tracks consumed payment identifiers (transaction hashes and
// authorization nonces) so a single proof is never credited twice.
package replay

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Guard is the replay-prevention contract. Has is a cheap pre-check run
// before any expensive verification; MarkUsed is the atomic check-and-set
// run only after full verification succeeds. MarkUsed reports false when the
// identifier was already present, which closes the race where two concurrent
// requests present the same proof and both pass the Has check.
type Guard interface {
	Has(ctx context.Context, id string) (bool, error)
	MarkUsed(ctx context.Context, id string) (bool, error)
}

// Normalize canonicalizes hash-like identifiers for case-insensitive lookup.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// RedisGuard stores used identifiers in a Redis set, durable across process
// restarts. SADD's added-count return is the atomic check-and-set.
type RedisGuard struct {
	rdb *redis.Client
	key string
}

func NewRedisGuard(rdb *redis.Client, key string) *RedisGuard {
	return &RedisGuard{rdb: rdb, key: key}
}

func (g *RedisGuard) Has(ctx context.Context, id string) (bool, error) {
	return g.rdb.SIsMember(ctx, g.key, Normalize(id)).Result()
}

func (g *RedisGuard) MarkUsed(ctx context.Context, id string) (bool, error) {
	added, err := g.rdb.SAdd(ctx, g.key, Normalize(id)).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

// MemoryGuard is a mutex-protected in-process guard for tests and
// single-node setups without Redis.
type MemoryGuard struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{used: make(map[string]struct{})}
}

func (g *MemoryGuard) Has(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.used[Normalize(id)]
	return ok, nil
}

func (g *MemoryGuard) MarkUsed(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id = Normalize(id)
	if _, ok := g.used[id]; ok {
		return false, nil
	}
	g.used[id] = struct{}{}
	return true, nil
}
