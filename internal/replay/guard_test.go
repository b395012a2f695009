package replay

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func guards(t *testing.T) map[string]Guard {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return map[string]Guard{
		"redis":  NewRedisGuard(rdb, "x402:used"),
		"memory": NewMemoryGuard(),
	}
}

func TestGuard_MarkThenHas(t *testing.T) {
	for name, g := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			has, err := g.Has(ctx, "0xAAA111")
			if err != nil {
				t.Fatal(err)
			}
			if has {
				t.Fatal("fresh id reported as used")
			}

			added, err := g.MarkUsed(ctx, "0xAAA111")
			if err != nil {
				t.Fatal(err)
			}
			if !added {
				t.Fatal("first MarkUsed should add")
			}

			has, err = g.Has(ctx, "0xAAA111")
			if err != nil {
				t.Fatal(err)
			}
			if !has {
				t.Fatal("marked id not reported as used")
			}
		})
	}
}

func TestGuard_MarkUsedIsCheckAndSet(t *testing.T) {
	for name, g := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if added, _ := g.MarkUsed(ctx, "0xbbb"); !added {
				t.Fatal("first mark should succeed")
			}
			if added, _ := g.MarkUsed(ctx, "0xbbb"); added {
				t.Fatal("second mark must report already-used")
			}
		})
	}
}

func TestGuard_CaseInsensitive(t *testing.T) {
	for name, g := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := g.MarkUsed(ctx, "0xAbCdEf"); err != nil {
				t.Fatal(err)
			}
			has, err := g.Has(ctx, "0xABCDEF")
			if err != nil {
				t.Fatal(err)
			}
			if !has {
				t.Fatal("lookup must be case-insensitive")
			}
			if added, _ := g.MarkUsed(ctx, "0xabcdef"); added {
				t.Fatal("differently-cased id must not be creditable twice")
			}
		})
	}
}

// Two concurrent requests presenting the same hash: exactly one may win the
// mark, regardless of both passing Has() first.
func TestGuard_ConcurrentSameID(t *testing.T) {
	for name, g := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 16

			var wg sync.WaitGroup
			wins := make(chan bool, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					// Both sides see "unused" here; the set write decides.
					_, _ = g.Has(ctx, "0xRACE")
					added, err := g.MarkUsed(ctx, "0xRACE")
					if err == nil && added {
						wins <- true
					}
				}()
			}
			wg.Wait()
			close(wins)

			total := 0
			for range wins {
				total++
			}
			if total != 1 {
				t.Fatalf("%d workers won the mark, want exactly 1", total)
			}
		})
	}
}

func TestRedisGuard_DurableAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)

	first := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	g1 := NewRedisGuard(first, "x402:used")
	if _, err := g1.MarkUsed(context.Background(), "0xdeadbeef"); err != nil {
		t.Fatal(err)
	}
	first.Close()

	// A new client (fresh process) still sees the consumed hash.
	second := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	g2 := NewRedisGuard(second, "x402:used")
	has, err := g2.Has(context.Background(), "0xDEADBEEF")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("used set must survive client restarts")
	}
}
