package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-seating/internal/clock"
	"ms-seating/internal/models"
)

const (
	// KeyPrefix namespaces memoized confirmations in Redis
	KeyPrefix = "confirm_idem:"
	// DefaultTTL covers realistic client retry windows
	DefaultTTL = 15 * time.Minute
)

// Guard memoizes successful purchase confirmations by idempotency key.
type Guard interface {
	Remember(ctx context.Context, key string, result models.ConfirmResult) error
	Lookup(ctx context.Context, key string) (*models.ConfirmResult, bool, error)
}

// ScopedKey binds a caller token to the layout and session it was issued
// for, so the same token from another session never replays a result.
func ScopedKey(layoutID, sessionID, token string) string {
	return fmt.Sprintf("%s:%s:%s", layoutID, sessionID, token)
}

// RedisGuard stores results as JSON blobs with a TTL
type RedisGuard struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisGuard creates a Redis guard; ttl <= 0 uses DefaultTTL
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{Client: client, TTL: ttl}
}

func (g *RedisGuard) Remember(ctx context.Context, key string, result models.ConfirmResult) error {
	if g.Client == nil {
		return errors.New("redis client not initialized")
	}
	if !result.Success {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal confirm result: %w", err)
	}
	if err := g.Client.Set(ctx, KeyPrefix+key, data, g.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store confirm result in Redis: %w", err)
	}
	return nil
}

func (g *RedisGuard) Lookup(ctx context.Context, key string) (*models.ConfirmResult, bool, error) {
	if g.Client == nil {
		return nil, false, errors.New("redis client not initialized")
	}

	raw, err := g.Client.Get(ctx, KeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to get confirm result from Redis: %w", err)
	}

	var result models.ConfirmResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal confirm result: %w", err)
	}
	return &result, true, nil
}

type memoEntry struct {
	result    models.ConfirmResult
	expiresAt time.Time
}

// MemoryGuard is a process-local guard for single-instance deployments and
// tests. Expired entries are invisible to Lookup and purged by Run.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]memoEntry
	ttl     time.Duration
	clock   clock.Clock
}

func NewMemoryGuard(ttl time.Duration, clk clock.Clock) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryGuard{entries: make(map[string]memoEntry), ttl: ttl, clock: clk}
}

func (g *MemoryGuard) Remember(_ context.Context, key string, result models.ConfirmResult) error {
	if !result.Success {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[key] = memoEntry{result: cloneResult(result), expiresAt: g.clock.Now().Add(g.ttl)}
	return nil
}

func (g *MemoryGuard) Lookup(_ context.Context, key string) (*models.ConfirmResult, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !g.clock.Now().Before(entry.expiresAt) {
		delete(g.entries, key)
		return nil, false, nil
	}
	result := cloneResult(entry.result)
	return &result, true, nil
}

// Purge drops expired entries and returns how many were removed.
func (g *MemoryGuard) Purge() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	removed := 0
	for key, entry := range g.entries {
		if !now.Before(entry.expiresAt) {
			delete(g.entries, key)
			removed++
		}
	}
	return removed
}

func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Run purges expired entries every interval until ctx is cancelled.
func (g *MemoryGuard) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Purge()
		}
	}
}

func cloneResult(r models.ConfirmResult) models.ConfirmResult {
	r.Confirmed = cloneOutcomes(r.Confirmed)
	r.Failed = cloneOutcomes(r.Failed)
	return r
}

func cloneOutcomes(in []models.SeatOutcome) []models.SeatOutcome {
	if in == nil {
		return nil
	}
	out := make([]models.SeatOutcome, len(in))
	for i, o := range in {
		if o.ExpiresAt != nil {
			at := *o.ExpiresAt
			o.ExpiresAt = &at
		}
		if o.Price != nil {
			price := *o.Price
			o.Price = &price
		}
		out[i] = o
	}
	return out
}
