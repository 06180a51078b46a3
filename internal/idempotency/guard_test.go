package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/clock"
	"ms-seating/internal/models"
)

var start = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func successResult() models.ConfirmResult {
	return models.ConfirmResult{
		LayoutID:     "layout-1",
		SessionID:    "s2",
		Success:      true,
		Confirmed:    []models.SeatOutcome{{SeatUID: "A1"}},
		Failed:       []models.SeatOutcome{},
		AmountCents:  5000,
		ChargedCents: 5000,
		Currency:     "USD",
		ConfirmedAt:  start,
	}
}

func TestScopedKey(t *testing.T) {
	assert.Equal(t, "layout-1:s1:k1", ScopedKey("layout-1", "s1", "k1"))
	assert.NotEqual(t, ScopedKey("layout-1", "s1", "k1"), ScopedKey("layout-1", "s2", "k1"))
}

func TestRedisGuard(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	guard := NewRedisGuard(client, time.Minute)

	_, ok, err := guard.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, guard.Remember(ctx, "k1", successResult()))
	assert.True(t, mr.Exists(KeyPrefix+"k1"))
	assert.Equal(t, time.Minute, mr.TTL(KeyPrefix+"k1"))

	got, ok, err := guard.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, successResult(), *got)

	mr.FastForward(time.Minute)
	_, ok, err = guard.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "memo expires with its TTL")
}

func TestRedisGuardIgnoresFailures(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	guard := NewRedisGuard(client, 0)
	assert.Equal(t, DefaultTTL, guard.TTL)

	failed := successResult()
	failed.Success = false
	require.NoError(t, guard.Remember(ctx, "k1", failed))
	assert.False(t, mr.Exists(KeyPrefix+"k1"))
}

func TestRedisGuardUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	guard := NewRedisGuard(client, time.Minute)
	_, _, err = guard.Lookup(context.Background(), "k1")
	assert.Error(t, err)
	assert.Error(t, guard.Remember(context.Background(), "k1", successResult()))

	empty := &RedisGuard{}
	_, _, err = empty.Lookup(context.Background(), "k1")
	assert.Error(t, err)
}

func TestMemoryGuardExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(start)
	guard := NewMemoryGuard(time.Minute, clk)

	require.NoError(t, guard.Remember(ctx, "k1", successResult()))

	clk.Advance(59 * time.Second)
	got, ok, err := guard.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, successResult(), *got)

	clk.Advance(time.Second)
	_, ok, err = guard.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryGuardReturnsCopies(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard(time.Minute, clock.NewFake(start))
	require.NoError(t, guard.Remember(ctx, "k1", successResult()))

	got, _, _ := guard.Lookup(ctx, "k1")
	got.Confirmed[0].SeatUID = "tampered"

	again, _, _ := guard.Lookup(ctx, "k1")
	assert.Equal(t, "A1", again.Confirmed[0].SeatUID)
}

func TestMemoryGuardCopiesPriceAndExpiry(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard(time.Minute, clock.NewFake(start))

	result := successResult()
	expires := start.Add(time.Minute)
	result.Confirmed[0].Price = &models.Price{TierID: "gold", PriceCents: 5000, Currency: "USD"}
	result.Confirmed[0].ExpiresAt = &expires
	require.NoError(t, guard.Remember(ctx, "k1", result))

	result.Confirmed[0].Price.PriceCents = 1
	*result.Confirmed[0].ExpiresAt = start

	got, ok, err := guard.Lookup(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	got.Confirmed[0].Price.PriceCents = 2
	*got.Confirmed[0].ExpiresAt = start.Add(time.Hour)

	again, _, _ := guard.Lookup(ctx, "k1")
	assert.Equal(t, int64(5000), again.Confirmed[0].Price.PriceCents)
	assert.True(t, start.Add(time.Minute).Equal(*again.Confirmed[0].ExpiresAt))
}

func TestMemoryGuardPurgeAndFailures(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(start)
	guard := NewMemoryGuard(time.Minute, clk)

	failed := successResult()
	failed.Success = false
	require.NoError(t, guard.Remember(ctx, "failed", failed))
	assert.Equal(t, 0, guard.Len())

	require.NoError(t, guard.Remember(ctx, "k1", successResult()))
	clk.Advance(30 * time.Second)
	require.NoError(t, guard.Remember(ctx, "k2", successResult()))
	clk.Advance(30 * time.Second)

	assert.Equal(t, 1, guard.Purge())
	assert.Equal(t, 1, guard.Len())
}

func TestMemoryGuardRunStopsOnCancel(t *testing.T) {
	guard := NewMemoryGuard(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		guard.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
