// Package seatstest is the behavioural contract every seats.Store backend
// must pass.
package seatstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/models"
	"ms-seating/internal/seats"
)

// Factory returns an empty store. Cleanup is the factory's job via t.Cleanup.
type Factory func(t *testing.T) seats.Store

// Base is the reference instant used by the suite. Whole seconds keep it
// stable across backends that truncate sub-second precision.
var Base = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

// NewSeat builds an available seat at version 0.
func NewSeat(layoutID, seatUID, tierID string) models.Seat {
	return models.Seat{
		LayoutID:    layoutID,
		SeatUID:     seatUID,
		SectionName: "Orchestra",
		RowLabel:    seatUID[:1],
		SeatLabel:   seatUID[1:],
		PriceTierID: tierID,
		Status:      models.SeatStatusAvailable,
	}
}

func holdFor(session string, until time.Time) seats.Mutation {
	return func(s models.Seat) (models.Seat, error) {
		return seats.Hold(session, until)(s), nil
	}
}

func release(s models.Seat) (models.Seat, error) {
	return seats.Release(s), nil
}

// Run executes the full contract against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetUnknownSeat", func(t *testing.T) { testGetUnknownSeat(t, newStore(t)) })
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("InsertRejectsInvalidSeats", func(t *testing.T) { testInsertRejectsInvalidSeats(t, newStore(t)) })
	t.Run("TransitionBumpsVersion", func(t *testing.T) { testTransitionBumpsVersion(t, newStore(t)) })
	t.Run("StaleVersionConflicts", func(t *testing.T) { testStaleVersionConflicts(t, newStore(t)) })
	t.Run("TransitionUnknownSeat", func(t *testing.T) { testTransitionUnknownSeat(t, newStore(t)) })
	t.Run("IllegalEdgesRejected", func(t *testing.T) { testIllegalEdgesRejected(t, newStore(t)) })
	t.Run("MutationErrorAborts", func(t *testing.T) { testMutationErrorAborts(t, newStore(t)) })
	t.Run("ListQueries", func(t *testing.T) { testListQueries(t, newStore(t)) })
	t.Run("ListExpiredHolds", func(t *testing.T) { testListExpiredHolds(t, newStore(t)) })
	t.Run("ConcurrentTransitionsHaveOneWinner", func(t *testing.T) { testConcurrentSingleWinner(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func seed(t *testing.T, store seats.Store, batch ...models.Seat) {
	t.Helper()
	require.NoError(t, store.InsertSeats(context.Background(), batch))
}

func testGetUnknownSeat(t *testing.T, store seats.Store) {
	seat, err := store.Get(context.Background(), "layout-x", "A1")
	assert.ErrorIs(t, err, seats.ErrSeatNotFound)
	assert.Nil(t, seat)
}

func testInsertAndGet(t *testing.T, store seats.Store) {
	ctx := context.Background()
	seed(t, store, NewSeat("layout-1", "A1", "gold"), NewSeat("layout-1", "A2", "gold"))

	seat, err := store.Get(ctx, "layout-1", "A2")
	require.NoError(t, err)
	assert.Equal(t, "layout-1", seat.LayoutID)
	assert.Equal(t, "A2", seat.SeatUID)
	assert.Equal(t, "gold", seat.PriceTierID)
	assert.Equal(t, "Orchestra", seat.SectionName)
	assert.Equal(t, models.SeatStatusAvailable, seat.Status)
	assert.Equal(t, int64(0), seat.Version)
	assert.Empty(t, seat.HolderSessionID)
	assert.True(t, seat.HoldExpiresAt.IsZero())

	_, err = store.Get(ctx, "layout-2", "A2")
	assert.ErrorIs(t, err, seats.ErrSeatNotFound)
}

func testInsertRejectsInvalidSeats(t *testing.T, store seats.Store) {
	ctx := context.Background()

	held := NewSeat("layout-1", "A1", "gold")
	held.Status = models.SeatStatusHeld
	assert.Error(t, store.InsertSeats(ctx, []models.Seat{held}))

	versioned := NewSeat("layout-1", "A1", "gold")
	versioned.Version = 3
	assert.Error(t, store.InsertSeats(ctx, []models.Seat{versioned}))

	noTier := NewSeat("layout-1", "A1", "")
	assert.Error(t, store.InsertSeats(ctx, []models.Seat{noTier}))

	_, err := store.Get(ctx, "layout-1", "A1")
	assert.ErrorIs(t, err, seats.ErrSeatNotFound)
}

func testTransitionBumpsVersion(t *testing.T, store seats.Store) {
	ctx := context.Background()
	seed(t, store, NewSeat("layout-1", "A1", "gold"))
	until := Base.Add(time.Minute)

	held, err := store.TryTransition(ctx, "layout-1", "A1", 0, holdFor("s1", until))
	require.NoError(t, err)
	assert.Equal(t, int64(1), held.Version)
	assert.Equal(t, models.SeatStatusHeld, held.Status)

	stored, err := store.Get(ctx, "layout-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, "s1", stored.HolderSessionID)
	assert.True(t, until.Equal(stored.HoldExpiresAt), "expiry %s, want %s", stored.HoldExpiresAt, until)

	released, err := store.TryTransition(ctx, "layout-1", "A1", 1, release)
	require.NoError(t, err)
	assert.Equal(t, int64(2), released.Version)

	_, err = store.TryTransition(ctx, "layout-1", "A1", 2, holdFor("s2", until))
	require.NoError(t, err)

	sold, err := store.TryTransition(ctx, "layout-1", "A1", 3, func(s models.Seat) (models.Seat, error) {
		return seats.Sell(Base)(s), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), sold.Version)

	stored, err = store.Get(ctx, "layout-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, models.SeatStatusSold, stored.Status)
	assert.Equal(t, "s2", stored.SoldToSessionID)
	assert.Empty(t, stored.HolderSessionID)
	assert.True(t, stored.HoldExpiresAt.IsZero())
	assert.Equal(t, int64(4), stored.Version)
}

func testStaleVersionConflicts(t *testing.T, store seats.Store) {
	ctx := context.Background()
	seed(t, store, NewSeat("layout-1", "A1", "gold"))

	_, err := store.TryTransition(ctx, "layout-1", "A1", 0, holdFor("s1", Base.Add(time.Minute)))
	require.NoError(t, err)

	_, err = store.TryTransition(ctx, "layout-1", "A1", 0, holdFor("s2", Base.Add(time.Minute)))
	assert.ErrorIs(t, err, seats.ErrVersionConflict)

	_, err = store.TryTransition(ctx, "layout-1", "A1", 7, release)
	assert.ErrorIs(t, err, seats.ErrVersionConflict)

	stored, err := store.Get(ctx, "layout-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "s1", stored.HolderSessionID)
	assert.Equal(t, int64(1), stored.Version)
}

func testTransitionUnknownSeat(t *testing.T, store seats.Store) {
	_, err := store.TryTransition(context.Background(), "layout-1", "Z9", 0, holdFor("s1", Base))
	assert.ErrorIs(t, err, seats.ErrSeatNotFound)
}

func testIllegalEdgesRejected(t *testing.T, store seats.Store) {
	ctx := context.Background()
	seed(t, store, NewSeat("layout-1", "A1", "gold"))

	_, err := store.TryTransition(ctx, "layout-1", "A1", 0, func(s models.Seat) (models.Seat, error) {
		s.Status = models.SeatStatusSold
		s.SoldToSessionID = "s1"
		s.SoldAt = Base
		return s, nil
	})
	assert.ErrorIs(t, err, seats.ErrInvalidTransition)

	_, err = store.TryTransition(ctx, "layout-1", "A1", 0, func(s models.Seat) (models.Seat, error) {
		s.Status = models.SeatStatusHeld
		return s, nil
	})
	assert.ErrorIs(t, err, seats.ErrInvalidTransition, "held without holder must be rejected")

	stored, err := store.Get(ctx, "layout-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, models.SeatStatusAvailable, stored.Status)
	assert.Equal(t, int64(0), stored.Version)
}

func testMutationErrorAborts(t *testing.T, store seats.Store) {
	ctx := context.Background()
	seed(t, store, NewSeat("layout-1", "A1", "gold"))
	errNope := errors.New("nope")

	_, err := store.TryTransition(ctx, "layout-1", "A1", 0, func(models.Seat) (models.Seat, error) {
		return models.Seat{}, errNope
	})
	assert.ErrorIs(t, err, errNope)

	stored, err := store.Get(ctx, "layout-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
}

func testListQueries(t *testing.T, store seats.Store) {
	ctx := context.Background()
	seed(t, store,
		NewSeat("layout-1", "B1", "gold"),
		NewSeat("layout-1", "A1", "gold"),
		NewSeat("layout-1", "A2", "silver"),
		NewSeat("layout-2", "A1", "gold"),
	)
	until := Base.Add(time.Minute)

	_, err := store.TryTransition(ctx, "layout-1", "A1", 0, holdFor("s1", until))
	require.NoError(t, err)
	_, err = store.TryTransition(ctx, "layout-1", "B1", 0, holdFor("s1", until))
	require.NoError(t, err)
	_, err = store.TryTransition(ctx, "layout-1", "A2", 0, holdFor("s2", until))
	require.NoError(t, err)
	_, err = store.TryTransition(ctx, "layout-2", "A1", 0, holdFor("s1", until))
	require.NoError(t, err)

	all, err := store.ListByLayout(ctx, "layout-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "B1"}, uids(all))

	mine, err := store.ListHeldBySession(ctx, "layout-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B1"}, uids(mine))

	_, err = store.TryTransition(ctx, "layout-1", "B1", 1, release)
	require.NoError(t, err)

	mine, err = store.ListHeldBySession(ctx, "layout-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, uids(mine))

	none, err := store.ListByLayout(ctx, "layout-unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListExpiredHolds(t *testing.T, store seats.Store) {
	ctx := context.Background()
	var batch []models.Seat
	for i := 1; i <= 5; i++ {
		batch = append(batch, NewSeat("layout-1", fmt.Sprintf("A%d", i), "gold"))
	}
	seed(t, store, batch...)

	for i := 1; i <= 5; i++ {
		until := Base.Add(time.Duration(i) * time.Second)
		_, err := store.TryTransition(ctx, "layout-1", fmt.Sprintf("A%d", i), 0, holdFor("s1", until))
		require.NoError(t, err)
	}

	expired, err := store.ListExpiredHolds(ctx, Base.Add(3*time.Second), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A1", "A2", "A3"}, uids(expired), "a hold expiring exactly now is expired")

	limited, err := store.ListExpiredHolds(ctx, Base.Add(time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := store.ListExpiredHolds(ctx, Base, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = store.TryTransition(ctx, "layout-1", "A1", 1, release)
	require.NoError(t, err)
	expired, err = store.ListExpiredHolds(ctx, Base.Add(3*time.Second), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A2", "A3"}, uids(expired))
}

func testConcurrentSingleWinner(t *testing.T, store seats.Store) {
	ctx := context.Background()
	seed(t, store, NewSeat("layout-1", "A1", "gold"))

	const contenders = 16
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, err := store.TryTransition(ctx, "layout-1", "A1", 0, holdFor(fmt.Sprintf("s%d", n), Base.Add(time.Minute)))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, seats.ErrVersionConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(contenders-1), conflicts.Load())

	stored, err := store.Get(ctx, "layout-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func uids(list []models.Seat) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.SeatUID)
	}
	return out
}
