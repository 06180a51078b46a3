package pricing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/clock"
	"ms-seating/internal/models"
	"ms-seating/internal/seats"
	"ms-seating/internal/seats/memory"
)

var now = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

// MockCatalog is a mock implementation of the layout catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) CurrentLayout(ctx context.Context, eventID string) (*models.SeatingLayout, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SeatingLayout), args.Error(1)
}

func (m *MockCatalog) Layout(ctx context.Context, layoutID string) (*models.SeatingLayout, error) {
	args := m.Called(ctx, layoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SeatingLayout), args.Error(1)
}

func (m *MockCatalog) PriceTiers(ctx context.Context, layoutID string) ([]models.PriceTier, error) {
	args := m.Called(ctx, layoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PriceTier), args.Error(1)
}

func newCatalog(startsAt time.Time) *MockCatalog {
	c := new(MockCatalog)
	c.On("Layout", mock.Anything, "layout-1").
		Return(&models.SeatingLayout{LayoutID: "layout-1", EventID: "event-1", EventStartsAt: startsAt}, nil)
	c.On("PriceTiers", mock.Anything, "layout-1").
		Return([]models.PriceTier{{LayoutID: "layout-1", TierID: "gold", Currency: "USD", BasePriceCents: 5000}}, nil)
	return c
}

func seedSection(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	var batch []models.Seat
	for i := 1; i <= n; i++ {
		batch = append(batch, models.Seat{
			LayoutID:    "layout-1",
			SeatUID:     fmt.Sprintf("A%d", i),
			SectionName: "Orchestra",
			PriceTierID: "gold",
			Status:      models.SeatStatusAvailable,
		})
	}
	require.NoError(t, store.InsertSeats(context.Background(), batch))
}

func holdSeat(t *testing.T, store *memory.Store, uid string, until time.Time) {
	t.Helper()
	seat, err := store.Get(context.Background(), "layout-1", uid)
	require.NoError(t, err)
	_, err = store.TryTransition(context.Background(), "layout-1", uid, seat.Version, func(s models.Seat) (models.Seat, error) {
		return seats.Hold("s1", until)(s), nil
	})
	require.NoError(t, err)
}

func TestBaseStrategyReturnsTierPrice(t *testing.T) {
	store := memory.New()
	seedSection(t, store, 2)
	svc := NewService(store, newCatalog(time.Time{}), nil, WithClock(clock.NewFake(now)))

	price, err := svc.EffectivePrice(context.Background(), "layout-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, models.Price{TierID: "gold", PriceCents: 5000, Currency: "USD"}, price)
	assert.Equal(t, "base", svc.StrategyName())
}

func TestPricingIgnoresReservationState(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedSection(t, store, 2)
	holdSeat(t, store, "A1", now.Add(time.Minute))

	svc := NewService(store, newCatalog(time.Time{}), DefaultScarcity(), WithClock(clock.NewFake(now)))

	held, err := svc.EffectivePrice(ctx, "layout-1", "A1")
	require.NoError(t, err)
	free, err := svc.EffectivePrice(ctx, "layout-1", "A2")
	require.NoError(t, err)
	assert.Equal(t, held, free, "held and available seats in one section share a price")
	assert.Equal(t, int64(5500), held.PriceCents, "half-full section gets the first scarcity step")
}

func TestScarcityFillIsCached(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedSection(t, store, 4)
	clk := clock.NewFake(now)
	svc := NewService(store, newCatalog(time.Time{}), DefaultScarcity(), WithClock(clk), WithFillTTL(5*time.Second))

	price, err := svc.EffectivePrice(ctx, "layout-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), price.PriceCents)

	holdSeat(t, store, "A1", now.Add(time.Hour))
	holdSeat(t, store, "A2", now.Add(time.Hour))
	holdSeat(t, store, "A3", now.Add(time.Hour))

	price, err = svc.EffectivePrice(ctx, "layout-1", "A4")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), price.PriceCents, "fill snapshot still fresh")

	clk.Advance(5 * time.Second)
	price, err = svc.EffectivePrice(ctx, "layout-1", "A4")
	require.NoError(t, err)
	assert.Equal(t, int64(6250), price.PriceCents, "75% fill after refresh")
}

func TestTiersAndLayoutsAreCachedForever(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedSection(t, store, 2)
	catalog := newCatalog(time.Time{})
	svc := NewService(store, catalog, nil, WithClock(clock.NewFake(now)))

	for i := 0; i < 3; i++ {
		_, err := svc.EffectivePrice(ctx, "layout-1", "A1")
		require.NoError(t, err)
	}
	catalog.AssertNumberOfCalls(t, "PriceTiers", 1)
	catalog.AssertNumberOfCalls(t, "Layout", 1)
}

func TestPricingFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.InsertSeats(ctx, []models.Seat{{
		LayoutID: "layout-1", SeatUID: "Z1", SectionName: "Balcony", PriceTierID: "platinum", Status: models.SeatStatusAvailable,
	}}))
	svc := NewService(store, newCatalog(time.Time{}), nil)

	_, err := svc.EffectivePrice(ctx, "layout-1", "Z1")
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = svc.EffectivePrice(ctx, "layout-1", "nope")
	assert.ErrorIs(t, err, seats.ErrSeatNotFound)

	broken := new(MockCatalog)
	broken.On("PriceTiers", mock.Anything, "layout-1").Return(nil, errors.New("geometry down"))
	svc = NewService(store, broken, nil)
	_, err = svc.EffectivePrice(ctx, "layout-1", "Z1")
	assert.Error(t, err)
}

func TestTimeToEventSteps(t *testing.T) {
	s := DefaultTimeToEvent()
	tests := []struct {
		name string
		lead time.Duration
		want int64
	}{
		{"far out", 30 * 24 * time.Hour, 5000},
		{"within a week", 5 * 24 * time.Hour, 5250},
		{"within two days", 24 * time.Hour, 5750},
		{"same evening", 2 * time.Hour, 6250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{Now: now, Layout: models.SeatingLayout{EventStartsAt: now.Add(tt.lead)}}
			assert.Equal(t, tt.want, s.Apply(in, 5000))
		})
	}

	assert.Equal(t, int64(5000), s.Apply(Input{Now: now}, 5000), "no start time, no adjustment")
}

func TestChainAndParse(t *testing.T) {
	strategy, err := ParseStrategy("scarcity+time_to_event")
	require.NoError(t, err)
	assert.Equal(t, "scarcity+time_to_event", strategy.Name())
	assert.True(t, strategy.NeedsSectionFill())

	in := Input{Now: now, SectionFill: 0.95, Layout: models.SeatingLayout{EventStartsAt: now.Add(time.Hour)}}
	assert.Equal(t, int64(9375), strategy.Apply(in, 5000))

	base, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Base{}, base)

	_, err = ParseStrategy("surge")
	assert.Error(t, err)
}

func TestScaleNeverNegative(t *testing.T) {
	assert.Equal(t, int64(0), scale(5000, decimal.NewFromInt(-2)))
	assert.Equal(t, int64(3333), scale(10000, decimal.NewFromInt(1).Div(decimal.NewFromInt(3))))
}

func TestScaleRoundsHalfCentsUp(t *testing.T) {
	tests := []struct {
		cents      int64
		multiplier string
		want       int64
	}{
		{50, "1.15", 58},
		{90, "1.15", 104},
		{10, "1.05", 11},
		{2, "1.25", 3},
		{1999, "1.10", 2199},
		{333, "1.50", 500},
	}
	for _, tt := range tests {
		got := scale(tt.cents, decimal.RequireFromString(tt.multiplier))
		assert.Equal(t, tt.want, got, "%d * %s", tt.cents, tt.multiplier)
	}
}

func TestSectionFillTreatsExpiredHoldsAsAvailable(t *testing.T) {
	list := []models.Seat{
		{SectionName: "A", Status: models.SeatStatusHeld, HolderSessionID: "s1", HoldExpiresAt: now},
		{SectionName: "A", Status: models.SeatStatusSold, SoldToSessionID: "s1"},
		{SectionName: "B", Status: models.SeatStatusAvailable},
	}
	fill := SectionFill(list, now)
	assert.Equal(t, 0.5, fill["A"])
	assert.Equal(t, 0.0, fill["B"])
}
