package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-seating/internal/clock"
	"ms-seating/internal/layout"
	"ms-seating/internal/models"
)

var ErrUnknownTier = errors.New("unknown price tier")

// DefaultFillTTL bounds how stale the section fill signal may get.
const DefaultFillTTL = 5 * time.Second

// Lookup answers what a seat costs right now. It never fails because a
// seat is held or sold.
type Lookup interface {
	EffectivePrice(ctx context.Context, layoutID, seatUID string) (models.Price, error)
	// PriceSeat prices a seat the caller already loaded.
	PriceSeat(ctx context.Context, seat models.Seat) (models.Price, error)
}

// SeatReader is the read side of the seat store that pricing needs.
type SeatReader interface {
	Get(ctx context.Context, layoutID, seatUID string) (*models.Seat, error)
	ListByLayout(ctx context.Context, layoutID string) ([]models.Seat, error)
}

type fillSnapshot struct {
	bySection map[string]float64
	takenAt   time.Time
}

// Service is the default Lookup. Layouts and tiers are immutable once
// published and are cached for the life of the process; section fill is
// cached for fillTTL.
type Service struct {
	seats    SeatReader
	catalog  layout.Catalog
	strategy Strategy
	clock    clock.Clock
	fillTTL  time.Duration

	mu      sync.Mutex
	tiers   map[string]map[string]models.PriceTier
	layouts map[string]models.SeatingLayout
	fill    map[string]fillSnapshot
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithFillTTL(d time.Duration) Option {
	return func(s *Service) { s.fillTTL = d }
}

func NewService(seatReader SeatReader, catalog layout.Catalog, strategy Strategy, opts ...Option) *Service {
	if strategy == nil {
		strategy = Base{}
	}
	s := &Service{
		seats:    seatReader,
		catalog:  catalog,
		strategy: strategy,
		clock:    clock.Real(),
		fillTTL:  DefaultFillTTL,
		tiers:    make(map[string]map[string]models.PriceTier),
		layouts:  make(map[string]models.SeatingLayout),
		fill:     make(map[string]fillSnapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Lookup = (*Service)(nil)

func (s *Service) StrategyName() string {
	return s.strategy.Name()
}

func (s *Service) EffectivePrice(ctx context.Context, layoutID, seatUID string) (models.Price, error) {
	seat, err := s.seats.Get(ctx, layoutID, seatUID)
	if err != nil {
		return models.Price{}, err
	}
	return s.PriceSeat(ctx, *seat)
}

func (s *Service) PriceSeat(ctx context.Context, seat models.Seat) (models.Price, error) {
	tier, err := s.tier(ctx, seat.LayoutID, seat.PriceTierID)
	if err != nil {
		return models.Price{}, err
	}
	lay, err := s.layout(ctx, seat.LayoutID)
	if err != nil {
		return models.Price{}, err
	}

	now := s.clock.Now()
	in := Input{Seat: seat, Tier: tier, Layout: lay, Now: now}
	if s.strategy.NeedsSectionFill() {
		fill, err := s.sectionFill(ctx, seat.LayoutID, now)
		if err != nil {
			return models.Price{}, err
		}
		in.SectionFill = fill[seat.SectionName]
	}

	return models.Price{
		TierID:     tier.TierID,
		PriceCents: s.strategy.Apply(in, tier.BasePriceCents),
		Currency:   tier.Currency,
	}, nil
}

func (s *Service) tier(ctx context.Context, layoutID, tierID string) (models.PriceTier, error) {
	s.mu.Lock()
	byID, ok := s.tiers[layoutID]
	s.mu.Unlock()

	if !ok {
		list, err := s.catalog.PriceTiers(ctx, layoutID)
		if err != nil {
			return models.PriceTier{}, fmt.Errorf("load tiers of %s: %w", layoutID, err)
		}
		byID = make(map[string]models.PriceTier, len(list))
		for _, t := range list {
			byID[t.TierID] = t
		}
		// An empty answer is not cached so a layout that arrives later is seen.
		if len(byID) > 0 {
			s.mu.Lock()
			s.tiers[layoutID] = byID
			s.mu.Unlock()
		}
	}

	t, ok := byID[tierID]
	if !ok {
		return models.PriceTier{}, fmt.Errorf("%w: %s in layout %s", ErrUnknownTier, tierID, layoutID)
	}
	return t, nil
}

func (s *Service) layout(ctx context.Context, layoutID string) (models.SeatingLayout, error) {
	s.mu.Lock()
	l, ok := s.layouts[layoutID]
	s.mu.Unlock()
	if ok {
		return l, nil
	}

	loaded, err := s.catalog.Layout(ctx, layoutID)
	if err != nil {
		return models.SeatingLayout{}, fmt.Errorf("load layout %s: %w", layoutID, err)
	}
	s.mu.Lock()
	s.layouts[layoutID] = *loaded
	s.mu.Unlock()
	return *loaded, nil
}

func (s *Service) sectionFill(ctx context.Context, layoutID string, now time.Time) (map[string]float64, error) {
	s.mu.Lock()
	snap, ok := s.fill[layoutID]
	s.mu.Unlock()
	if ok && now.Sub(snap.takenAt) < s.fillTTL {
		return snap.bySection, nil
	}

	list, err := s.seats.ListByLayout(ctx, layoutID)
	if err != nil {
		return nil, fmt.Errorf("section fill of %s: %w", layoutID, err)
	}
	bySection := SectionFill(list, now)

	s.mu.Lock()
	s.fill[layoutID] = fillSnapshot{bySection: bySection, takenAt: now}
	s.mu.Unlock()
	return bySection, nil
}

// SectionFill computes the share of non-available seats per section.
// Expired holds count as available.
func SectionFill(list []models.Seat, now time.Time) map[string]float64 {
	total := make(map[string]int)
	taken := make(map[string]int)
	for _, seat := range list {
		total[seat.SectionName]++
		if seat.EffectiveStatus(now) != models.SeatStatusAvailable {
			taken[seat.SectionName]++
		}
	}
	out := make(map[string]float64, len(total))
	for section, n := range total {
		out[section] = float64(taken[section]) / float64(n)
	}
	return out
}
