package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ms-seating/internal/models"
	"ms-seating/internal/seats"
)

// Store keeps seats in process memory. All reads return copies so callers
// never observe a seat mid-transition.
type Store struct {
	mu      sync.RWMutex
	layouts map[string]map[string]models.Seat
}

func New() *Store {
	return &Store{layouts: make(map[string]map[string]models.Seat)}
}

var _ seats.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, layoutID, seatUID string) (*models.Seat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seat, ok := s.layouts[layoutID][seatUID]
	if !ok {
		return nil, seats.ErrSeatNotFound
	}
	return &seat, nil
}

func (s *Store) TryTransition(ctx context.Context, layoutID, seatUID string, expectedVersion int64, mutate seats.Mutation) (*models.Seat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.layouts[layoutID][seatUID]
	if !ok {
		return nil, seats.ErrSeatNotFound
	}
	if current.Version != expectedVersion {
		return nil, seats.ErrVersionConflict
	}

	next, err := seats.Apply(current, mutate)
	if err != nil {
		return nil, err
	}
	s.layouts[layoutID][seatUID] = next
	return &next, nil
}

func (s *Store) ListByLayout(ctx context.Context, layoutID string) ([]models.Seat, error) {
	return s.collect(ctx, layoutID, func(models.Seat) bool { return true })
}

func (s *Store) ListHeldBySession(ctx context.Context, layoutID, sessionID string) ([]models.Seat, error) {
	return s.collect(ctx, layoutID, func(seat models.Seat) bool { return seat.HeldBy(sessionID) })
}

func (s *Store) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.Seat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []models.Seat
	for _, layout := range s.layouts {
		for _, seat := range layout {
			if seat.HoldExpired(now) {
				out = append(out, seat)
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].HoldExpiresAt.Before(out[j].HoldExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InsertSeats(ctx context.Context, batch []models.Seat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, seat := range batch {
		if err := seats.ValidateNewSeat(seat); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seat := range batch {
		if _, exists := s.layouts[seat.LayoutID][seat.SeatUID]; exists {
			return fmt.Errorf("seat %s/%s already exists", seat.LayoutID, seat.SeatUID)
		}
	}
	for _, seat := range batch {
		layout, ok := s.layouts[seat.LayoutID]
		if !ok {
			layout = make(map[string]models.Seat)
			s.layouts[seat.LayoutID] = layout
		}
		layout[seat.SeatUID] = seat
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) collect(ctx context.Context, layoutID string, keep func(models.Seat) bool) ([]models.Seat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []models.Seat
	for _, seat := range s.layouts[layoutID] {
		if keep(seat) {
			out = append(out, seat)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SeatUID < out[j].SeatUID })
	return out, nil
}
