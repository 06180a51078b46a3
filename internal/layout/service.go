package layout

import (
	"context"
	"errors"
	"fmt"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
	"ms-seating/internal/seats"
)

// LayoutSaver is the local layout storage written at publish time. Layout
// must read the same rows SaveLayout writes, never a remote catalog.
type LayoutSaver interface {
	Layout(ctx context.Context, layoutID string) (*models.SeatingLayout, error)
	SaveLayout(ctx context.Context, layout models.SeatingLayout, tiers []models.PriceTier) error
}

type Service struct {
	catalog Catalog
	saver   LayoutSaver
	store   seats.Store
	logger  *logger.Logger
}

func NewService(catalog Catalog, saver LayoutSaver, store seats.Store, log *logger.Logger) *Service {
	return &Service{catalog: catalog, saver: saver, store: store, logger: log}
}

func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Publish stores the layout and creates its seats. Every step checks local
// state first, so a redelivered event is a no-op and a retry after a partial
// failure finishes the job.
func (s *Service) Publish(ctx context.Context, ev models.LayoutPublishedEvent) error {
	if err := validateEvent(&ev); err != nil {
		return err
	}
	layoutID := ev.Layout.LayoutID

	_, err := s.saver.Layout(ctx, layoutID)
	switch {
	case errors.Is(err, ErrLayoutNotFound):
		if err := s.saver.SaveLayout(ctx, ev.Layout, ev.Tiers); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	existing, err := s.store.ListByLayout(ctx, layoutID)
	if err != nil {
		return fmt.Errorf("list seats of %s: %w", layoutID, err)
	}
	have := make(map[string]bool, len(existing))
	for _, seat := range existing {
		have[seat.SeatUID] = true
	}
	missing := make([]models.Seat, 0, len(ev.Seats))
	for _, seat := range ev.Seats {
		if !have[seat.SeatUID] {
			missing = append(missing, seat)
		}
	}
	if len(missing) == 0 {
		s.logger.Info("LAYOUT", fmt.Sprintf("Layout %s already published, skipping", layoutID))
		return nil
	}
	if err := s.store.InsertSeats(ctx, missing); err != nil {
		return fmt.Errorf("create seats of %s: %w", layoutID, err)
	}

	s.logger.Info("LAYOUT", fmt.Sprintf("Published layout %s for event %s: %d of %d seats created, %d tiers",
		layoutID, ev.Layout.EventID, len(missing), len(ev.Seats), len(ev.Tiers)))
	return nil
}

// IsCurrentLayout reports whether layoutID is the latest published layout of
// its event.
func (s *Service) IsCurrentLayout(ctx context.Context, layoutID string) (bool, error) {
	layout, err := s.catalog.Layout(ctx, layoutID)
	if err != nil {
		return false, err
	}
	current, err := s.catalog.CurrentLayout(ctx, layout.EventID)
	if err != nil {
		return false, err
	}
	return current.LayoutID == layoutID, nil
}

func validateEvent(ev *models.LayoutPublishedEvent) error {
	l := ev.Layout
	if l.LayoutID == "" || l.EventID == "" {
		return errors.New("layout requires layout id and event id")
	}
	if l.PublishedAt.IsZero() {
		return fmt.Errorf("layout %s has no publish time", l.LayoutID)
	}

	tiers := make(map[string]bool, len(ev.Tiers))
	for i := range ev.Tiers {
		t := &ev.Tiers[i]
		if t.LayoutID == "" {
			t.LayoutID = l.LayoutID
		}
		if t.LayoutID != l.LayoutID {
			return fmt.Errorf("tier %s belongs to layout %s", t.TierID, t.LayoutID)
		}
		if t.BasePriceCents < 0 {
			return fmt.Errorf("tier %s has a negative price", t.TierID)
		}
		tiers[t.TierID] = true
	}

	seen := make(map[string]bool, len(ev.Seats))
	for i := range ev.Seats {
		seat := &ev.Seats[i]
		if seat.LayoutID == "" {
			seat.LayoutID = l.LayoutID
		}
		if seat.Status == "" {
			seat.Status = models.SeatStatusAvailable
		}
		if seat.LayoutID != l.LayoutID {
			return fmt.Errorf("seat %s belongs to layout %s", seat.SeatUID, seat.LayoutID)
		}
		if !tiers[seat.PriceTierID] {
			return fmt.Errorf("seat %s references unknown tier %q", seat.SeatUID, seat.PriceTierID)
		}
		if seen[seat.SeatUID] {
			return fmt.Errorf("seat %s listed twice", seat.SeatUID)
		}
		seen[seat.SeatUID] = true
	}
	return nil
}
