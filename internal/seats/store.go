package seats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-seating/internal/models"
)

var (
	ErrSeatNotFound      = errors.New("seat not found")
	ErrVersionConflict   = errors.New("seat version conflict")
	ErrInvalidTransition = errors.New("invalid seat transition")
)

// Mutation computes the next state of a seat from its current state. It must
// be pure: backends may call it more than once and discard the result. A
// mutation returns an error to abort the transition without writing.
type Mutation func(current models.Seat) (models.Seat, error)

// Store is the durable per-seat record. TryTransition is the only way an
// existing seat changes state.
type Store interface {
	Get(ctx context.Context, layoutID, seatUID string) (*models.Seat, error)

	// TryTransition applies mutate to the stored seat if and only if its
	// version equals expectedVersion, persisting the result with version
	// expectedVersion+1. It returns ErrVersionConflict when the stored
	// version differs and ErrSeatNotFound when the seat does not exist.
	TryTransition(ctx context.Context, layoutID, seatUID string, expectedVersion int64, mutate Mutation) (*models.Seat, error)

	ListByLayout(ctx context.Context, layoutID string) ([]models.Seat, error)
	ListHeldBySession(ctx context.Context, layoutID, sessionID string) ([]models.Seat, error)

	// ListExpiredHolds returns at most limit held seats whose expiry is at or
	// before now, across all layouts.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.Seat, error)

	// InsertSeats creates the seat universe of a freshly published layout.
	InsertSeats(ctx context.Context, seats []models.Seat) error

	Ping(ctx context.Context) error
}

var allowedEdges = map[models.SeatStatus]map[models.SeatStatus]bool{
	models.SeatStatusAvailable: {models.SeatStatusHeld: true},
	models.SeatStatusHeld: {
		models.SeatStatusHeld:      true,
		models.SeatStatusAvailable: true,
		models.SeatStatusSold:      true,
	},
}

// ValidateTransition checks that next is a legal successor of prev. It covers
// the status edge, the holder/expiry and buyer fields that go with each
// status, and that the seat identity is untouched. Session-level eligibility
// (who may extend or confirm a hold) is decided by the caller.
func ValidateTransition(prev, next models.Seat) error {
	if prev.LayoutID != next.LayoutID || prev.SeatUID != next.SeatUID ||
		prev.PriceTierID != next.PriceTierID || prev.SectionName != next.SectionName {
		return fmt.Errorf("%w: seat identity changed", ErrInvalidTransition)
	}

	if !allowedEdges[prev.Status][next.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
	}

	if err := checkStatusFields(next); err != nil {
		return err
	}

	if prev.Status == models.SeatStatusHeld && next.Status == models.SeatStatusSold &&
		next.SoldToSessionID != prev.HolderSessionID {
		return fmt.Errorf("%w: sold to %q but held by %q", ErrInvalidTransition, next.SoldToSessionID, prev.HolderSessionID)
	}
	return nil
}

func checkStatusFields(s models.Seat) error {
	held := s.HolderSessionID != "" || !s.HoldExpiresAt.IsZero()
	sold := s.SoldToSessionID != "" || !s.SoldAt.IsZero()

	switch s.Status {
	case models.SeatStatusAvailable:
		if held || sold {
			return fmt.Errorf("%w: available seat carries holder or buyer", ErrInvalidTransition)
		}
	case models.SeatStatusHeld:
		if s.HolderSessionID == "" || s.HoldExpiresAt.IsZero() {
			return fmt.Errorf("%w: held seat without holder and expiry", ErrInvalidTransition)
		}
		if sold {
			return fmt.Errorf("%w: held seat carries buyer", ErrInvalidTransition)
		}
	case models.SeatStatusSold:
		if held {
			return fmt.Errorf("%w: sold seat still carries a hold", ErrInvalidTransition)
		}
		if s.SoldToSessionID == "" {
			return fmt.Errorf("%w: sold seat without buyer", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s.Status)
	}
	return nil
}

// Apply runs mutate against current and validates the outcome. Backends call
// it inside their CAS section; the returned seat has its version bumped.
func Apply(current models.Seat, mutate Mutation) (models.Seat, error) {
	next, err := mutate(current)
	if err != nil {
		return models.Seat{}, err
	}
	if err := ValidateTransition(current, next); err != nil {
		return models.Seat{}, err
	}
	next.Version = current.Version + 1
	return next, nil
}

// ValidateNewSeat checks a seat about to be inserted at publish time.
func ValidateNewSeat(s models.Seat) error {
	switch {
	case s.LayoutID == "" || s.SeatUID == "":
		return errors.New("seat requires layout id and seat uid")
	case s.PriceTierID == "":
		return fmt.Errorf("seat %s has no price tier", s.SeatUID)
	case s.Status != models.SeatStatusAvailable:
		return fmt.Errorf("seat %s must be created available, got %q", s.SeatUID, s.Status)
	case s.Version != 0:
		return fmt.Errorf("seat %s must be created at version 0", s.SeatUID)
	case s.HolderSessionID != "" || !s.HoldExpiresAt.IsZero() || s.SoldToSessionID != "" || !s.SoldAt.IsZero():
		return fmt.Errorf("seat %s must be created without holder or buyer", s.SeatUID)
	}
	return nil
}

// Hold, Release and Sell build the common mutations. They only shape the new
// state; eligibility checks belong to the caller's mutation wrapper.

func Hold(sessionID string, expiresAt time.Time) func(models.Seat) models.Seat {
	return func(s models.Seat) models.Seat {
		s.Status = models.SeatStatusHeld
		s.HolderSessionID = sessionID
		s.HoldExpiresAt = expiresAt.UTC()
		return s
	}
}

func Release(s models.Seat) models.Seat {
	s.Status = models.SeatStatusAvailable
	s.HolderSessionID = ""
	s.HoldExpiresAt = time.Time{}
	return s
}

func Sell(at time.Time) func(models.Seat) models.Seat {
	return func(s models.Seat) models.Seat {
		s.SoldToSessionID = s.HolderSessionID
		s.SoldAt = at.UTC()
		s.Status = models.SeatStatusSold
		s.HolderSessionID = ""
		s.HoldExpiresAt = time.Time{}
		return s
	}
}
