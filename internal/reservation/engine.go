package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-seating/internal/clock"
	"ms-seating/internal/idempotency"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
	"ms-seating/internal/monitoring"
	"ms-seating/internal/pricing"
	"ms-seating/internal/seats"
)

const (
	DefaultHoldTTL                = 600 * time.Second
	DefaultMaxHeldSeatsPerSession = 10
)

var (
	ErrInvalidRequest    = errors.New("invalid reservation request")
	ErrHoldLimitExceeded = errors.New("hold limit exceeded")
)

// LayoutGuard tells the engine whether a layout still accepts new holds.
type LayoutGuard interface {
	IsCurrentLayout(ctx context.Context, layoutID string) (bool, error)
}

// EventPublisher receives one event per operation that changed seats.
type EventPublisher interface {
	PublishSeatStatus(ctx context.Context, event models.SeatStatusChangeEvent) error
}

// Engine is the hold/release/confirm state machine. Every seat change goes
// through the store's TryTransition; a batch is a sequence of independent
// single-seat attempts and never fails atomically on per-seat conflicts.
type Engine struct {
	store      seats.Store
	pricer     pricing.Lookup
	guard      idempotency.Guard
	layouts    LayoutGuard
	publishers []EventPublisher
	clock      clock.Clock
	holdTTL    time.Duration
	maxHeld    int
	logger     *logger.Logger
	metrics    *monitoring.Metrics
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithHoldTTL sets the hold lifetime. Requests may ask for less, never more.
func WithHoldTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.holdTTL = d
		}
	}
}

func WithMaxHeldSeatsPerSession(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHeld = n
		}
	}
}

// WithLayoutGuard rejects new holds on layouts that are no longer current.
func WithLayoutGuard(g LayoutGuard) Option {
	return func(e *Engine) { e.layouts = g }
}

// WithPublisher adds a publisher; it can be given more than once.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publishers = append(e.publishers, p)
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds an engine. A nil guard falls back to an in-memory guard.
func NewEngine(store seats.Store, pricer pricing.Lookup, guard idempotency.Guard, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		pricer:  pricer,
		guard:   guard,
		clock:   clock.Real(),
		holdTTL: DefaultHoldTTL,
		maxHeld: DefaultMaxHeldSeatsPerSession,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.guard == nil {
		e.guard = idempotency.NewMemoryGuard(idempotency.DefaultTTL, e.clock)
	}
	return e
}

func (e *Engine) HoldTTL() time.Duration { return e.holdTTL }

func (e *Engine) MaxHeldSeatsPerSession() int { return e.maxHeld }

// ineligible aborts a mutation when the seat no longer qualifies.
type ineligible struct {
	reason models.OutcomeReason
}

func (i ineligible) Error() string { return "seat not eligible: " + string(i.reason) }

func reasonOf(err error) (models.OutcomeReason, bool) {
	var in ineligible
	if errors.As(err, &in) {
		return in.reason, true
	}
	return "", false
}

// transitionOnce reads the seat, asks check for eligibility and attempts the
// CAS. On a version conflict it re-reads and re-checks exactly once. The
// returned reason is empty when the transition was applied.
func (e *Engine) transitionOnce(
	ctx context.Context,
	op, layoutID, seatUID string,
	check func(seat models.Seat, now time.Time) (models.OutcomeReason, bool),
	apply func(seat models.Seat, now time.Time) models.Seat,
) (*models.Seat, models.OutcomeReason, error) {
	for attempt := 0; attempt < 2; attempt++ {
		seat, err := e.store.Get(ctx, layoutID, seatUID)
		if errors.Is(err, seats.ErrSeatNotFound) {
			return nil, models.ReasonNotFound, nil
		}
		if err != nil {
			return nil, "", err
		}

		now := e.clock.Now()
		if reason, ok := check(*seat, now); !ok {
			return seat, reason, nil
		}

		next, err := e.store.TryTransition(ctx, layoutID, seatUID, seat.Version, func(cur models.Seat) (models.Seat, error) {
			if reason, ok := check(cur, now); !ok {
				return models.Seat{}, ineligible{reason: reason}
			}
			return apply(cur, now), nil
		})
		switch {
		case err == nil:
			return next, "", nil
		case errors.Is(err, seats.ErrVersionConflict):
			e.metrics.Conflict(op)
			continue
		case errors.Is(err, seats.ErrSeatNotFound):
			return nil, models.ReasonNotFound, nil
		}
		if reason, ok := reasonOf(err); ok {
			return seat, reason, nil
		}
		return nil, "", err
	}
	return nil, models.ReasonConflict, nil
}

func (e *Engine) priceOf(ctx context.Context, seat models.Seat) *models.Price {
	if e.pricer == nil {
		return nil
	}
	price, err := e.pricer.PriceSeat(ctx, seat)
	if err != nil {
		e.logger.Warn("PRICING", fmt.Sprintf("Price lookup failed for %s/%s: %v", seat.LayoutID, seat.SeatUID, err))
		return nil
	}
	return &price
}

func (e *Engine) publish(ctx context.Context, layoutID, sessionID string, seatUIDs []string, status models.SeatStatus) {
	if len(seatUIDs) == 0 || len(e.publishers) == 0 {
		return
	}
	event := models.NewSeatStatusChangeEvent(layoutID, sessionID, seatUIDs, status, e.clock.Now())
	for _, p := range e.publishers {
		if err := p.PublishSeatStatus(ctx, event); err != nil {
			e.logger.Warn("EVENTS", fmt.Sprintf("Failed to publish %s event for %s: %v", status, layoutID, err))
		}
	}
}

func validate(layoutID, sessionID string, seatUIDs []string) ([]string, error) {
	switch {
	case layoutID == "":
		return nil, fmt.Errorf("%w: layout id is required", ErrInvalidRequest)
	case sessionID == "":
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	case len(seatUIDs) == 0:
		return nil, fmt.Errorf("%w: at least one seat is required", ErrInvalidRequest)
	}

	seen := make(map[string]bool, len(seatUIDs))
	out := make([]string, 0, len(seatUIDs))
	for _, uid := range seatUIDs {
		if uid == "" {
			return nil, fmt.Errorf("%w: empty seat id", ErrInvalidRequest)
		}
		if seen[uid] {
			continue
		}
		seen[uid] = true
		out = append(out, uid)
	}
	return out, nil
}

func uidsOf(outcomes []models.SeatOutcome) []string {
	out := make([]string, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.SeatUID
	}
	return out
}
