package reaper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ms-seating/internal/clock"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
	"ms-seating/internal/monitoring"
	"ms-seating/internal/seats"
)

const (
	DefaultInterval  = 15 * time.Second
	DefaultBatchSize = 500
)

// Publisher receives the seats a sweep gave back, one event per layout.
type Publisher interface {
	PublishSeatStatus(ctx context.Context, event models.SeatStatusChangeEvent) error
}

// Report summarizes one sweep.
type Report struct {
	Found     int
	Released  int
	Conflicts int
}

// Reaper periodically returns expired holds to available. Correctness of
// holds never depends on it: expiry is enforced by the engine on every
// attempt, the reaper only keeps the stored status tidy.
type Reaper struct {
	store      seats.Store
	clock      clock.Clock
	interval   time.Duration
	batchSize  int
	publishers []Publisher
	logger     *logger.Logger
	metrics    *monitoring.Metrics
}

type Option func(*Reaper)

func WithClock(c clock.Clock) Option {
	return func(r *Reaper) { r.clock = c }
}

func WithInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Reaper) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(r *Reaper) {
		if p != nil {
			r.publishers = append(r.publishers, p)
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Reaper) { r.logger = l }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Reaper) { r.metrics = m }
}

func New(store seats.Store, opts ...Option) *Reaper {
	r := &Reaper{
		store:     store,
		clock:     clock.Real(),
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.LogReaper(fmt.Sprintf("Started: sweeping expired holds every %s (batch %d)", r.interval, r.batchSize))

	for {
		select {
		case <-ctx.Done():
			r.logger.LogReaper("Stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("REAPER", fmt.Sprintf("Sweep failed: %v", err))
			}
		}
	}
}

// Sweep releases one batch of expired holds. Seats that changed since they
// were listed are skipped; a racing hold or confirm has already decided them.
func (r *Reaper) Sweep(ctx context.Context) (Report, error) {
	now := r.clock.Now()
	expired, err := r.store.ListExpiredHolds(ctx, now, r.batchSize)
	if err != nil {
		r.metrics.SweepFailed()
		return Report{}, fmt.Errorf("list expired holds: %w", err)
	}

	report := Report{Found: len(expired)}
	released := make(map[string][]string)

	for _, seat := range expired {
		_, err := r.store.TryTransition(ctx, seat.LayoutID, seat.SeatUID, seat.Version, func(cur models.Seat) (models.Seat, error) {
			if !cur.HoldExpired(now) {
				return models.Seat{}, errStillHeld
			}
			return seats.Release(cur), nil
		})
		switch {
		case err == nil:
			report.Released++
			released[seat.LayoutID] = append(released[seat.LayoutID], seat.SeatUID)
		case errors.Is(err, seats.ErrVersionConflict), errors.Is(err, errStillHeld), errors.Is(err, seats.ErrSeatNotFound):
			report.Conflicts++
		default:
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			r.logger.Warn("REAPER", fmt.Sprintf("Failed to release %s/%s: %v", seat.LayoutID, seat.SeatUID, err))
		}
	}

	r.metrics.Sweep(report.Found, report.Released, report.Conflicts)
	if report.Found > 0 {
		r.logger.LogReaper(fmt.Sprintf("Swept %d expired holds: %d released, %d skipped",
			report.Found, report.Released, report.Conflicts))
	}
	r.publish(ctx, released, now)
	return report, nil
}

var errStillHeld = errors.New("hold no longer expired")

func (r *Reaper) publish(ctx context.Context, released map[string][]string, now time.Time) {
	if len(r.publishers) == 0 {
		return
	}
	layouts := make([]string, 0, len(released))
	for layoutID := range released {
		layouts = append(layouts, layoutID)
	}
	sort.Strings(layouts)

	for _, layoutID := range layouts {
		event := models.NewSeatStatusChangeEvent(layoutID, "", released[layoutID], models.SeatStatusAvailable, now)
		for _, p := range r.publishers {
			if err := p.PublishSeatStatus(ctx, event); err != nil {
				r.logger.Warn("REAPER", fmt.Sprintf("Failed to publish release of %d seats in %s: %v",
					len(event.SeatUIDs), layoutID, err))
			}
		}
	}
}
