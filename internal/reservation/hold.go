package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-seating/internal/layout"
	"ms-seating/internal/models"
	"ms-seating/internal/seats"
)

type HoldRequest struct {
	LayoutID  string
	SessionID string
	SeatUIDs  []string
	// TTL shortens the configured hold lifetime when positive. It can never
	// extend it.
	TTL time.Duration
}

// HoldSeats claims seats for a session. Each seat succeeds or fails on its
// own; the only batch-level rejection is the per-session seat cap, which is
// checked before any seat is touched.
func (e *Engine) HoldSeats(ctx context.Context, req HoldRequest) (*models.HoldResult, error) {
	start := time.Now()
	defer e.metrics.ObserveSince("hold", start)

	uids, err := validate(req.LayoutID, req.SessionID, req.SeatUIDs)
	if err != nil {
		return nil, err
	}
	ttl := req.TTL
	if ttl <= 0 || ttl > e.holdTTL {
		ttl = e.holdTTL
	}

	if err := e.admit(ctx, req.LayoutID, req.SessionID, uids); err != nil {
		return nil, err
	}

	result := &models.HoldResult{
		LayoutID:  req.LayoutID,
		SessionID: req.SessionID,
		Held:      []models.SeatOutcome{},
		NotHeld:   []models.SeatOutcome{},
	}

	if reason, blocked, err := e.layoutBlocked(ctx, req.LayoutID); err != nil {
		return nil, err
	} else if blocked {
		for _, uid := range uids {
			result.NotHeld = append(result.NotHeld, models.SeatOutcome{SeatUID: uid, Reason: reason})
			e.metrics.SeatOutcome("hold", string(reason))
		}
		e.logger.LogHold("HOLD", req.LayoutID, fmt.Sprintf("Rejected %d seats for %s: %s", len(uids), req.SessionID, reason))
		return result, nil
	}

	check := func(seat models.Seat, now time.Time) (models.OutcomeReason, bool) {
		return holdEligibility(seat, req.SessionID, now)
	}
	apply := func(seat models.Seat, now time.Time) models.Seat {
		return seats.Hold(req.SessionID, now.Add(ttl))(seat)
	}

	for _, uid := range uids {
		seat, reason, err := e.transitionOnce(ctx, "hold", req.LayoutID, uid, check, apply)
		if err != nil {
			return nil, fmt.Errorf("hold seat %s/%s: %w", req.LayoutID, uid, err)
		}
		if reason != "" {
			result.NotHeld = append(result.NotHeld, models.SeatOutcome{SeatUID: uid, Reason: reason})
			e.metrics.SeatOutcome("hold", string(reason))
			continue
		}
		expiresAt := seat.HoldExpiresAt
		result.Held = append(result.Held, models.SeatOutcome{
			SeatUID:   uid,
			ExpiresAt: &expiresAt,
			Price:     e.priceOf(ctx, *seat),
		})
		e.metrics.SeatOutcome("hold", "held")
	}

	e.logger.LogHold("HOLD", req.LayoutID, fmt.Sprintf("Session %s: %d held, %d not held",
		req.SessionID, len(result.Held), len(result.NotHeld)))
	e.publish(ctx, req.LayoutID, req.SessionID, uidsOf(result.Held), models.SeatStatusHeld)
	return result, nil
}

// holdEligibility: free seats, the caller's own holds and anybody's expired
// hold can be held. Expiry is judged against now, never against the reaper.
func holdEligibility(seat models.Seat, sessionID string, now time.Time) (models.OutcomeReason, bool) {
	switch seat.Status {
	case models.SeatStatusAvailable:
		return "", true
	case models.SeatStatusHeld:
		if seat.HolderSessionID == sessionID || seat.HoldExpired(now) {
			return "", true
		}
		return models.ReasonTaken, false
	case models.SeatStatusSold:
		return models.ReasonSold, false
	}
	return models.ReasonTaken, false
}

// admit enforces the per-session cap. Seats in the request the session
// already actively holds are extensions and do not count as new.
func (e *Engine) admit(ctx context.Context, layoutID, sessionID string, uids []string) error {
	held, err := e.store.ListHeldBySession(ctx, layoutID, sessionID)
	if err != nil {
		return fmt.Errorf("count holds of %s: %w", sessionID, err)
	}

	now := e.clock.Now()
	active := make(map[string]bool, len(held))
	for _, seat := range held {
		if !seat.HoldExpired(now) {
			active[seat.SeatUID] = true
		}
	}

	fresh := 0
	for _, uid := range uids {
		if !active[uid] {
			fresh++
		}
	}

	if fresh > e.maxHeld-len(active) {
		e.metrics.HoldRejected()
		e.logger.LogHold("HOLD", layoutID, fmt.Sprintf("Session %s rejected: holds %d, requested %d new, max %d",
			sessionID, len(active), fresh, e.maxHeld))
		return fmt.Errorf("%w: session holds %d seats, requested %d more, max %d",
			ErrHoldLimitExceeded, len(active), fresh, e.maxHeld)
	}
	return nil
}

// layoutBlocked reports whether new holds on layoutID must be refused and
// with which reason.
func (e *Engine) layoutBlocked(ctx context.Context, layoutID string) (models.OutcomeReason, bool, error) {
	if e.layouts == nil {
		return "", false, nil
	}
	current, err := e.layouts.IsCurrentLayout(ctx, layoutID)
	if errors.Is(err, layout.ErrLayoutNotFound) {
		return models.ReasonNotFound, true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check layout %s: %w", layoutID, err)
	}
	if !current {
		return models.ReasonLayoutExpired, true, nil
	}
	return "", false, nil
}
