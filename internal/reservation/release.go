package reservation

import (
	"context"
	"fmt"
	"time"

	"ms-seating/internal/models"
	"ms-seating/internal/seats"
)

type ReleaseRequest struct {
	LayoutID  string
	SessionID string
	SeatUIDs  []string
}

// ReleaseSeats gives back seats held by the session, expired or not.
// Anything else is skipped, so releasing twice is harmless.
func (e *Engine) ReleaseSeats(ctx context.Context, req ReleaseRequest) (*models.ReleaseResult, error) {
	start := time.Now()
	defer e.metrics.ObserveSince("release", start)

	uids, err := validate(req.LayoutID, req.SessionID, req.SeatUIDs)
	if err != nil {
		return nil, err
	}

	result := &models.ReleaseResult{
		LayoutID: req.LayoutID,
		Released: []models.SeatOutcome{},
		Skipped:  []models.SeatOutcome{},
	}

	check := func(seat models.Seat, _ time.Time) (models.OutcomeReason, bool) {
		return releaseEligibility(seat, req.SessionID)
	}
	apply := func(seat models.Seat, _ time.Time) models.Seat {
		return seats.Release(seat)
	}

	for _, uid := range uids {
		_, reason, err := e.transitionOnce(ctx, "release", req.LayoutID, uid, check, apply)
		if err != nil {
			return nil, fmt.Errorf("release seat %s/%s: %w", req.LayoutID, uid, err)
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, models.SeatOutcome{SeatUID: uid, Reason: reason})
			e.metrics.SeatOutcome("release", string(reason))
			continue
		}
		result.Released = append(result.Released, models.SeatOutcome{SeatUID: uid})
		e.metrics.SeatOutcome("release", "released")
	}

	e.logger.LogHold("RELEASE", req.LayoutID, fmt.Sprintf("Session %s: %d released, %d skipped",
		req.SessionID, len(result.Released), len(result.Skipped)))
	e.publish(ctx, req.LayoutID, req.SessionID, uidsOf(result.Released), models.SeatStatusAvailable)
	return result, nil
}

func releaseEligibility(seat models.Seat, sessionID string) (models.OutcomeReason, bool) {
	switch {
	case seat.HeldBy(sessionID):
		return "", true
	case seat.Status == models.SeatStatusSold:
		return models.ReasonSold, false
	case seat.Status == models.SeatStatusHeld:
		return models.ReasonNotHolder, false
	default:
		return models.ReasonNotHeld, false
	}
}
