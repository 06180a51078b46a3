package reservation

import (
	"context"
	"fmt"
	"time"

	"ms-seating/internal/idempotency"
	"ms-seating/internal/models"
	"ms-seating/internal/seats"
)

type ConfirmRequest struct {
	LayoutID  string
	SessionID string
	SeatUIDs  []string
	// AmountCents is what the caller believes it is charging. Capture
	// happens elsewhere; a mismatch with the effective price is only logged.
	AmountCents    int64
	IdempotencyKey string
}

// ConfirmPurchase turns the session's live holds into sales. A successful
// result is remembered under the idempotency key and replayed unchanged on
// retry; failed attempts are not remembered so they can be retried.
func (e *Engine) ConfirmPurchase(ctx context.Context, req ConfirmRequest) (*models.ConfirmResult, error) {
	start := time.Now()
	defer e.metrics.ObserveSince("confirm", start)

	uids, err := validate(req.LayoutID, req.SessionID, req.SeatUIDs)
	if err != nil {
		return nil, err
	}

	memoKey := ""
	if req.IdempotencyKey != "" {
		memoKey = idempotency.ScopedKey(req.LayoutID, req.SessionID, req.IdempotencyKey)
		cached, ok, err := e.guard.Lookup(ctx, memoKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if ok {
			e.metrics.Confirm("replayed")
			e.logger.LogHold("CONFIRM", req.LayoutID, fmt.Sprintf("Replaying confirmation for %s (key %s)", req.SessionID, req.IdempotencyKey))
			return cached, nil
		}
	}

	result := &models.ConfirmResult{
		LayoutID:    req.LayoutID,
		SessionID:   req.SessionID,
		Confirmed:   []models.SeatOutcome{},
		Failed:      []models.SeatOutcome{},
		AmountCents: req.AmountCents,
	}

	check := func(seat models.Seat, now time.Time) (models.OutcomeReason, bool) {
		return confirmEligibility(seat, req.SessionID, now)
	}
	apply := func(seat models.Seat, now time.Time) models.Seat {
		return seats.Sell(now)(seat)
	}

	for _, uid := range uids {
		seat, reason, err := e.transitionOnce(ctx, "confirm", req.LayoutID, uid, check, apply)
		if err != nil {
			return nil, fmt.Errorf("confirm seat %s/%s: %w", req.LayoutID, uid, err)
		}
		if reason != "" {
			result.Failed = append(result.Failed, models.SeatOutcome{SeatUID: uid, Reason: reason})
			e.metrics.SeatOutcome("confirm", string(reason))
			continue
		}

		price := e.priceOf(ctx, *seat)
		if price != nil {
			result.ChargedCents += price.PriceCents
			if result.Currency == "" {
				result.Currency = price.Currency
			}
		}
		result.Confirmed = append(result.Confirmed, models.SeatOutcome{SeatUID: uid, Price: price})
		result.ConfirmedAt = seat.SoldAt
		e.metrics.SeatOutcome("confirm", "sold")
	}

	result.Success = len(result.Failed) == 0
	e.publish(ctx, req.LayoutID, req.SessionID, uidsOf(result.Confirmed), models.SeatStatusSold)

	if !result.Success {
		e.metrics.Confirm("failed")
		e.logger.LogHold("CONFIRM", req.LayoutID, fmt.Sprintf("Session %s: %d confirmed, %d failed",
			req.SessionID, len(result.Confirmed), len(result.Failed)))
		return result, nil
	}

	e.metrics.Confirm("success")
	if result.AmountCents != result.ChargedCents {
		e.logger.Warn("CONFIRM", fmt.Sprintf("Session %s asserted %d cents, effective price is %d %s",
			req.SessionID, result.AmountCents, result.ChargedCents, result.Currency))
	}
	if memoKey != "" {
		if err := e.guard.Remember(ctx, memoKey, *result); err != nil {
			e.logger.Error("CONFIRM", fmt.Sprintf("Failed to remember confirmation %s: %v", req.IdempotencyKey, err))
		}
	}
	e.logger.LogHold("CONFIRM", req.LayoutID, fmt.Sprintf("Session %s confirmed %d seats for %d %s",
		req.SessionID, len(result.Confirmed), result.ChargedCents, result.Currency))
	return result, nil
}

// confirmEligibility: only the holder of a hold that is still valid at now
// may buy the seat.
func confirmEligibility(seat models.Seat, sessionID string, now time.Time) (models.OutcomeReason, bool) {
	switch {
	case seat.Status == models.SeatStatusSold:
		return models.ReasonSold, false
	case seat.Status == models.SeatStatusAvailable:
		return models.ReasonNotHeld, false
	case !seat.HeldBy(sessionID):
		return models.ReasonNotHolder, false
	case seat.HoldExpired(now):
		return models.ReasonHoldExpired, false
	}
	return "", true
}
