package reservation

import (
	"context"
	"errors"
	"fmt"

	"ms-seating/internal/models"
)

// GetSessionHolds lists the session's holds that are still valid, with the
// time each has left.
func (e *Engine) GetSessionHolds(ctx context.Context, layoutID, sessionID string) ([]models.SessionHold, error) {
	if layoutID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: layout id and session id are required", ErrInvalidRequest)
	}

	held, err := e.store.ListHeldBySession(ctx, layoutID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list holds of %s: %w", sessionID, err)
	}

	now := e.clock.Now()
	out := make([]models.SessionHold, 0, len(held))
	for _, seat := range held {
		if seat.HoldExpired(now) {
			continue
		}
		remaining := seat.HoldExpiresAt.Sub(now)
		out = append(out, models.SessionHold{
			Seat:             seat,
			ExpiresAt:        seat.HoldExpiresAt,
			Remaining:        remaining,
			RemainingSeconds: int64(remaining.Seconds()),
			Price:            e.priceOf(ctx, seat),
		})
	}
	return out, nil
}

// BrowseSeats returns every seat of a layout as a buyer should see it: an
// expired hold shows as available even before the reaper resets it.
func (e *Engine) BrowseSeats(ctx context.Context, layoutID string) ([]models.SeatView, error) {
	if layoutID == "" {
		return nil, fmt.Errorf("%w: layout id is required", ErrInvalidRequest)
	}

	list, err := e.store.ListByLayout(ctx, layoutID)
	if err != nil {
		return nil, fmt.Errorf("list seats of %s: %w", layoutID, err)
	}

	now := e.clock.Now()
	out := make([]models.SeatView, 0, len(list))
	for _, seat := range list {
		view := models.SeatView{
			SeatUID:     seat.SeatUID,
			SectionName: seat.SectionName,
			RowLabel:    seat.RowLabel,
			SeatLabel:   seat.SeatLabel,
			Status:      seat.EffectiveStatus(now),
		}
		if e.pricer != nil {
			price, err := e.pricer.PriceSeat(ctx, seat)
			if err != nil {
				return nil, fmt.Errorf("price seat %s: %w", seat.SeatUID, err)
			}
			view.Price = price
		}
		out = append(out, view)
	}
	return out, nil
}

// SeatPrice is the current effective price of one seat.
func (e *Engine) SeatPrice(ctx context.Context, layoutID, seatUID string) (models.Price, error) {
	if e.pricer == nil {
		return models.Price{}, errors.New("pricing is not configured")
	}
	return e.pricer.EffectivePrice(ctx, layoutID, seatUID)
}
