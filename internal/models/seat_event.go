package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatStatusChangeEvent is published whenever seats of a layout change status
// so browse views and downstream consumers can refresh.
type SeatStatusChangeEvent struct {
	EventID    string     `json:"event_id"`
	LayoutID   string     `json:"layout_id"`
	SessionID  string     `json:"session_id,omitempty"`
	SeatUIDs   []string   `json:"seat_uids"`
	Status     SeatStatus `json:"status"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewSeatStatusChangeEvent builds an event with a fresh id. The seat list is
// copied so callers can keep mutating their slice.
func NewSeatStatusChangeEvent(layoutID, sessionID string, seatUIDs []string, status SeatStatus, at time.Time) SeatStatusChangeEvent {
	seats := make([]string, len(seatUIDs))
	copy(seats, seatUIDs)
	return SeatStatusChangeEvent{
		EventID:    uuid.NewString(),
		LayoutID:   layoutID,
		SessionID:  sessionID,
		SeatUIDs:   seats,
		Status:     status,
		OccurredAt: at.UTC(),
	}
}
