package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "available"
	SeatStatusHeld      SeatStatus = "held"
	SeatStatusSold      SeatStatus = "sold"
)

// Seat is the durable record of one reservable seat within a layout.
//
// HolderSessionID and HoldExpiresAt are set only while Status is held.
// SoldToSessionID and SoldAt are set only once Status is sold.
// Version grows by exactly one for every applied transition.
type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	LayoutID        string     `bun:"layout_id,pk" json:"layout_id"`
	SeatUID         string     `bun:"seat_uid,pk" json:"seat_uid"`
	SectionName     string     `bun:"section_name,notnull" json:"section_name"`
	RowLabel        string     `bun:"row_label" json:"row_label"`
	SeatLabel       string     `bun:"seat_label" json:"seat_label"`
	PriceTierID     string     `bun:"price_tier_id,notnull" json:"price_tier_id"`
	Status          SeatStatus `bun:"status,notnull" json:"status"`
	HolderSessionID string     `bun:"holder_session_id,nullzero" json:"holder_session_id,omitempty"`
	HoldExpiresAt   time.Time  `bun:"hold_expires_at,nullzero" json:"hold_expires_at,omitempty"`
	SoldToSessionID string     `bun:"sold_to_session_id,nullzero" json:"sold_to_session_id,omitempty"`
	SoldAt          time.Time  `bun:"sold_at,nullzero" json:"sold_at,omitempty"`
	Version         int64      `bun:"version,notnull" json:"version"`
}

// HeldBy reports whether the seat is held by sessionID, regardless of expiry.
func (s *Seat) HeldBy(sessionID string) bool {
	return s.Status == SeatStatusHeld && s.HolderSessionID == sessionID
}

// HoldExpired reports whether the seat carries a hold that is no longer valid
// at now. A hold with expiry T is valid strictly before T.
func (s *Seat) HoldExpired(now time.Time) bool {
	return s.Status == SeatStatusHeld && !now.Before(s.HoldExpiresAt)
}

// EffectiveStatus is the status a buyer should see at now: an expired hold
// that has not been reaped yet is already available.
func (s *Seat) EffectiveStatus(now time.Time) SeatStatus {
	if s.HoldExpired(now) {
		return SeatStatusAvailable
	}
	return s.Status
}
