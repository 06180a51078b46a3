package models

import "time"

// OutcomeReason explains why a seat ended up on the failing side of a batch.
type OutcomeReason string

const (
	ReasonTaken         OutcomeReason = "taken"
	ReasonSold          OutcomeReason = "sold"
	ReasonLayoutExpired OutcomeReason = "layout_expired"
	ReasonNotFound      OutcomeReason = "not_found"
	ReasonNotHeld       OutcomeReason = "not_held"
	ReasonNotHolder     OutcomeReason = "not_holder"
	ReasonHoldExpired   OutcomeReason = "hold_expired"
	ReasonConflict      OutcomeReason = "conflict"
)

// Price is the effective price of one seat at lookup time.
type Price struct {
	TierID     string `json:"tier_id"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
}

type SeatOutcome struct {
	SeatUID   string        `json:"seat_uid"`
	Reason    OutcomeReason `json:"reason,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Price     *Price        `json:"price,omitempty"`
}

type HoldResult struct {
	LayoutID  string        `json:"layout_id"`
	SessionID string        `json:"session_id"`
	Held      []SeatOutcome `json:"held"`
	NotHeld   []SeatOutcome `json:"not_held"`
}

type ReleaseResult struct {
	LayoutID string        `json:"layout_id"`
	Released []SeatOutcome `json:"released"`
	Skipped  []SeatOutcome `json:"skipped"`
}

// ConfirmResult is the outcome of a purchase confirmation. Successful results
// are memoized against the caller's idempotency key and replayed verbatim.
type ConfirmResult struct {
	LayoutID     string        `json:"layout_id"`
	SessionID    string        `json:"session_id"`
	Success      bool          `json:"success"`
	Confirmed    []SeatOutcome `json:"confirmed"`
	Failed       []SeatOutcome `json:"failed"`
	AmountCents  int64         `json:"amount_cents"`
	ChargedCents int64         `json:"charged_cents"`
	Currency     string        `json:"currency,omitempty"`
	ConfirmedAt  time.Time     `json:"confirmed_at"`
}

// SessionHold is a read-only view of one active hold.
type SessionHold struct {
	Seat      Seat          `json:"seat"`
	ExpiresAt time.Time     `json:"expires_at"`
	Remaining time.Duration `json:"-"`
	// RemainingSeconds is Remaining rounded down, for clients.
	RemainingSeconds int64  `json:"remaining_seconds"`
	Price            *Price `json:"price,omitempty"`
}

// SeatView is one browse row.
type SeatView struct {
	SeatUID     string     `json:"seat_uid"`
	SectionName string     `json:"section_name"`
	RowLabel    string     `json:"row_label"`
	SeatLabel   string     `json:"seat_label"`
	Status      SeatStatus `json:"status"`
	Price       Price      `json:"price"`
}
