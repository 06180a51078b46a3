package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SeatingLayout is one published seating chart for an event. Layouts are
// immutable once published; republishing creates a new layout id and a new
// set of seat rows.
type SeatingLayout struct {
	bun.BaseModel `bun:"table:seating_layouts"`

	LayoutID      string    `bun:"layout_id,pk" json:"layout_id"`
	EventID       string    `bun:"event_id,notnull" json:"event_id"`
	PublishedAt   time.Time `bun:"published_at,notnull" json:"published_at"`
	EventStartsAt time.Time `bun:"event_starts_at,nullzero" json:"event_starts_at,omitempty"`
}

// PriceTier is reference data owned by the layout geometry component.
type PriceTier struct {
	bun.BaseModel `bun:"table:price_tiers"`

	LayoutID       string `bun:"layout_id,pk" json:"layout_id"`
	TierID         string `bun:"tier_id,pk" json:"tier_id"`
	Currency       string `bun:"currency,notnull" json:"currency"`
	BasePriceCents int64  `bun:"base_price_cents,notnull" json:"base_price_cents"`
	ColorHex       string `bun:"color_hex" json:"color_hex"`
	Description    string `bun:"description" json:"description"`
}

// LayoutPublishedEvent is emitted by the geometry component when a layout
// goes live. It carries everything needed to create the seat universe.
type LayoutPublishedEvent struct {
	Layout SeatingLayout `json:"layout"`
	Tiers  []PriceTier   `json:"tiers"`
	Seats  []Seat        `json:"seats"`
}
