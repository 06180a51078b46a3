package pricing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ms-seating/internal/models"
)

// Input is every signal a strategy may look at. Strategies are pure
// functions of it and must not reach out to stores themselves.
type Input struct {
	Seat   models.Seat
	Tier   models.PriceTier
	Layout models.SeatingLayout
	// SectionFill is the share of seats in the seat's section that are held
	// or sold, in [0, 1]. Zero when the strategy does not ask for it.
	SectionFill float64
	Now         time.Time
}

// Strategy adjusts a price in cents.
type Strategy interface {
	Name() string
	Apply(in Input, cents int64) int64
	NeedsSectionFill() bool
}

// Base returns the tier price unchanged.
type Base struct{}

func (Base) Name() string { return "base" }
func (Base) Apply(_ Input, cents int64) int64 { return cents }
func (Base) NeedsSectionFill() bool { return false }

// FillStep applies Multiplier once section fill reaches MinFill.
type FillStep struct {
	MinFill    float64
	Multiplier decimal.Decimal
}

// Scarcity raises prices as a section fills up. The step with the highest
// MinFill not above the current fill wins.
type Scarcity struct {
	Steps []FillStep
}

func DefaultScarcity() Scarcity {
	return Scarcity{Steps: []FillStep{
		{MinFill: 0.5, Multiplier: decimal.RequireFromString("1.10")},
		{MinFill: 0.75, Multiplier: decimal.RequireFromString("1.25")},
		{MinFill: 0.9, Multiplier: decimal.RequireFromString("1.50")},
	}}
}

func (Scarcity) Name() string { return "scarcity" }
func (Scarcity) NeedsSectionFill() bool { return true }

func (s Scarcity) Apply(in Input, cents int64) int64 {
	multiplier := decimal.NewFromInt(1)
	best := -1.0
	for _, step := range s.Steps {
		if in.SectionFill >= step.MinFill && step.MinFill > best {
			best = step.MinFill
			multiplier = step.Multiplier
		}
	}
	return scale(cents, multiplier)
}

// LeadStep applies Multiplier when the event starts within Within.
type LeadStep struct {
	Within     time.Duration
	Multiplier decimal.Decimal
}

// TimeToEvent raises prices as the event approaches. The tightest matching
// window wins. Layouts without a start time are left alone.
type TimeToEvent struct {
	Steps []LeadStep
}

func DefaultTimeToEvent() TimeToEvent {
	return TimeToEvent{Steps: []LeadStep{
		{Within: 7 * 24 * time.Hour, Multiplier: decimal.RequireFromString("1.05")},
		{Within: 48 * time.Hour, Multiplier: decimal.RequireFromString("1.15")},
		{Within: 6 * time.Hour, Multiplier: decimal.RequireFromString("1.25")},
	}}
}

func (TimeToEvent) Name() string { return "time_to_event" }
func (TimeToEvent) NeedsSectionFill() bool { return false }

func (s TimeToEvent) Apply(in Input, cents int64) int64 {
	if in.Layout.EventStartsAt.IsZero() {
		return cents
	}
	lead := in.Layout.EventStartsAt.Sub(in.Now)

	steps := append([]LeadStep(nil), s.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Within < steps[j].Within })
	for _, step := range steps {
		if lead <= step.Within {
			return scale(cents, step.Multiplier)
		}
	}
	return cents
}

// Chain runs strategies in order, feeding each the previous result.
type Chain []Strategy

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (c Chain) Apply(in Input, cents int64) int64 {
	for _, s := range c {
		cents = s.Apply(in, cents)
	}
	return cents
}

func (c Chain) NeedsSectionFill() bool {
	for _, s := range c {
		if s.NeedsSectionFill() {
			return true
		}
	}
	return false
}

// ParseStrategy builds a strategy from its configured name. Names can be
// joined with "+" to chain them, e.g. "scarcity+time_to_event".
func ParseStrategy(name string) (Strategy, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Base{}, nil
	}

	var chain Chain
	for _, part := range strings.Split(name, "+") {
		switch strings.TrimSpace(part) {
		case "base":
			chain = append(chain, Base{})
		case "scarcity":
			chain = append(chain, DefaultScarcity())
		case "time_to_event":
			chain = append(chain, DefaultTimeToEvent())
		default:
			return nil, fmt.Errorf("unknown pricing strategy %q", part)
		}
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

// scale multiplies and rounds half away from zero to whole cents, never
// going below zero.
func scale(cents int64, multiplier decimal.Decimal) int64 {
	v := decimal.NewFromInt(cents).Mul(multiplier).Round(0)
	if v.IsNegative() {
		return 0
	}
	return v.IntPart()
}
