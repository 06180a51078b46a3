package layout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-seating/internal/models"
)

var ErrLayoutNotFound = errors.New("layout not found")

// Catalog answers read-only questions about published layouts. The geometry
// component owns this data; this service only mirrors what it needs.
type Catalog interface {
	CurrentLayout(ctx context.Context, eventID string) (*models.SeatingLayout, error)
	Layout(ctx context.Context, layoutID string) (*models.SeatingLayout, error)
	PriceTiers(ctx context.Context, layoutID string) ([]models.PriceTier, error)
}

// Repository is the local bun-backed copy of published layouts and tiers.
type Repository struct {
	Bun *bun.DB
}

func NewRepository(bunDB *bun.DB) *Repository {
	return &Repository{Bun: bunDB}
}

var _ Catalog = (*Repository)(nil)

// CurrentLayout → latest published layout of an event
func (r *Repository) CurrentLayout(ctx context.Context, eventID string) (*models.SeatingLayout, error) {
	var layout models.SeatingLayout
	err := r.Bun.NewSelect().
		Model(&layout).
		Where("event_id = ?", eventID).
		Order("published_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no layout for event %s", ErrLayoutNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("current layout of %s: %w", eventID, err)
	}
	normalizeLayout(&layout)
	return &layout, nil
}

// Layout → one layout by id
func (r *Repository) Layout(ctx context.Context, layoutID string) (*models.SeatingLayout, error) {
	var layout models.SeatingLayout
	err := r.Bun.NewSelect().
		Model(&layout).
		Where("layout_id = ?", layoutID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLayoutNotFound, layoutID)
	}
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", layoutID, err)
	}
	normalizeLayout(&layout)
	return &layout, nil
}

// PriceTiers → every tier of a layout
func (r *Repository) PriceTiers(ctx context.Context, layoutID string) ([]models.PriceTier, error) {
	var tiers []models.PriceTier
	err := r.Bun.NewSelect().
		Model(&tiers).
		Where("layout_id = ?", layoutID).
		Order("tier_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("price tiers of %s: %w", layoutID, err)
	}
	return tiers, nil
}

// SaveLayout → insert a layout and its tiers in one transaction
func (r *Repository) SaveLayout(ctx context.Context, layout models.SeatingLayout, tiers []models.PriceTier) error {
	return r.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&layout).Exec(ctx); err != nil {
			return fmt.Errorf("insert layout %s: %w", layout.LayoutID, err)
		}
		if len(tiers) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&tiers).Exec(ctx); err != nil {
			return fmt.Errorf("insert tiers of %s: %w", layout.LayoutID, err)
		}
		return nil
	})
}

func normalizeLayout(l *models.SeatingLayout) {
	l.PublishedAt = l.PublishedAt.UTC()
	if !l.EventStartsAt.IsZero() {
		l.EventStartsAt = l.EventStartsAt.UTC()
	}
}
