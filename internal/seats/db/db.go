package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-seating/internal/models"
	"ms-seating/internal/seats"
)

// DB is the relational seat store. CAS is a conditional UPDATE on the
// version column; a zero row count means somebody else won.
type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

var _ seats.Store = (*DB)(nil)

// transitionColumns are the only columns a transition may write.
var transitionColumns = []string{
	"status",
	"holder_session_id",
	"hold_expires_at",
	"sold_to_session_id",
	"sold_at",
	"version",
}

// Get → fetch one seat by layout and uid
func (d *DB) Get(ctx context.Context, layoutID, seatUID string) (*models.Seat, error) {
	var seat models.Seat
	err := d.Bun.NewSelect().
		Model(&seat).
		Where("layout_id = ?", layoutID).
		Where("seat_uid = ?", seatUID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, seats.ErrSeatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get seat %s/%s: %w", layoutID, seatUID, err)
	}
	normalize(&seat)
	return &seat, nil
}

// TryTransition → read, mutate in memory, conditional write
func (d *DB) TryTransition(ctx context.Context, layoutID, seatUID string, expectedVersion int64, mutate seats.Mutation) (*models.Seat, error) {
	current, err := d.Get(ctx, layoutID, seatUID)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, seats.ErrVersionConflict
	}

	next, err := seats.Apply(*current, mutate)
	if err != nil {
		return nil, err
	}

	res, err := d.Bun.NewUpdate().
		Model(&next).
		Column(transitionColumns...).
		Where("layout_id = ?", layoutID).
		Where("seat_uid = ?", seatUID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update seat %s/%s: %w", layoutID, seatUID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update seat %s/%s: %w", layoutID, seatUID, err)
	}
	if rows == 0 {
		return nil, seats.ErrVersionConflict
	}
	return &next, nil
}

// ListByLayout → every seat of a layout ordered by uid
func (d *DB) ListByLayout(ctx context.Context, layoutID string) ([]models.Seat, error) {
	var list []models.Seat
	err := d.Bun.NewSelect().
		Model(&list).
		Where("layout_id = ?", layoutID).
		Order("seat_uid ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list seats of %s: %w", layoutID, err)
	}
	return normalizeAll(list), nil
}

// ListHeldBySession → seats currently held by one session, expired or not
func (d *DB) ListHeldBySession(ctx context.Context, layoutID, sessionID string) ([]models.Seat, error) {
	var list []models.Seat
	err := d.Bun.NewSelect().
		Model(&list).
		Where("layout_id = ?", layoutID).
		Where("status = ?", models.SeatStatusHeld).
		Where("holder_session_id = ?", sessionID).
		Order("seat_uid ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list holds of %s in %s: %w", sessionID, layoutID, err)
	}
	return normalizeAll(list), nil
}

// ListExpiredHolds → oldest expired holds first, across layouts
func (d *DB) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.Seat, error) {
	var list []models.Seat
	q := d.Bun.NewSelect().
		Model(&list).
		Where("status = ?", models.SeatStatusHeld).
		Where("hold_expires_at <= ?", now.UTC()).
		Order("hold_expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	return normalizeAll(list), nil
}

// InsertSeats → create the seat universe of a layout in one statement
func (d *DB) InsertSeats(ctx context.Context, batch []models.Seat) error {
	if len(batch) == 0 {
		return nil
	}
	for _, seat := range batch {
		if err := seats.ValidateNewSeat(seat); err != nil {
			return err
		}
	}
	if _, err := d.Bun.NewInsert().Model(&batch).Exec(ctx); err != nil {
		return fmt.Errorf("insert %d seats: %w", len(batch), err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

// normalize pins timestamps to UTC so values compare equal across drivers.
func normalize(s *models.Seat) {
	if !s.HoldExpiresAt.IsZero() {
		s.HoldExpiresAt = s.HoldExpiresAt.UTC()
	}
	if !s.SoldAt.IsZero() {
		s.SoldAt = s.SoldAt.UTC()
	}
}

func normalizeAll(list []models.Seat) []models.Seat {
	for i := range list {
		normalize(&list[i])
	}
	return list
}
