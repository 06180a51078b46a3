package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-seating/internal/models"
	"ms-seating/internal/seats"
)

// holdExpiryKey is a sorted set of "layout|seat" members scored by hold
// expiry in unix milliseconds. It is shared by every layout so the reaper
// can sweep with a single range query.
const holdExpiryKey = "hold_expiry"

func seatKey(layoutID, seatUID string) string {
	return fmt.Sprintf("seat:%s:%s", layoutID, seatUID)
}

func layoutSeatsKey(layoutID string) string {
	return "layout_seats:" + layoutID
}

func sessionHoldsKey(layoutID, sessionID string) string {
	return fmt.Sprintf("session_holds:%s:%s", layoutID, sessionID)
}

func expiryMember(layoutID, seatUID string) string {
	return layoutID + "|" + seatUID
}

// Store keeps one JSON document per seat. TryTransition watches the seat key
// and commits the document and its indexes in one MULTI; a concurrent write
// aborts the EXEC and surfaces as a version conflict.
type Store struct {
	Client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{Client: client}
}

var _ seats.Store = (*Store)(nil)

func (r *Store) Get(ctx context.Context, layoutID, seatUID string) (*models.Seat, error) {
	raw, err := r.Client.Get(ctx, seatKey(layoutID, seatUID)).Bytes()
	if err == redis.Nil {
		return nil, seats.ErrSeatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get seat %s/%s: %w", layoutID, seatUID, err)
	}
	return decodeSeat(raw)
}

func (r *Store) TryTransition(ctx context.Context, layoutID, seatUID string, expectedVersion int64, mutate seats.Mutation) (*models.Seat, error) {
	key := seatKey(layoutID, seatUID)
	var next models.Seat

	err := r.Client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return seats.ErrSeatNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeSeat(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return seats.ErrVersionConflict
		}

		next, err = seats.Apply(*current, mutate)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.Status == models.SeatStatusHeld {
				pipe.SRem(ctx, sessionHoldsKey(layoutID, current.HolderSessionID), seatUID)
				pipe.ZRem(ctx, holdExpiryKey, expiryMember(layoutID, seatUID))
			}
			if next.Status == models.SeatStatusHeld {
				pipe.SAdd(ctx, sessionHoldsKey(layoutID, next.HolderSessionID), seatUID)
				pipe.ZAdd(ctx, holdExpiryKey, &redis.Z{
					Score:  float64(next.HoldExpiresAt.UnixMilli()),
					Member: expiryMember(layoutID, seatUID),
				})
			}
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return nil, seats.ErrVersionConflict
	case errors.Is(err, seats.ErrSeatNotFound), errors.Is(err, seats.ErrVersionConflict),
		errors.Is(err, seats.ErrInvalidTransition):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("transition seat %s/%s: %w", layoutID, seatUID, err)
	}
	return &next, nil
}

func (r *Store) ListByLayout(ctx context.Context, layoutID string) ([]models.Seat, error) {
	uids, err := r.Client.SMembers(ctx, layoutSeatsKey(layoutID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list seats of %s: %w", layoutID, err)
	}
	return r.load(ctx, layoutID, uids, func(models.Seat) bool { return true })
}

func (r *Store) ListHeldBySession(ctx context.Context, layoutID, sessionID string) ([]models.Seat, error) {
	uids, err := r.Client.SMembers(ctx, sessionHoldsKey(layoutID, sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list holds of %s in %s: %w", sessionID, layoutID, err)
	}
	return r.load(ctx, layoutID, uids, func(s models.Seat) bool { return s.HeldBy(sessionID) })
}

func (r *Store) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.Seat, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	members, err := r.Client.ZRangeByScore(ctx, holdExpiryKey, by).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		layoutID, seatUID, ok := strings.Cut(m, "|")
		if !ok {
			continue
		}
		keys = append(keys, seatKey(layoutID, seatUID))
	}

	list, err := r.mget(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	out := list[:0]
	for _, s := range list {
		if s.HoldExpired(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Store) InsertSeats(ctx context.Context, batch []models.Seat) error {
	if len(batch) == 0 {
		return nil
	}
	keys := make([]string, 0, len(batch))
	docs := make([][]byte, 0, len(batch))
	for _, seat := range batch {
		if err := seats.ValidateNewSeat(seat); err != nil {
			return err
		}
		data, err := json.Marshal(seat)
		if err != nil {
			return err
		}
		keys = append(keys, seatKey(seat.LayoutID, seat.SeatUID))
		docs = append(docs, data)
	}

	err := r.Client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := tx.Exists(ctx, keys...).Result()
		if err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%d of %d seats already exist", existing, len(keys))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, seat := range batch {
				pipe.Set(ctx, keys[i], docs[i], 0)
				pipe.SAdd(ctx, layoutSeatsKey(seat.LayoutID), seat.SeatUID)
			}
			return nil
		})
		return err
	}, keys...)
	if err != nil {
		return fmt.Errorf("insert %d seats: %w", len(batch), err)
	}
	return nil
}

func (r *Store) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Store) load(ctx context.Context, layoutID string, uids []string, keep func(models.Seat) bool) ([]models.Seat, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	sort.Strings(uids)
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = seatKey(layoutID, uid)
	}

	list, err := r.mget(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load seats of %s: %w", layoutID, err)
	}
	out := list[:0]
	for _, s := range list {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// mget loads seat documents, skipping keys that vanished between index read
// and fetch.
func (r *Store) mget(ctx context.Context, keys []string) ([]models.Seat, error) {
	values, err := r.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Seat, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		seat, err := decodeSeat([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, *seat)
	}
	return out, nil
}

func decodeSeat(raw []byte) (*models.Seat, error) {
	var seat models.Seat
	if err := json.Unmarshal(raw, &seat); err != nil {
		return nil, fmt.Errorf("decode seat: %w", err)
	}
	if !seat.HoldExpiresAt.IsZero() {
		seat.HoldExpiresAt = seat.HoldExpiresAt.UTC()
	}
	if !seat.SoldAt.IsZero() {
		seat.SoldAt = seat.SoldAt.UTC()
	}
	return &seat, nil
}
