package seats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/models"
)

var now = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func available() models.Seat {
	return models.Seat{
		LayoutID:    "layout-1",
		SeatUID:     "A1",
		SectionName: "Orchestra",
		PriceTierID: "gold",
		Status:      models.SeatStatusAvailable,
	}
}

func TestValidateTransitionEdges(t *testing.T) {
	avail := available()
	held := Hold("s1", now.Add(time.Minute))(avail)
	sold := Sell(now)(held)

	tests := []struct {
		name    string
		prev    models.Seat
		next    models.Seat
		wantErr bool
	}{
		{"available to held", avail, held, false},
		{"held to held extend", held, Hold("s1", now.Add(2*time.Minute))(held), false},
		{"held to held takeover", held, Hold("s2", now.Add(time.Minute))(held), false},
		{"held to available", held, Release(held), false},
		{"held to sold", held, sold, false},
		{"available to sold", avail, Sell(now)(avail), true},
		{"available to available", avail, avail, true},
		{"sold to available", sold, Release(sold), true},
		{"sold to held", sold, Hold("s2", now.Add(time.Minute))(sold), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.prev, tt.next)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTransitionFieldInvariants(t *testing.T) {
	held := Hold("s1", now.Add(time.Minute))(available())

	noExpiry := held
	noExpiry.HoldExpiresAt = time.Time{}
	assert.ErrorIs(t, ValidateTransition(available(), noExpiry), ErrInvalidTransition)

	leftover := Release(held)
	leftover.HolderSessionID = "s1"
	assert.ErrorIs(t, ValidateTransition(held, leftover), ErrInvalidTransition)

	moved := Release(held)
	moved.PriceTierID = "silver"
	assert.ErrorIs(t, ValidateTransition(held, moved), ErrInvalidTransition)

	wrongBuyer := Sell(now)(held)
	wrongBuyer.SoldToSessionID = "s2"
	assert.ErrorIs(t, ValidateTransition(held, wrongBuyer), ErrInvalidTransition)
}

func TestApplyBumpsVersion(t *testing.T) {
	seat := available()
	seat.Version = 4

	next, err := Apply(seat, func(s models.Seat) (models.Seat, error) {
		s = Hold("s1", now)(s)
		s.Version = 99
		return s, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), next.Version, "mutations cannot pick their own version")
}

func TestValidateNewSeat(t *testing.T) {
	assert.NoError(t, ValidateNewSeat(available()))

	seat := available()
	seat.HolderSessionID = "s1"
	assert.Error(t, ValidateNewSeat(seat))

	seat = available()
	seat.SeatUID = ""
	assert.Error(t, ValidateNewSeat(seat))
}
