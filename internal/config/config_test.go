package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SEAT_STORE", "HOLD_TTL_SECONDS", "MAX_HELD_SEATS_PER_SESSION", "IDEMPOTENCY_TTL",
		"REAPER_INTERVAL_SECONDS", "KAFKA_ADDR", "KAFKA_ENABLED", "PRICING_STRATEGY"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "postgres", cfg.Reservation.SeatStore)
	assert.Equal(t, 600*time.Second, cfg.Reservation.HoldTTL)
	assert.Equal(t, 10, cfg.Reservation.MaxHeldSeatsPerSession)
	assert.Equal(t, 15*time.Minute, cfg.Reservation.IdempotencyTTL)
	assert.Equal(t, "base", cfg.Reservation.PricingStrategy)
	assert.Equal(t, 15*time.Second, cfg.Reaper.Interval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, "ticketly.seats.status", cfg.Kafka.Topics.SeatStatus)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEAT_STORE", "Redis")
	t.Setenv("HOLD_TTL_SECONDS", "120")
	t.Setenv("MAX_HELD_SEATS_PER_SESSION", "4")
	t.Setenv("IDEMPOTENCY_TTL", "1h")
	t.Setenv("REAPER_INTERVAL_SECONDS", "5")
	t.Setenv("REAPER_BATCH_SIZE", "50")
	t.Setenv("KAFKA_ADDR", "k1:9092, k2:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("PRICING_STRATEGY", "scarcity+time_to_event")
	t.Setenv("LAYOUT_SERVICE_URL", "http://layouts:8080")

	cfg := Load()
	assert.Equal(t, "redis", cfg.Reservation.SeatStore)
	assert.Equal(t, 2*time.Minute, cfg.Reservation.HoldTTL)
	assert.Equal(t, 4, cfg.Reservation.MaxHeldSeatsPerSession)
	assert.Equal(t, time.Hour, cfg.Reservation.IdempotencyTTL)
	assert.Equal(t, 5*time.Second, cfg.Reaper.Interval)
	assert.Equal(t, 50, cfg.Reaper.BatchSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "scarcity+time_to_event", cfg.Reservation.PricingStrategy)
	assert.Equal(t, "http://layouts:8080", cfg.Layout.ServiceURL)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("HOLD_TTL_SECONDS", "-5")
	t.Setenv("MAX_HELD_SEATS_PER_SESSION", "lots")
	t.Setenv("IDEMPOTENCY_TTL", "soon")
	t.Setenv("AUTO_MIGRATE", "maybe")

	cfg := Load()
	assert.Equal(t, 600*time.Second, cfg.Reservation.HoldTTL)
	assert.Equal(t, 10, cfg.Reservation.MaxHeldSeatsPerSession)
	assert.Equal(t, 15*time.Minute, cfg.Reservation.IdempotencyTTL)
	assert.True(t, cfg.Database.AutoMigrate)
}
