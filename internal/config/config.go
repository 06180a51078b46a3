package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Database    DatabaseConfig
	Reservation ReservationConfig
	Reaper      ReaperConfig
	Layout      LayoutConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	SeatStatus      string
	LayoutPublished string
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
}

type ReservationConfig struct {
	// SeatStore selects the seat backend: postgres, redis or memory.
	SeatStore              string
	HoldTTL                time.Duration
	MaxHeldSeatsPerSession int
	IdempotencyTTL         time.Duration
	PricingStrategy        string
}

type ReaperConfig struct {
	Interval  time.Duration
	BatchSize int
}

type LayoutConfig struct {
	// ServiceURL, when set, makes reads go to the geometry service instead
	// of the local tables.
	ServiceURL string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // SSE streams stay open
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_ADDR", "localhost:9092")),
			GroupID: getEnv("KAFKA_GROUP_ID", "ms-seating"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				SeatStatus:      getEnv("KAFKA_TOPIC_SEAT_STATUS", "ticketly.seats.status"),
				LayoutPublished: getEnv("KAFKA_TOPIC_LAYOUT_PUBLISHED", "ticketly.layouts.published"),
			},
		},
		Reservation: ReservationConfig{
			SeatStore:              strings.ToLower(getEnv("SEAT_STORE", "postgres")),
			HoldTTL:                time.Duration(getEnvInt("HOLD_TTL_SECONDS", 600)) * time.Second,
			MaxHeldSeatsPerSession: getEnvInt("MAX_HELD_SEATS_PER_SESSION", 10),
			IdempotencyTTL:         getEnvDuration("IDEMPOTENCY_TTL", 15*time.Minute),
			PricingStrategy:        getEnv("PRICING_STRATEGY", "base"),
		},
		Reaper: ReaperConfig{
			Interval:  time.Duration(getEnvInt("REAPER_INTERVAL_SECONDS", 15)) * time.Second,
			BatchSize: getEnvInt("REAPER_BATCH_SIZE", 500),
		},
		Layout: LayoutConfig{
			ServiceURL: getEnv("LAYOUT_SERVICE_URL", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
