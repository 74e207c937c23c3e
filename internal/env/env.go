package env

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	RelaySecret           = "RELAY_SECRET"
	Port                  = "PORT"
	RoomTimeout           = "ROOM_TIMEOUT"
	RoomSweepInterval     = "ROOM_SWEEP_INTERVAL"
	MaxRooms              = "MAX_ROOMS"
	RateLimitWindow       = "RATE_LIMIT_WINDOW"
	RateLimitMax          = "RATE_LIMIT_MAX"
	RateLimitWarn         = "RATE_LIMIT_WARN"
	MaxPayloadBytes       = "MAX_PAYLOAD_BYTES"
	EmptyRoomTimeout      = "EMPTY_ROOM_TIMEOUT"
	SnapshotCheckInterval = "SNAPSHOT_CHECK_INTERVAL"
	SnapshotTTL           = "SNAPSHOT_TTL"
	SnapshotBackend       = "SNAPSHOT_BACKEND"
	SnapshotTable         = "SNAPSHOT_TABLE"
	ShutdownGrace         = "SHUTDOWN_GRACE"
	RedisURL              = "REDIS_URL"
	RedisPass             = "REDIS_PASS"
	RedisDB               = "REDIS_DB"
	RedisMaxRetries       = "REDIS_MAX_RETRIES"
	AWSRegion             = "AWS_REGION"
	AWSID                 = "AWS_ID"
	AWSSecret             = "AWS_SECRET"
	AWSToken              = "AWS_TOKEN"
	DynamoDBEndpoint      = "DYNAMODB_ENDPOINT"
	WebhookURL            = "WEBHOOK_URL"
	AdminSecret           = "ADMIN_SECRET"
	AllowedOrigins        = "ALLOWED_ORIGINS"
	LogLevel              = "LOG_LEVEL"
)

var ErrMissingSecret = errors.New("env: required environment variable not set: " + RelaySecret)

var defaults = map[string]any{
	Port:                  "8080",
	RoomTimeout:           "10m",
	RoomSweepInterval:     "60s",
	MaxRooms:              1000,
	RateLimitWindow:       "1s",
	RateLimitMax:          100,
	RateLimitWarn:         0.8,
	MaxPayloadBytes:       512 * 1024,
	EmptyRoomTimeout:      "30s",
	SnapshotCheckInterval: "30s",
	SnapshotTTL:           "24h",
	SnapshotBackend:       "redis",
	SnapshotTable:         "canvas_snapshots",
	ShutdownGrace:         "1s",
	RedisURL:              "localhost:6379",
	RedisDB:               0,
	RedisMaxRetries:       3,
	AllowedOrigins:        "*",
	LogLevel:              "info",
}

type Redis struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
}

type Dynamo struct {
	Region   string
	ID       string
	Secret   string
	Token    string
	Endpoint string
	Table    string
}

type Config struct {
	Secret                string
	Port                  string
	RoomTimeout           time.Duration
	RoomSweepInterval     time.Duration
	MaxRooms              int
	RateLimitWindow       time.Duration
	RateLimitMax          int
	RateLimitWarn         float64
	MaxPayloadBytes       int
	EmptyRoomTimeout      time.Duration
	SnapshotCheckInterval time.Duration
	SnapshotTTL           time.Duration
	SnapshotBackend       string
	ShutdownGrace         time.Duration
	Redis                 Redis
	Dynamo                Dynamo
	WebhookURL            string
	AdminSecret           string
	AllowedOrigins        []string
	LogLevel              string
}

// LoadDotenv reads .env into the process environment. A missing file is not
// an error; the returned bool reports whether one was found.
func LoadDotenv(files ...string) bool {
	return godotenv.Load(files...) == nil
}

// SetDefaults registers every default on v and binds it to the environment.
func SetDefaults(v *viper.Viper) {
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for _, key := range []string{RelaySecret, RedisPass, AWSRegion, AWSID, AWSSecret, AWSToken, DynamoDBEndpoint, WebhookURL, AdminSecret} {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()
}

// Load resolves the process configuration from v. The shared relay secret is
// the only required value.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		Secret:                strings.TrimSpace(v.GetString(RelaySecret)),
		Port:                  v.GetString(Port),
		RoomTimeout:           v.GetDuration(RoomTimeout),
		RoomSweepInterval:     v.GetDuration(RoomSweepInterval),
		MaxRooms:              v.GetInt(MaxRooms),
		RateLimitWindow:       v.GetDuration(RateLimitWindow),
		RateLimitMax:          v.GetInt(RateLimitMax),
		RateLimitWarn:         v.GetFloat64(RateLimitWarn),
		MaxPayloadBytes:       v.GetInt(MaxPayloadBytes),
		EmptyRoomTimeout:      v.GetDuration(EmptyRoomTimeout),
		SnapshotCheckInterval: v.GetDuration(SnapshotCheckInterval),
		SnapshotTTL:           v.GetDuration(SnapshotTTL),
		SnapshotBackend:       strings.ToLower(v.GetString(SnapshotBackend)),
		ShutdownGrace:         v.GetDuration(ShutdownGrace),
		Redis: Redis{
			Addr:       v.GetString(RedisURL),
			Password:   v.GetString(RedisPass),
			DB:         v.GetInt(RedisDB),
			MaxRetries: v.GetInt(RedisMaxRetries),
		},
		Dynamo: Dynamo{
			Region:   v.GetString(AWSRegion),
			ID:       v.GetString(AWSID),
			Secret:   v.GetString(AWSSecret),
			Token:    v.GetString(AWSToken),
			Endpoint: v.GetString(DynamoDBEndpoint),
			Table:    v.GetString(SnapshotTable),
		},
		WebhookURL:     v.GetString(WebhookURL),
		AdminSecret:    v.GetString(AdminSecret),
		AllowedOrigins: splitList(v.GetString(AllowedOrigins)),
		LogLevel:       v.GetString(LogLevel),
	}

	if cfg.Secret == "" {
		return Config{}, ErrMissingSecret
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	positive := map[string]time.Duration{
		RoomTimeout:           c.RoomTimeout,
		RoomSweepInterval:     c.RoomSweepInterval,
		RateLimitWindow:       c.RateLimitWindow,
		EmptyRoomTimeout:      c.EmptyRoomTimeout,
		SnapshotCheckInterval: c.SnapshotCheckInterval,
		SnapshotTTL:           c.SnapshotTTL,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("env: %s must be a positive duration", key)
		}
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("env: %s must be positive", RateLimitMax)
	}
	if c.MaxRooms <= 0 {
		return fmt.Errorf("env: %s must be positive", MaxRooms)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("env: %s must be positive", MaxPayloadBytes)
	}
	switch c.SnapshotBackend {
	case "redis", "dynamodb", "memory":
	default:
		return fmt.Errorf("env: unknown %s %q", SnapshotBackend, c.SnapshotBackend)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
