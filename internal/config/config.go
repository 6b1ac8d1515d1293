package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Config is the server configuration, read from the environment.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	RunLocal   bool   `env:"RUN_LOCAL"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	SnapshotPath string `env:"ORDERS_SNAPSHOT_PATH" envDefault:"data/courier_orders.snap"`
	Codec        string `env:"ORDERS_CODEC" envDefault:"cbor"`

	MaxActivePerPlayer int           `env:"MAX_ACTIVE_ORDERS_PER_PLAYER" envDefault:"5"`
	OrderExpiry        time.Duration `env:"ORDER_EXPIRY" envDefault:"24h"`
	OrderRetention     time.Duration `env:"ORDER_RETENTION" envDefault:"168h"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	FlushInterval      time.Duration `env:"FLUSH_INTERVAL" envDefault:"30s"`
	IdempotencyTTL     time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"10m"`

	// CourierIDs enables profession checks when non-empty.
	CourierIDs []string `env:"COURIER_IDS" envSeparator:","`

	QueueURL            string        `env:"ORDERS_QUEUE_URL"`
	BackupTable         string        `env:"BACKUP_TABLE"`
	CloudWatchNamespace string        `env:"CLOUDWATCH_NAMESPACE"`
	StatsInterval       time.Duration `env:"STATS_INTERVAL" envDefault:"5m"`
	AWSRegion           string        `env:"AWS_REGION"`
	AWSEndpoint         string        `env:"AWS_ENDPOINT_OVERRIDE"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.MaxActivePerPlayer < 1 {
		return fmt.Errorf("MAX_ACTIVE_ORDERS_PER_PLAYER must be positive, got %d", c.MaxActivePerPlayer)
	}
	for name, d := range map[string]time.Duration{
		"ORDER_EXPIRY":    c.OrderExpiry,
		"ORDER_RETENTION": c.OrderRetention,
		"SWEEP_INTERVAL":  c.SweepInterval,
		"FLUSH_INTERVAL":  c.FlushInterval,
		"IDEMPOTENCY_TTL": c.IdempotencyTTL,
		"STATS_INTERVAL":  c.StatsInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Codec != "cbor" && c.Codec != "json" {
		return fmt.Errorf("ORDERS_CODEC must be cbor or json, got %q", c.Codec)
	}
	if _, err := c.Couriers(); err != nil {
		return err
	}
	return nil
}

// Couriers parses CourierIDs.
func (c Config) Couriers() ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(c.CourierIDs))
	for _, s := range c.CourierIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("COURIER_IDS: %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// AWSEnabled reports whether any AWS sink is configured.
func (c Config) AWSEnabled() bool {
	return c.QueueURL != "" || c.BackupTable != "" || c.CloudWatchNamespace != ""
}
