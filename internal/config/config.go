// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case, matching both YAML and GUBS_* env names.
// - New returns the defaults; Load layers the file and env on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/okian/gubs/internal/domain/catalog"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
)

// Purchase strategies, mirrored from the economy service.
const (
	StrategyMerged = "merged"
	StrategySaga   = "saga"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// StoreDriver selects the ledger store: memory or badger.
	StoreDriver string `koanf:"store_driver"`

	// BadgerPath is the badger data directory.
	BadgerPath string `koanf:"badger_path"`

	// BadgerInMemory runs badger without touching disk.
	BadgerInMemory bool `koanf:"badger_in_memory"`

	// BadgerSyncWrites fsyncs every commit.
	BadgerSyncWrites bool `koanf:"badger_sync_writes"`

	// TxMaxRetries bounds optimistic transaction re-runs.
	TxMaxRetries int `koanf:"tx_max_retries"`

	// PurchaseStrategy selects merged or saga purchases.
	PurchaseStrategy string `koanf:"purchase_strategy"`

	// Per-user lock tuning.
	LockTTL      time.Duration `koanf:"lock_ttl"`
	LockAttempts int           `koanf:"lock_attempts"`
	LockBackoff  time.Duration `koanf:"lock_backoff"`

	// OfflineRate is the fraction of the passive rate paid while away.
	OfflineRate float64 `koanf:"offline_rate"`

	// MaxSyncDelta caps the clicks reported by a single sync.
	MaxSyncDelta float64 `koanf:"max_sync_delta"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Per-user request rate limiting; RateLimitRPS <= 0 disables it.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// UIDHeader carries the caller identity set by the gateway.
	UIDHeader string `koanf:"uid_header"`

	// Audit log pipeline.
	AuditQueueSize int `koanf:"audit_queue_size"`
	AuditWorkers   int `koanf:"audit_workers"`

	// RefundRetries bounds saga refund attempts.
	RefundRetries int `koanf:"refund_retries"`

	// Prometheus naming and sampling. MetricsEnabled false keeps /metrics
	// empty. MetricsLabels are constant labels such as region or shard.
	MetricsEnabled         bool              `koanf:"metrics_enabled"`
	MetricsNamespace       string            `koanf:"metrics_namespace"`
	MetricsSubsystem       string            `koanf:"metrics_subsystem"`
	MetricsBuckets         []float64         `koanf:"metrics_buckets"`
	MetricsRefreshInterval time.Duration     `koanf:"metrics_refresh_interval"`
	MetricsLabels          map[string]string `koanf:"metrics_labels"`

	// Admins lists uids granted admin rights at startup.
	Admins []string `koanf:"admins"`

	// Items and Upgrades override the built-in catalog.
	Items    map[string]catalog.Item    `koanf:"items"`
	Upgrades map[string]catalog.Upgrade `koanf:"upgrades"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		ShutdownTimeout:     30 * time.Second,
		StoreDriver:         DriverMemory,
		BadgerPath:          "data/gubs",
		BadgerSyncWrites:    true,
		TxMaxRetries:        25,
		PurchaseStrategy:    StrategyMerged,
		LockTTL:             8 * time.Second,
		LockAttempts:        80,
		LockBackoff:         75 * time.Millisecond,
		OfflineRate:         0.25,
		MaxSyncDelta:        1e12,
		MaxLeaderboardLimit: 100,
		RateLimitRPS:        0,
		RateLimitBurst:      20,
		UIDHeader:           "X-Gubs-UID",
		AuditQueueSize:      1024,
		AuditWorkers:        2,
		RefundRetries:       5,

		MetricsEnabled:         true,
		MetricsNamespace:       "gubs",
		MetricsSubsystem:       "economy",
		MetricsRefreshInterval: 10 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverBadger:
		return fmt.Errorf("%w: store_driver must be memory or badger, got %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == DriverBadger && !c.BadgerInMemory && c.BadgerPath == "":
		return fmt.Errorf("%w: badger_path is required for the badger driver", ErrInvalidConfig)
	case c.PurchaseStrategy != StrategyMerged && c.PurchaseStrategy != StrategySaga:
		return fmt.Errorf("%w: purchase_strategy must be merged or saga, got %q", ErrInvalidConfig, c.PurchaseStrategy)
	case c.TxMaxRetries < 1:
		return fmt.Errorf("%w: tx_max_retries must be >= 1", ErrInvalidConfig)
	case c.LockTTL <= 0:
		return fmt.Errorf("%w: lock_ttl must be positive", ErrInvalidConfig)
	case c.LockAttempts < 1:
		return fmt.Errorf("%w: lock_attempts must be >= 1", ErrInvalidConfig)
	case c.LockBackoff < 0:
		return fmt.Errorf("%w: lock_backoff must not be negative", ErrInvalidConfig)
	case c.OfflineRate < 0 || math.IsNaN(c.OfflineRate) || math.IsInf(c.OfflineRate, 0):
		return fmt.Errorf("%w: offline_rate must be finite and >= 0", ErrInvalidConfig)
	case !(c.MaxSyncDelta > 0) || math.IsInf(c.MaxSyncDelta, 0):
		return fmt.Errorf("%w: max_sync_delta must be finite and > 0", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be >= 1", ErrInvalidConfig)
	case c.RateLimitRPS > 0 && c.RateLimitBurst < 1:
		return fmt.Errorf("%w: rate_limit_burst must be >= 1 when rate limiting", ErrInvalidConfig)
	case c.UIDHeader == "":
		return fmt.Errorf("%w: uid_header must not be empty", ErrInvalidConfig)
	case c.AuditQueueSize < 1 || c.AuditWorkers < 1:
		return fmt.Errorf("%w: audit_queue_size and audit_workers must be >= 1", ErrInvalidConfig)
	case c.RefundRetries < 0:
		return fmt.Errorf("%w: refund_retries must not be negative", ErrInvalidConfig)
	case c.MetricsRefreshInterval <= 0:
		return fmt.Errorf("%w: metrics_refresh_interval must be positive", ErrInvalidConfig)
	case !slices.IsSorted(c.MetricsBuckets):
		return fmt.Errorf("%w: metrics_buckets must be ascending", ErrInvalidConfig)
	}
	return nil
}

// Catalog builds the item and upgrade tables. Without items the built-in
// catalog is used; custom items without upgrades get no upgrades.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	items, upgrades := c.Items, c.Upgrades
	if len(items) == 0 {
		items = catalog.DefaultItems()
		if upgrades == nil {
			upgrades = catalog.DefaultUpgrades()
		}
	}
	cat, err := catalog.New(items, upgrades)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cat, nil
}
