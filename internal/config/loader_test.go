package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/gubs/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GUBS_ADDR", ":8080")
			_ = os.Setenv("GUBS_STORE_DRIVER", "badger")
			_ = os.Setenv("GUBS_BADGER_IN_MEMORY", "true")
			_ = os.Setenv("GUBS_PURCHASE_STRATEGY", "saga")
			_ = os.Setenv("GUBS_LOCK_TTL", "2s")
			_ = os.Setenv("GUBS_OFFLINE_RATE", "0.5")
			_ = os.Setenv("GUBS_RATE_LIMIT_RPS", "12.5")
			_ = os.Setenv("GUBS_AUDIT_WORKERS", "4")
			_ = os.Setenv("GUBS_ADMINS", "boss, ops ,")
			_ = os.Setenv("GUBS_METRICS_NAMESPACE", "shard7")
			_ = os.Setenv("GUBS_METRICS_BUCKETS", "0.01, 0.1,1")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverBadger)
				convey.So(cfg.BadgerInMemory, convey.ShouldBeTrue)
				convey.So(cfg.PurchaseStrategy, convey.ShouldEqual, config.StrategySaga)
				convey.So(cfg.LockTTL, convey.ShouldEqual, 2*time.Second)
				convey.So(cfg.OfflineRate, convey.ShouldEqual, 0.5)
				convey.So(cfg.RateLimitRPS, convey.ShouldEqual, 12.5)
				convey.So(cfg.AuditWorkers, convey.ShouldEqual, 4)
				convey.So(cfg.Admins, convey.ShouldResemble, []string{"boss", "ops"})
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "shard7")
				convey.So(cfg.MetricsBuckets, convey.ShouldResemble, []float64{0.01, 0.1, 1})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
log_format: json
tx_max_retries: 40
lock_backoff: 5ms
admins: [boss]
metrics_refresh_interval: 30s
metrics_labels:
  region: eu
items:
  clicker:
    name: Clicker
    base_cost: 10
    rate: 0.5
    cost_multiplier: 1.2
upgrades:
  turbo:
    name: Turbo
    cost: 100
    target: clicker
    unlock_at: 5
    multiplier: 3
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GUBS_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.TxMaxRetries, convey.ShouldEqual, 40)
				convey.So(cfg.LockBackoff, convey.ShouldEqual, 5*time.Millisecond)
				convey.So(cfg.Admins, convey.ShouldResemble, []string{"boss"})
				convey.So(cfg.MetricsRefreshInterval, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.MetricsLabels, convey.ShouldResemble, map[string]string{"region": "eu"})
			})

			convey.Convey("And the catalog tables are read", func() {
				cat, err := cfg.Catalog()
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(cat.Items), convey.ShouldEqual, 1)
				convey.So(cat.Items["clicker"].BaseCost, convey.ShouldEqual, 10)
				convey.So(cat.Items["clicker"].CostMultiplier, convey.ShouldEqual, 1.2)
				convey.So(cat.Upgrades["turbo"].Target, convey.ShouldEqual, "clicker")
				convey.So(cat.Upgrades["turbo"].UnlockAt, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
audit_queue_size: 64
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GUBS_CONFIG", tmpFile)
			_ = os.Setenv("GUBS_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.AuditQueueSize, convey.ShouldEqual, 64)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile("addr: [unclosed\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("GUBS_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("GUBS_CONFIG", "/non/existent/gubs.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("GUBS_TX_MAX_RETRIES", "plenty")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a setting fails validation", func() {
			_ = os.Setenv("GUBS_PURCHASE_STRATEGY", "optimistic")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "purchase_strategy")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"GUBS_CONFIG",
		"GUBS_ADDR",
		"GUBS_STORE_DRIVER",
		"GUBS_BADGER_IN_MEMORY",
		"GUBS_PURCHASE_STRATEGY",
		"GUBS_LOCK_TTL",
		"GUBS_OFFLINE_RATE",
		"GUBS_RATE_LIMIT_RPS",
		"GUBS_AUDIT_WORKERS",
		"GUBS_ADMINS",
		"GUBS_METRICS_NAMESPACE",
		"GUBS_METRICS_BUCKETS",
		"GUBS_TX_MAX_RETRIES",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "gubs-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
