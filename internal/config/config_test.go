package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/gubs/internal/config"
	"github.com/okian/gubs/internal/domain/catalog"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.PurchaseStrategy, convey.ShouldEqual, config.StrategyMerged)
			convey.So(cfg.TxMaxRetries, convey.ShouldEqual, 25)
			convey.So(cfg.LockTTL, convey.ShouldEqual, 8*time.Second)
			convey.So(cfg.OfflineRate, convey.ShouldEqual, 0.25)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.UIDHeader, convey.ShouldEqual, "X-Gubs-UID")
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "gubs")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty addr", func(c *config.Config) { c.Addr = "" }, "addr must not be empty"},
		{"log format", func(c *config.Config) { c.LogFormat = "xml" }, "log_format"},
		{"driver", func(c *config.Config) { c.StoreDriver = "postgres" }, "store_driver"},
		{"badger path", func(c *config.Config) { c.StoreDriver = config.DriverBadger; c.BadgerPath = "" }, "badger_path"},
		{"strategy", func(c *config.Config) { c.PurchaseStrategy = "yolo" }, "purchase_strategy"},
		{"retries", func(c *config.Config) { c.TxMaxRetries = 0 }, "tx_max_retries"},
		{"lock ttl", func(c *config.Config) { c.LockTTL = 0 }, "lock_ttl"},
		{"offline rate", func(c *config.Config) { c.OfflineRate = -1 }, "offline_rate"},
		{"sync delta", func(c *config.Config) { c.MaxSyncDelta = 0 }, "max_sync_delta"},
		{"burst", func(c *config.Config) { c.RateLimitRPS = 10; c.RateLimitBurst = 0 }, "rate_limit_burst"},
		{"header", func(c *config.Config) { c.UIDHeader = "" }, "uid_header"},
		{"audit", func(c *config.Config) { c.AuditWorkers = 0 }, "audit_workers"},
		{"metrics refresh", func(c *config.Config) { c.MetricsRefreshInterval = 0 }, "metrics_refresh_interval"},
		{"metrics buckets", func(c *config.Config) { c.MetricsBuckets = []float64{1, 0.5} }, "metrics_buckets"},
	}

	convey.Convey("Given invalid settings", t, func() {
		for _, tc := range cases {
			cfg := config.New()
			tc.mutate(cfg)
			err := cfg.Validate()

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, tc.want)
		}
	})

	convey.Convey("Given an in-memory badger without a path", t, func() {
		cfg := config.New()
		cfg.StoreDriver = config.DriverBadger
		cfg.BadgerPath = ""
		cfg.BadgerInMemory = true
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}

func TestConfig_Catalog(t *testing.T) {
	convey.Convey("Given a config without catalog tables", t, func() {
		cat, err := config.New().Catalog()

		convey.Convey("Then the built-in catalog is used", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(cat.Items), convey.ShouldEqual, len(catalog.DefaultItems()))
			convey.So(len(cat.Upgrades), convey.ShouldEqual, len(catalog.DefaultUpgrades()))
		})
	})

	convey.Convey("Given custom items and no upgrades", t, func() {
		cfg := config.New()
		cfg.Items = map[string]catalog.Item{"clicker": {Name: "Clicker", BaseCost: 10, Rate: 1}}
		cfg.Upgrades = map[string]catalog.Upgrade{}
		cat, err := cfg.Catalog()

		convey.So(err, convey.ShouldBeNil)
		convey.So(cat.Items, convey.ShouldContainKey, "clicker")
		convey.So(cat.Items["clicker"].CostMultiplier, convey.ShouldEqual, catalog.DefaultCostMultiplier)
		convey.So(cat.Upgrades, convey.ShouldBeEmpty)
	})

	convey.Convey("Given an upgrade targeting an unknown item", t, func() {
		cfg := config.New()
		cfg.Upgrades = map[string]catalog.Upgrade{"bad": {Name: "Bad", Cost: 1, Target: "nothing", UnlockAt: 1, Multiplier: 2}}
		_, err := cfg.Catalog()

		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		convey.So(errors.Is(err, catalog.ErrInvalidCatalog), convey.ShouldBeTrue)
	})
}
