package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating a manager with custom options", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(
				WithNamespace("test_ns"),
				WithSubsystem("test_sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics are registered under the given names", func() {
				m.operations.WithLabelValues("syncGubs", "ok").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_ns_test_sub_operations_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
				So(m.refreshInterval, ShouldEqual, 5*time.Second)
			})
		})

		Convey("When empty or unsorted values are passed", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets([]float64{1, 0.5}),
				WithCustomLabels(nil), WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then defaults are kept", func() {
				So(m.namespace, ShouldEqual, "gubs")
				So(m.subsystem, ShouldEqual, "economy")
				So(m.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(m.customLabels, ShouldNotBeNil)
			})
		})

		Convey("When metrics are disabled", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))
			m.gubsSpent.Add(3)

			Convey("Then nothing lands on the supplied registry", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given a configured global manager", t, func() {
		Reset(func() { Configure() })
		Configure(
			WithNamespace("shard"),
			WithRefreshInterval(2*time.Second),
			WithCustomLabels(map[string]string{"region": "eu"}),
		)
		RecordOperation("syncGubs", "ok")

		Convey("Then the served registry carries the new names", func() {
			n, err := testutil.GatherAndCount(GetRegistry(), "shard_economy_operations_total")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(RefreshInterval(), ShouldEqual, 2*time.Second)
		})

		Convey("Then disabling leaves the served registry empty", func() {
			Configure(WithMetricsEnabled(false))
			RecordOperation("syncGubs", "ok")
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(families, ShouldBeEmpty)
		})
	})
}

func TestEconomyMetrics(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When gubs move", func() {
			spent := testutil.ToFloat64(globalManager.gubsSpent)
			AddGubsSpent(114)
			AddGubsSpent(-5)
			AddGubsEarned(10)
			AddOfflineEarned(0)

			Convey("Then only positive amounts are counted", func() {
				So(testutil.ToFloat64(globalManager.gubsSpent)-spent, ShouldEqual, 114)
			})
		})

		Convey("When operations complete", func() {
			before := testutil.ToFloat64(globalManager.operations.WithLabelValues("purchaseItem", "failed-precondition"))
			RecordOperation("purchaseItem", "failed-precondition")
			RecordOperationDuration("purchaseItem", 0.002)
			RecordItemsPurchased("passiveMaker", 3)
			RecordUpgradePurchased("upg1")

			So(testutil.ToFloat64(globalManager.operations.WithLabelValues("purchaseItem", "failed-precondition"))-before, ShouldEqual, 1)
		})

		Convey("When lock and saga events occur", func() {
			So(func() {
				RecordLockAttempt()
				RecordLockAcquired(10 * time.Millisecond)
				RecordLockBusy()
				RecordLockReleaseError()
				RecordSagaStep("deduct", "forward", true)
				RecordSagaStep("deduct", "compensate", false)
				RecordRefund()
				RecordRefundFailure()
				RecordStoreConflict("memory")
				RecordStoreQueryDuration("badger", 0.01)
			}, ShouldNotPanic)
		})

		Convey("When the audit pipeline reports", func() {
			So(func() {
				RecordAuditEnqueued()
				RecordAuditDropped()
				RecordAuditWritten()
				RecordAuditWriteError()
				UpdateAuditQueueSize(5)
				UpdateAuditQueueCapacity(100)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(3)
				RecordWorkerProcessingLatency(time.Millisecond)
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.auditQueueCap), ShouldEqual, 100)
		})

		Convey("When HTTP, error and system metrics are recorded", func() {
			So(func() {
				RecordHTTPRequest("/v1/sync", "POST", "200")
				RecordHTTPRequestDuration("/v1/sync", "POST", "200", 4)
				RecordRateLimited()
				RecordErrorByComponent("http", "client_error")
				RecordErrorByType("client_error", "warning")
				RecordErrorByEndpoint("/v1/sync", "POST", "client_error")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestRegistryExposition(t *testing.T) {
	Convey("Given recorded metrics", t, func() {
		RecordOperation("syncGubs", "ok")

		Convey("Then the custom registry exposes them", func() {
			n, err := testutil.GatherAndCount(GetRegistry(), "gubs_economy_operations_total")
			So(err, ShouldBeNil)
			So(n, ShouldBeGreaterThan, 0)

			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "gubs_economy_"), ShouldBeTrue)
			}
			So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}
