package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then every metric is registered under the default namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.fetches.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)

				found := false
				for _, f := range families {
					if f.GetName() == "pokeget_poller_fetches_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names and labels follow the options", func() {
				manager.cycles.Inc()
				So(testutil.ToFloat64(manager.cycles), ShouldEqual, 1)
				n, err := testutil.GatherAndCount(registry, "test_unit_cycles_total")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When the same registry is reused", func() {
			registry := prometheus.NewRegistry()
			_ = NewManager(WithPrometheusRegistry(registry))

			Convey("Then a second manager panics on duplicate registration", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording fetch metrics", func() {
			before := testutil.ToFloat64(globalManager.fetches)
			RecordFetch()
			RecordFetchError("transport")
			RecordFetchLatency(12)

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.fetches), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.fetchErrors.WithLabelValues("transport")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording dedup metrics", func() {
			before := testutil.ToFloat64(globalManager.eventsAccepted)
			RecordEventsReceived(3)
			RecordEventsAccepted(2)
			RecordEventsDuplicate(1)
			UpdateDedupeSize(42)
			RecordSeeded(10, 1)

			Convey("Then accepted and size reflect the calls", func() {
				So(testutil.ToFloat64(globalManager.eventsAccepted), ShouldEqual, before+2)
				So(testutil.ToFloat64(globalManager.dedupeSize), ShouldEqual, 42)
			})
		})

		Convey("When recording breaker metrics", func() {
			UpdateFailures(PhaseFetch, 3)
			UpdateFailures(PhaseWrite, 0)

			Convey("Then each phase has its own gauge", func() {
				So(testutil.ToFloat64(globalManager.consecutiveFailures.WithLabelValues(PhaseFetch)), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.consecutiveFailures.WithLabelValues(PhaseWrite)), ShouldEqual, 0)
			})
		})

		Convey("When recording the remaining metrics", func() {
			So(func() {
				RecordRecordsWritten(2)
				RecordWriteError()
				RecordWriteLatency(3)
				RecordHealthReset()
				RecordCycle()
				RecordHTTPRequest("stats", "GET", "200")
			}, ShouldNotPanic)
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
