package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/okian/pokeget/internal/adapters/http/api"
	"github.com/okian/pokeget/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

type mockStats map[string]interface{}

func (m mockStats) GetStats() map[string]interface{} { return m }

func TestServer(t *testing.T) {
	Convey("Given an observability server", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()
		api.NewServer(mockStats{"cycles": 3, "fetchFailures": 1}).Register(ctx, mux)

		do := func(method, path string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
			return rec
		}

		Convey("When GET /healthz", func() {
			rec := do(http.MethodGet, "/healthz")

			Convey("Then it reports ok", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})
		})

		Convey("When GET /stats", func() {
			rec := do(http.MethodGet, "/stats")

			Convey("Then the provider snapshot is returned as JSON", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				var body map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body["cycles"], ShouldEqual, 3.0)
				So(body["fetchFailures"], ShouldEqual, 1.0)
			})
		})

		Convey("When POST /stats", func() {
			rec := do(http.MethodPost, "/stats")

			Convey("Then the method is rejected", func() {
				So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})

		Convey("When GET /metrics", func() {
			metrics.RecordFetch()
			rec := do(http.MethodGet, "/metrics")

			Convey("Then the poller metrics are exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(strings.Contains(rec.Body.String(), "pokeget_poller_fetches_total"), ShouldBeTrue)
			})
		})

		Convey("When building an http.Server", func() {
			srv := api.NewServer(mockStats{}).NewHTTPServer(ctx, ":0")

			Convey("Then it carries the address and timeouts", func() {
				So(srv.Addr, ShouldEqual, ":0")
				So(srv.Handler, ShouldNotBeNil)
				So(srv.ReadHeaderTimeout, ShouldBeGreaterThan, 0)
			})
		})
	})
}
