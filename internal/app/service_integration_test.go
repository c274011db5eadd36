package service_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/pokeget/internal/adapters/journal"
	"github.com/okian/pokeget/internal/adapters/source"
	service "github.com/okian/pokeget/internal/app"
	"github.com/okian/pokeget/internal/domain/dedupe"
	"github.com/okian/pokeget/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mapServer answers the i-th request with bodies[i]; the last body repeats.
func mapServer(bodies ...string) *httptest.Server {
	var n atomic.Int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != source.MapDataPath {
			http.NotFound(w, r)
			return
		}
		i := int(n.Add(1)) - 1
		if i >= len(bodies) {
			i = len(bodies) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(bodies[i]))
	}))
}

func logRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatal(err)
		}
		out = append(out, rec)
	}
	return out
}

// cappedFile accepts at most *budget more bytes, then fails like a full disk.
type cappedFile struct {
	journal.File
	budget *int
}

func (c cappedFile) Write(p []byte) (int, error) {
	if len(p) <= *c.budget {
		*c.budget -= len(p)
		return c.File.Write(p)
	}
	n, _ := c.File.Write(p[:*c.budget])
	*c.budget -= n
	return n, errors.New("file too large")
}

func cappedOpener(budget *int) journal.OpenFunc {
	return func(name string, flag int, perm os.FileMode) (journal.File, error) {
		f, err := os.OpenFile(name, flag, perm)
		if err != nil {
			return nil, err
		}
		return cappedFile{File: f, budget: budget}, nil
	}
}

func recordIDs(recs []map[string]any) []any {
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, r["encounter_id"])
	}
	return out
}

func TestService_EndToEnd(t *testing.T) {
	Convey("Given an endpoint returning overlapping spawn lists", t, func() {
		ctx := context.Background()
		srv := mapServer(
			`{"pokemons":[{"encounter_id":"a","disappear_time":1469016000000,"pokemon_id":1},{"encounter_id":"b","disappear_time":1469016060000}]}`,
			`{"pokemons":[{"encounter_id":"a","disappear_time":1469016000000,"pokemon_id":1},{"encounter_id":"c","disappear_time":1469016120000}]}`,
		)
		defer srv.Close()

		dir := t.TempDir()
		now := time.Date(2016, time.July, 20, 12, 0, 0, 0, time.Local)
		clock := func() time.Time { return now }
		j := journal.New(dir, journal.WithClock(clock))
		src := source.New(srv.URL, source.WithClock(clock))
		svc := service.New(src, j)

		Convey("When two cycles run", func() {
			So(svc.Seed(ctx), ShouldBeNil)
			So(svc.Cycle(ctx), ShouldBeNil)
			So(svc.Cycle(ctx), ShouldBeNil)

			recs := logRecords(t, filepath.Join(dir, "pokemon_20-7.json"))

			Convey("Then the log holds a, b and c exactly once, in order", func() {
				So(recordIDs(recs), ShouldResemble, []any{"a", "b", "c"})
			})

			Convey("And each record is the full expanded event", func() {
				So(recs[0]["pokemon_id"], ShouldEqual, 1.0)
				dt := recs[0]["disappear_time"].(map[string]any)
				So(dt["epoch"], ShouldEqual, 1469016000000.0)
				So(dt["human"], ShouldEqual, time.Unix(1469016000, 0).Format(model.HumanLayout))
				So(recs[0]["current_time"], ShouldEqual, now.Format(model.HumanLayout))
			})

			Convey("And a restarted loop seeded from the log logs nothing again", func() {
				restarted := service.New(source.New(srv.URL, source.WithClock(clock)), j, service.WithDeduper(dedupe.NewInMemoryDeduper()))
				So(restarted.Seed(ctx), ShouldBeNil)
				So(restarted.Deduper().Size(), ShouldEqual, 3)
				So(restarted.Cycle(ctx), ShouldBeNil)
				So(len(logRecords(t, filepath.Join(dir, "pokemon_20-7.json"))), ShouldEqual, 3)
			})
		})
	})

	Convey("Given logs from yesterday and today", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		now := time.Date(2016, time.August, 1, 0, 30, 0, 0, time.Local)
		j := journal.New(dir, journal.WithClock(func() time.Time { return now }))

		So(os.WriteFile(j.PreviousPath(), []byte(`{"encounter_id":"old"}`+"\n"+"garbage\n"), 0o644), ShouldBeNil)
		So(os.WriteFile(j.CurrentPath(), []byte(`{"encounter_id":"new"}`+"\n"), 0o644), ShouldBeNil)
		So(filepath.Base(j.PreviousPath()), ShouldEqual, "pokemon_31-7.json")

		srv := mapServer(`{"pokemons":[{"encounter_id":"old","disappear_time":1},{"encounter_id":"new","disappear_time":1},{"encounter_id":"fresh","disappear_time":1}]}`)
		defer srv.Close()
		svc := service.New(source.New(srv.URL), j)

		Convey("When the loop seeds and cycles", func() {
			So(svc.Seed(ctx), ShouldBeNil)
			So(svc.Cycle(ctx), ShouldBeNil)

			Convey("Then only the unseen event is appended to today's file", func() {
				So(recordIDs(logRecords(t, j.CurrentPath())), ShouldResemble, []any{"new", "fresh"})
				So(svc.Stats().Accepted, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a disk that fills up part way through a batch", t, func() {
		ctx := context.Background()
		now := time.Date(2016, time.July, 20, 12, 0, 0, 0, time.Local)
		clock := func() time.Time { return now }

		ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		body := `{"pokemons":[`
		for i, id := range ids {
			if i > 0 {
				body += ","
			}
			body += fmt.Sprintf(`{"encounter_id":%q,"disappear_time":1469016000000}`, id)
		}
		body += `]}`
		srv := mapServer(body)
		defer srv.Close()

		sample, err := model.NewEvent(map[string]json.RawMessage{
			"encounter_id":   json.RawMessage(`"a"`),
			"disappear_time": json.RawMessage(`1469016000000`),
		}, now)
		So(err, ShouldBeNil)
		line, err := json.Marshal(sample)
		So(err, ShouldBeNil)
		size := len(line) + 1
		budget := 3*size + size/2

		dir := t.TempDir()
		j := journal.New(dir, journal.WithClock(clock), journal.WithOpenFile(cappedOpener(&budget)))
		svc := service.New(source.New(srv.URL, source.WithClock(clock)), j)

		Convey("When one cycle fails its write and the next succeeds", func() {
			So(svc.Cycle(ctx), ShouldBeNil)
			first := svc.Stats()

			budget = 1 << 20
			So(svc.Cycle(ctx), ShouldBeNil)

			Convey("Then only the unwritten tail was admitted again", func() {
				So(first.WriteFailures, ShouldEqual, 1)
				So(first.Accepted, ShouldEqual, 3)
				So(first.DedupeSize, ShouldEqual, 3)
			})

			Convey("And every encounter is logged exactly once", func() {
				recs := logRecords(t, j.CurrentPath())
				So(recordIDs(recs), ShouldResemble, []any{"a", "b", "c", "d", "e", "f", "g", "h"})
				So(svc.Stats().Accepted, ShouldEqual, 8)
			})
		})
	})
}
