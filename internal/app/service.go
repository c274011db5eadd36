// Package service runs the poll loop: fetch spawns, keep the unseen ones,
// append them to the daily log, sleep, repeat.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pokeget/internal/adapters/source"
	"github.com/okian/pokeget/internal/domain/dedupe"
	"github.com/okian/pokeget/internal/domain/model"
	"github.com/okian/pokeget/pkg/logger"
	"github.com/okian/pokeget/pkg/metrics"
)

// Journal is the durable write target. Append returns how many leading
// events are whole on disk, also alongside an error.
type Journal interface {
	Append(ctx context.Context, events []model.Event) (int, error)
	CurrentPath() string
	PreviousPath() string
}

// Snapshot is a point-in-time view of the loop counters.
type Snapshot struct {
	Cycles        int64     `json:"cycles"`
	FetchAttempts int       `json:"fetchAttempts"`
	FetchFailures int       `json:"fetchFailures"`
	WriteAttempts int       `json:"writeAttempts"`
	WriteFailures int       `json:"writeFailures"`
	Accepted      int64     `json:"accepted"`
	DedupeSize    int64     `json:"dedupeSize"`
	LastCycle     time.Time `json:"lastCycle"`
	LastError     string    `json:"lastError,omitempty"`
}

// Service is the poll loop. It is single-threaded: Run, Cycle and Seed must
// not be called concurrently. Stats may be read from any goroutine.
type Service struct {
	source  source.Source
	journal Journal
	deduper dedupe.Deduper
	breaker *Breaker

	delay          time.Duration
	logEncounters  bool
	retryOnFailure bool
	sleep          func(ctx context.Context, d time.Duration) error
	now            func() time.Time

	cycles   int64
	accepted int64
	lastErr  string
	snapshot atomic.Pointer[Snapshot]

	logger logger.Logger
}

// New constructs a Service reading from src and writing to j.
func New(src source.Source, j Journal, opts ...Option) *Service {
	s := &Service{
		source:         src,
		journal:        j,
		delay:          60 * time.Second,
		retryOnFailure: true,
		sleep:          sleepContext,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper()
	}
	if s.breaker == nil {
		s.breaker = NewBreaker(DefaultMaxFailures, DefaultHealthyAttempts)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.publish()
	return s
}

// Seed loads encounter ids from the previous and the current day files.
// Missing files are fine; malformed lines are skipped and counted.
func (s *Service) Seed(ctx context.Context) error {
	for _, path := range []string{s.journal.PreviousPath(), s.journal.CurrentPath()} {
		res, err := s.deduper.SeedFrom(ctx, path)
		if err != nil {
			return fmt.Errorf("seed dedup set: %w", err)
		}
		metrics.RecordSeeded(res.Added, res.Skipped)
		if res.Missing {
			s.logger.Debug(ctx, "no log to seed from", logger.String("path", path))
			continue
		}
		fields := []logger.Field{
			logger.String("path", path),
			logger.Int("lines", res.Lines),
			logger.Int("added", res.Added),
		}
		if res.Skipped > 0 {
			s.logger.Warn(ctx, "skipped malformed log lines while seeding",
				append(fields, logger.Int("skipped", res.Skipped))...)
		} else {
			s.logger.Info(ctx, "seeded dedup set", fields...)
		}
	}
	metrics.UpdateDedupeSize(s.deduper.Size())
	s.publish()
	return nil
}

// Run repeats Cycle with the configured delay in between. It returns an
// *ExitError when a breaker trips, or the context error once ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info(ctx, "poll loop started",
		logger.Any("delay", s.delay),
		logger.Int64("known_encounters", s.deduper.Size()),
	)
	for {
		if err := s.Cycle(ctx); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.delay); err != nil {
			return err
		}
	}
}

// Cycle runs one fetch/write step and applies the breaker policy. It returns
// an *ExitError when the process should terminate, ctx.Err() when cancelled
// mid-cycle, and nil otherwise. Fetch and write errors are logged and counted,
// never returned.
func (s *Service) Cycle(ctx context.Context) error {
	log := s.logger.With(logger.String("cycle", uuid.NewString()))
	b := s.breaker

	// fetch
	b.FetchStarted()
	metrics.RecordFetch()
	start := s.now()
	fresh, err := s.fetchNew(ctx)
	metrics.RecordFetchLatency(float64(s.now().Sub(start).Milliseconds()))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error(ctx, "fetch failed", logger.Error(err), logger.String("kind", source.Kind(err)))
		metrics.RecordFetchError(source.Kind(err))
		b.FetchFailed()
		s.lastErr = err.Error()
	}

	// write; a failed fetch leaves fresh empty
	if len(fresh) > 0 {
		b.WriteStarted()
		start = s.now()
		n, err := s.journal.Append(ctx, fresh)
		metrics.RecordWriteLatency(float64(s.now().Sub(start).Milliseconds()))
		n = min(max(n, 0), len(fresh))
		if n > 0 {
			s.accepted += int64(n)
			metrics.RecordRecordsWritten(n)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error(ctx, "write failed", logger.Error(err),
				logger.Int("events", len(fresh)), logger.Int("written", n))
			metrics.RecordWriteError()
			b.WriteFailed()
			s.lastErr = err.Error()
			// Only the ids whose lines never reached the file may be admitted again.
			if s.retryOnFailure {
				for _, ev := range fresh[n:] {
					s.deduper.Unrecord(ctx, ev.EncounterID)
				}
			}
		}
	}

	if s.logEncounters {
		for _, ev := range fresh {
			log.Info(ctx, "new encounter: "+ev.EncounterID, logger.String("encounter_id", ev.EncounterID))
		}
	}

	if b.Settle() {
		s.lastErr = ""
		metrics.RecordHealthReset()
		log.Debug(ctx, "failure counters reset after clean streak")
	}

	s.cycles++
	metrics.RecordCycle()
	metrics.UpdateFailures(metrics.PhaseFetch, b.FetchFailures)
	metrics.UpdateFailures(metrics.PhaseWrite, b.WriteFailures)
	metrics.UpdateDedupeSize(s.deduper.Size())
	s.publish()

	if exit := b.Tripped(); exit != nil {
		log.Error(ctx, "giving up", logger.String("phase", string(exit.Phase)),
			logger.Int("failures", exit.Failures), logger.Int("exit_status", exit.Code))
		return exit
	}
	return nil
}

// fetchNew fetches and filters through the dedup set.
func (s *Service) fetchNew(ctx context.Context) ([]model.Event, error) {
	events, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	fresh := s.deduper.FilterNew(ctx, events)
	metrics.RecordEventsReceived(len(events))
	metrics.RecordEventsAccepted(len(fresh))
	metrics.RecordEventsDuplicate(len(events) - len(fresh))
	return fresh, nil
}

// Breaker exposes the loop's failure counters.
func (s *Service) Breaker() *Breaker { return s.breaker }

// Deduper exposes the dedup set owned by the loop.
func (s *Service) Deduper() dedupe.Deduper { return s.deduper }

// Stats returns the latest snapshot.
func (s *Service) Stats() Snapshot {
	return *s.snapshot.Load()
}

// GetStats returns the latest snapshot as a map for the stats endpoint.
func (s *Service) GetStats() map[string]interface{} {
	snap := s.Stats()
	return map[string]interface{}{
		"cycles":        snap.Cycles,
		"fetchAttempts": snap.FetchAttempts,
		"fetchFailures": snap.FetchFailures,
		"writeAttempts": snap.WriteAttempts,
		"writeFailures": snap.WriteFailures,
		"accepted":      snap.Accepted,
		"dedupeSize":    snap.DedupeSize,
		"lastCycle":     snap.LastCycle,
		"lastError":     snap.LastError,
	}
}

func (s *Service) publish() {
	b := s.breaker
	s.snapshot.Store(&Snapshot{
		Cycles:        s.cycles,
		FetchAttempts: b.FetchAttempts,
		FetchFailures: b.FetchFailures,
		WriteAttempts: b.WriteAttempts,
		WriteFailures: b.WriteFailures,
		Accepted:      s.accepted,
		DedupeSize:    s.deduper.Size(),
		LastCycle:     s.now(),
		LastError:     s.lastErr,
	})
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsExit reports whether err is a tripped breaker and returns it.
func IsExit(err error) (*ExitError, bool) {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit, true
	}
	return nil, false
}
