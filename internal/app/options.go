package service

import (
	"context"
	"time"

	"github.com/okian/pokeget/internal/domain/dedupe"
	"github.com/okian/pokeget/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDeduper sets the dedup set. The service owns it from then on.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithDelay sets the pause between cycles. Zero polls back to back.
func WithDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithEncounterLogging emits one info line per newly accepted event.
func WithEncounterLogging(enabled bool) Option {
	return func(s *Service) {
		s.logEncounters = enabled
	}
}

// WithRetryOnWriteFailure controls whether events from a failed write are
// removed from the dedup set so the next fetch can admit them again.
func WithRetryOnWriteFailure(enabled bool) Option {
	return func(s *Service) {
		s.retryOnFailure = enabled
	}
}

// WithBreakerLimits overrides the failure limit and the healthy streak.
func WithBreakerLimits(maxFailures, healthy int) Option {
	return func(s *Service) {
		s.breaker = NewBreaker(maxFailures, healthy)
	}
}

// WithSleeper replaces the wait between cycles. Mostly useful in tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithClock sets the clock used for latency and snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
