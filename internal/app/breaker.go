package service

import "fmt"

// Process exit statuses. They never overlap.
const (
	ExitHelp          = 30
	ExitFetchFailures = 40
	ExitWriteFailures = 50
)

// Breaker defaults.
const (
	DefaultMaxFailures     = 5 // failures tolerated per phase; one more trips
	DefaultHealthyAttempts = 5 // clean attempts that clear every counter
)

// Phase names a step of the poll cycle.
type Phase string

const (
	PhaseFetch Phase = "fetch"
	PhaseWrite Phase = "write"
)

// ExitError reports a tripped breaker. Its Code is the process exit status.
type ExitError struct {
	Code     int
	Phase    Phase
	Failures int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failures exceeded limit (%d); exit status %d", e.Phase, e.Failures, e.Code)
}

// Breaker is the consecutive-failure counter of the poll loop.
//
// Attempt counters grow on each attempt and drop to zero on that phase's
// failure; failure counters only drop to zero in Settle. A write attempt is
// only counted when there is something to write.
type Breaker struct {
	FetchAttempts int
	FetchFailures int
	WriteAttempts int
	WriteFailures int

	maxFailures int
	healthy     int
}

// NewBreaker returns a breaker that trips above maxFailures and clears after
// healthy clean attempts. Non-positive values take the defaults.
func NewBreaker(maxFailures, healthy int) *Breaker {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if healthy <= 0 {
		healthy = DefaultHealthyAttempts
	}
	return &Breaker{maxFailures: maxFailures, healthy: healthy}
}

func (b *Breaker) FetchStarted() { b.FetchAttempts++ }

func (b *Breaker) FetchFailed() {
	b.FetchAttempts = 0
	b.FetchFailures++
}

func (b *Breaker) WriteStarted() { b.WriteAttempts++ }

func (b *Breaker) WriteFailed() {
	b.WriteAttempts = 0
	b.WriteFailures++
}

// Settle clears all four counters once either phase reached the healthy
// streak. It reports whether it did.
func (b *Breaker) Settle() bool {
	if b.FetchAttempts < b.healthy && b.WriteAttempts < b.healthy {
		return false
	}
	*b = Breaker{maxFailures: b.maxFailures, healthy: b.healthy}
	return true
}

// Tripped returns the exit error for the first phase over the limit, fetch
// before write, or nil.
func (b *Breaker) Tripped() *ExitError {
	switch {
	case b.FetchFailures > b.maxFailures:
		return &ExitError{Code: ExitFetchFailures, Phase: PhaseFetch, Failures: b.FetchFailures}
	case b.WriteFailures > b.maxFailures:
		return &ExitError{Code: ExitWriteFailures, Phase: PhaseWrite, Failures: b.WriteFailures}
	}
	return nil
}
