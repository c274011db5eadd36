package journal

import "time"

// Option applies a configuration option to the Journal.
type Option func(*Journal)

// WithClock sets the wall clock used to pick files.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

// WithOpenFile replaces how files are opened. Mostly useful in tests.
func WithOpenFile(open OpenFunc) Option {
	return func(j *Journal) {
		if open != nil {
			j.open = open
		}
	}
}
