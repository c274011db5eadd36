package source

import (
	"net/http"
	"time"
)

// Option applies a configuration option to the HTTPSource.
type Option func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout bounds each request. Zero keeps requests unbounded.
// Apply after WithHTTPClient when combining both.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			c := *s.client
			c.Timeout = d
			s.client = &c
		}
	}
}

// WithClock sets the function used to stamp current_time.
func WithClock(now func() time.Time) Option {
	return func(s *HTTPSource) {
		if now != nil {
			s.now = now
		}
	}
}
