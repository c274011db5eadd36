package source

import (
	"errors"
)

// Sentinel kinds for fetch errors.
var (
	ErrTransport = errors.New("transport error")
	ErrParse     = errors.New("parse error")
)

// Kind names the sentinel err wraps: "transport", "parse" or "unknown".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "unknown"
	}
}
