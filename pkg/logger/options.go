package logger

import "io"

// Output formats accepted by WithFormat.
const (
	FormatText = "text"
	FormatJSON = "json"
)

type options struct {
	outputPath string
	writer     io.Writer
	format     string
}

// Option configures Init.
type Option func(*options)

// WithOutputPath appends records to the file at path instead of stderr.
func WithOutputPath(path string) Option {
	return func(o *options) {
		o.outputPath = path
	}
}

// WithWriter sends records to w. Mostly useful in tests.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

// WithFormat selects the text or json handler. Unknown values keep text.
func WithFormat(format string) Option {
	return func(o *options) {
		if format == FormatJSON {
			o.format = FormatJSON
		}
	}
}
