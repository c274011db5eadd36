// Package journal appends accepted events to date-partitioned JSON lines files.
//
// File names follow pokemon_<day>-<month>.json (no zero padding), one file per
// calendar day of the local clock. Files are only ever created and appended to.
package journal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/pokeget/internal/domain/model"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
	day      = 24 * time.Hour
)

// File is the part of *os.File the journal writes through.
type File interface {
	io.Writer
	io.ReaderAt
	io.Closer
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// OpenFunc opens a journal file; os.OpenFile by default.
type OpenFunc func(name string, flag int, perm os.FileMode) (File, error)

func openFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Journal resolves the current and previous day files and appends to the
// current one. Every Append is an independent open/write/close cycle.
type Journal struct {
	dir  string
	now  func() time.Time
	open OpenFunc
}

// New creates a journal rooted at dir.
func New(dir string, opts ...Option) *Journal {
	j := &Journal{dir: dir, now: time.Now, open: openFile}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Dir returns the log directory.
func (j *Journal) Dir() string { return j.dir }

// FileName returns the base name of the file covering t.
func FileName(t time.Time) string {
	return fmt.Sprintf("pokemon_%d-%d.json", t.Day(), int(t.Month()))
}

// PathFor returns the file covering t inside dir.
func PathFor(dir string, t time.Time) string {
	return filepath.Join(dir, FileName(t))
}

// CurrentPath returns today's file.
func (j *Journal) CurrentPath() string {
	return PathFor(j.dir, j.now())
}

// PreviousPath returns the file covering now minus 86400 seconds.
func (j *Journal) PreviousPath() string {
	return PathFor(j.dir, j.now().Add(-day))
}

// Append writes one JSON line per event, in order, to the current file.
// The path is resolved on every call so a long-running process rotates at
// midnight. An empty batch touches nothing. Failures wrap ErrIO.
//
// The returned count is the number of leading events whose lines are whole
// on disk, also when err is non-nil. A line cut short by a failed write is
// truncated away; if that fails too, the next Append starts on a fresh line.
func (j *Journal) Append(ctx context.Context, events []model.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	ends := make([]int, 0, len(events))
	for _, ev := range events {
		// Encode terminates each record with '\n'.
		if err := enc.Encode(ev); err != nil {
			return 0, fmt.Errorf("%w: encode encounter %s: %w", ErrIO, ev.EncounterID, err)
		}
		ends = append(ends, buf.Len())
	}

	path := j.CurrentPath()
	if err := os.MkdirAll(j.dir, dirPerm); err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrIO, j.dir, err)
	}
	f, err := j.open(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, filePerm)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	size := info.Size()

	torn, err := endsMidLine(f, size)
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	out := buf.Bytes()
	lead := 0
	if torn {
		out = append([]byte{'\n'}, out...)
		lead = 1
	}

	n, err := f.Write(out)
	if err != nil {
		whole, keep := wholeRecords(ends, n-lead)
		if n > lead && n-lead != keep {
			_ = f.Truncate(size + int64(lead+keep))
		}
		_ = f.Close()
		return whole, fmt.Errorf("%w: write %s: %d of %d records: %w", ErrIO, path, whole, len(events), err)
	}
	if err := f.Close(); err != nil {
		// The bytes were accepted by the write; only the close failed.
		return len(events), fmt.Errorf("%w: close %s: %w", ErrIO, path, err)
	}
	return len(events), nil
}

// wholeRecords counts the records fully contained in the first n bytes and
// returns that count with the byte length they span.
func wholeRecords(ends []int, n int) (int, int) {
	whole, keep := 0, 0
	for _, end := range ends {
		if end > n {
			break
		}
		whole, keep = whole+1, end
	}
	return whole, keep
}

// endsMidLine reports whether a non-empty file lacks a trailing newline.
func endsMidLine(f File, size int64) (bool, error) {
	if size == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}
