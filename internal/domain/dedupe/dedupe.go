// Package dedupe tracks encounter ids that were already logged.
package dedupe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/okian/pokeget/internal/domain/model"
)

// Deduper records seen encounter ids so an event is logged at most once.
type Deduper interface {
	// SeenAndRecord checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// FilterNew returns the events whose ids were not seen yet, in input
	// order, recording each of them. Repeated ids within events keep only
	// the first occurrence.
	FilterNew(ctx context.Context, events []model.Event) []model.Event

	// SeedFrom records every encounter id found in the JSON lines file at
	// path. A missing file is not an error; malformed lines are skipped.
	SeedFrom(ctx context.Context, path string) (SeedResult, error)

	// Unrecord removes an id so a later sighting is admitted again. Used
	// when an admitted event could not be written.
	Unrecord(ctx context.Context, id string)

	// Reset forgets every id.
	Reset(ctx context.Context)

	Size() int64
}

// SeedResult summarizes one SeedFrom call.
type SeedResult struct {
	Lines   int  // non-empty lines read
	Added   int  // ids newly recorded
	Skipped int  // malformed lines ignored
	Missing bool // the file did not exist
}

// inMemoryDeduper implements Deduper with a map. Entries are never evicted:
// an id, once recorded, stays until Reset.
type inMemoryDeduper struct {
	mu       sync.RWMutex
	seen     map[string]struct{}
	capacity int
	size     atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]struct{}, d.capacity)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seenAndRecordLocked(id)
}

func (d *inMemoryDeduper) seenAndRecordLocked(id string) bool {
	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) FilterNew(_ context.Context, events []model.Event) []model.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	fresh := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if d.seenAndRecordLocked(ev.EncounterID) {
			continue
		}
		fresh = append(fresh, ev)
	}
	return fresh
}

func (d *inMemoryDeduper) SeedFrom(ctx context.Context, path string) (SeedResult, error) {
	var res SeedResult

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		res.Missing = true
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	r := bufio.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line, readErr := r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			res.Lines++
			id, err := model.ParseRecord(line)
			switch {
			case err != nil:
				res.Skipped++
			case !d.seenAndRecordLocked(id):
				res.Added++
			}
		}
		if readErr == io.EOF {
			return res, nil
		}
		if readErr != nil {
			return res, fmt.Errorf("read %s: %w", path, readErr)
		}
	}
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Reset(_ context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, d.capacity)
	d.size.Store(0)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
