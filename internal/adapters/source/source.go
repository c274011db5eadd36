// Package source fetches the current spawn list from the map-data endpoint.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/pokeget/internal/domain/model"
)

// MapDataPath is the endpoint path listing current spawns.
const MapDataPath = "/map-data"

// maxBodyBytes caps the response body read into memory.
const maxBodyBytes = 64 << 20

// Source lists the events currently visible on the map.
type Source interface {
	Fetch(ctx context.Context) ([]model.Event, error)
}

// HTTPSource performs one GET per Fetch. It holds no state beyond the
// endpoint address and the HTTP client.
type HTTPSource struct {
	client *http.Client
	url    string
	now    func() time.Time
}

// mapData is the response envelope. Pokemons stays nil when the key is absent.
type mapData struct {
	Pokemons []map[string]json.RawMessage `json:"pokemons"`
}

// New creates a source for baseURL, e.g. http://127.0.0.1:5000.
func New(baseURL string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		client: &http.Client{},
		url:    strings.TrimRight(baseURL, "/") + MapDataPath,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL returns the full endpoint address.
func (s *HTTPSource) URL() string { return s.url }

// Fetch returns every listed event, before deduplication. Transport
// failures and non-2xx statuses wrap ErrTransport; undecodable bodies and
// records wrap ErrParse.
func (s *HTTPSource) Fetch(ctx context.Context) ([]model.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrTransport, s.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	return s.decode(body)
}

func (s *HTTPSource) decode(body []byte) ([]model.Event, error) {
	var data mapData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if data.Pokemons == nil {
		return nil, fmt.Errorf("%w: missing %q list", ErrParse, "pokemons")
	}

	now := s.now()
	events := make([]model.Event, 0, len(data.Pokemons))
	for i, raw := range data.Pokemons {
		ev, err := model.NewEvent(raw, now)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrParse, i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
