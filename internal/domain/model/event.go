// Package model contains domain models passed between layers.
package model

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Wire field names.
const (
	FieldEncounterID   = "encounter_id"
	FieldDisappearTime = "disappear_time"
	FieldCurrentTime   = "current_time"
)

// HumanLayout renders times in log records, e.g. "2016-07-20 12:34:56 +0200".
const HumanLayout = "2006-01-02 15:04:05 -0700"

// Expiry is the expanded form of disappear_time.
type Expiry struct {
	Epoch int64     // milliseconds since the Unix epoch, as received
	Human time.Time // Epoch truncated to seconds, local time
}

// MarshalJSON renders {"epoch": <ms>, "human": "<HumanLayout>"}.
func (e Expiry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Epoch int64  `json:"epoch"`
		Human string `json:"human"`
	}{Epoch: e.Epoch, Human: e.Human.Format(HumanLayout)})
}

// Event is one spawn observed on the map-data endpoint. Payload fields other
// than the derived ones are carried through untouched.
type Event struct {
	EncounterID   string // dedup key, see EncounterKey
	DisappearTime Expiry
	CurrentTime   time.Time

	fields map[string]json.RawMessage
}

// NewEvent builds an Event from a raw record, stamping CurrentTime with now.
func NewEvent(raw map[string]json.RawMessage, now time.Time) (Event, error) {
	id, err := EncounterKey(raw[FieldEncounterID])
	if err != nil {
		return Event{}, err
	}

	dt, ok := raw[FieldDisappearTime]
	if !ok || isNull(dt) {
		return Event{}, fmt.Errorf("%w: %s (encounter %s)", ErrMissingField, FieldDisappearTime, id)
	}
	var ms float64
	if err := json.Unmarshal(dt, &ms); err != nil {
		return Event{}, fmt.Errorf("%w: %s (encounter %s): %w", ErrInvalidField, FieldDisappearTime, id, err)
	}
	epoch := int64(ms)

	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[k] = v
	}

	return Event{
		EncounterID:   id,
		DisappearTime: Expiry{Epoch: epoch, Human: time.Unix(epoch/1000, 0)},
		CurrentTime:   now,
		fields:        fields,
	}, nil
}

// Field returns a payload field as received.
func (e Event) Field(name string) (json.RawMessage, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// MarshalJSON renders the full log record: every payload field plus the
// expanded disappear_time and current_time.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.fields)+2)
	for k, v := range e.fields {
		out[k] = v
	}
	if _, ok := out[FieldEncounterID]; !ok {
		out[FieldEncounterID] = e.EncounterID
	}
	out[FieldDisappearTime] = e.DisappearTime
	out[FieldCurrentTime] = e.CurrentTime.Format(HumanLayout)
	return json.Marshal(out)
}

// EncounterKey normalizes an encounter_id value to a string. Strings are
// unquoted; numbers keep their literal text so 12 and "12" are the same key.
func EncounterKey(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return "", fmt.Errorf("%w: %s", ErrMissingField, FieldEncounterID)
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidField, FieldEncounterID, err)
		}
		if s == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingField, FieldEncounterID)
		}
		return s, nil
	case '{', '[', 't', 'f':
		return "", fmt.Errorf("%w: %s must be a string or number", ErrInvalidField, FieldEncounterID)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidField, FieldEncounterID, err)
		}
		return n.String(), nil
	}
}

// ParseRecord extracts the encounter key from one log line.
func ParseRecord(line []byte) (string, error) {
	var rec struct {
		EncounterID json.RawMessage `json:"encounter_id"`
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return EncounterKey(rec.EncounterID)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
