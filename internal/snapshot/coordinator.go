// Package snapshot persists the last known drawing state of each room so late
// joiners can catch up.
//
// A stored value has two accepted encodings. When settings are present it is
// a JSON envelope {"data": ..., "settings": ...}. Otherwise it is the raw data
// string itself, which is also how snapshots were stored before room settings
// existed. Callers only ever see the split Snapshot form.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var nullJSON = json.RawMessage("null")

// Snapshot is the split form of a stored room snapshot. Both fields hold raw
// JSON; a nil or "null" Settings means the room has no stored settings.
type Snapshot struct {
	Data     json.RawMessage `json:"data"`
	Settings json.RawMessage `json:"settings"`
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullJSON)
}

// HasData reports whether the snapshot carries any drawing data.
func (s Snapshot) HasData() bool {
	if isNull(s.Data) {
		return false
	}
	var str string
	if json.Unmarshal(s.Data, &str) == nil {
		return str != ""
	}
	return true
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Settings json.RawMessage `json:"settings"`
}

type Coordinator struct {
	store Store
	ttl   time.Duration
}

func NewCoordinator(store Store, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{store: store, ttl: ttl}
}

// Save replaces the stored snapshot of roomID.
func (c *Coordinator) Save(ctx context.Context, roomID string, snap Snapshot) error {
	value, err := encode(snap)
	if err != nil {
		return fmt.Errorf("snapshot save %s: %w", roomID, err)
	}
	if err := c.store.Set(ctx, Key(roomID), value, c.ttl); err != nil {
		return fmt.Errorf("snapshot save %s: %w", roomID, err)
	}
	return nil
}

// Load returns the stored snapshot of roomID, or ErrNotFound.
func (c *Coordinator) Load(ctx context.Context, roomID string) (Snapshot, error) {
	value, err := c.store.Get(ctx, Key(roomID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("snapshot load %s: %w", roomID, err)
	}
	return decode(value)
}

func (c *Coordinator) Clear(ctx context.Context, roomID string) error {
	if err := c.store.Delete(ctx, Key(roomID)); err != nil {
		return fmt.Errorf("snapshot clear %s: %w", roomID, err)
	}
	return nil
}

// SaveSettings keeps the stored drawing data of roomID and replaces its
// settings. A read failure other than ErrNotFound aborts the write so the
// stored data is never clobbered with null.
func (c *Coordinator) SaveSettings(ctx context.Context, roomID string, settings json.RawMessage) error {
	existing, err := c.Load(ctx, roomID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return c.Save(ctx, roomID, Snapshot{Data: existing.Data, Settings: settings})
}

func encode(snap Snapshot) (string, error) {
	if isNull(snap.Settings) {
		var raw string
		if json.Unmarshal(snap.Data, &raw) == nil && !looksLikeEnvelope(raw) {
			return raw, nil
		}
	}

	data := snap.Data
	if isNull(data) {
		data = nullJSON
	}
	settings := snap.Settings
	if isNull(settings) {
		settings = nullJSON
	}
	out, err := json.Marshal(envelope{Data: data, Settings: settings})
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(out), nil
}

func decode(value string) (Snapshot, error) {
	if looksLikeEnvelope(value) {
		var env envelope
		if err := json.Unmarshal([]byte(value), &env); err == nil {
			snap := Snapshot{Data: env.Data, Settings: env.Settings}
			if isNull(snap.Data) {
				snap.Data = nil
			}
			if isNull(snap.Settings) {
				snap.Settings = nil
			}
			return snap, nil
		}
	}

	// Legacy value: the whole string is the data blob.
	data, err := json.Marshal(value)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode legacy snapshot: %w", err)
	}
	return Snapshot{Data: data}, nil
}

// looksLikeEnvelope reports whether value is a JSON object with a data field.
func looksLikeEnvelope(value string) bool {
	trimmed := bytes.TrimSpace([]byte(value))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return false
	}
	_, ok := fields["data"]
	return ok
}
