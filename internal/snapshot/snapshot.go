// Package snapshot defines the persisted form of the market state and the
// codec shared by every store backend.
package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNotFound is returned by stores that have never been written.
var ErrNotFound = errors.New("snapshot not found")

// PricePoint is one region/commodity cell.
type PricePoint struct {
	CurrentPrice float64   `json:"current_price"`
	History      []float64 `json:"history"`
}

// EventRecord is one entry of the global event history.
type EventRecord struct {
	ID          string             `json:"id,omitempty"`
	Timestamp   Timestamp          `json:"timestamp"`
	Region      string             `json:"region"`
	Description string             `json:"description"`
	Effects     map[string]float64 `json:"effects"`
}

// Snapshot is the whole market state keyed by display names.
// A nil LastEvents value means no event has been triggered in that region.
type Snapshot struct {
	Day          uint64                           `json:"day,omitempty"`
	Market       map[string]map[string]PricePoint `json:"market"`
	LastEvents   map[string]*string               `json:"last_events"`
	EventHistory []EventRecord                    `json:"event_history"`
}

// Timestamp is written as RFC 3339 and also accepts zone-less ISO 8601
// stamps ("2024-05-01T12:00:00.123456"), which are read as UTC.
type Timestamp struct {
	time.Time
}

const naiveLayout = "2006-01-02T15:04:05.999999999"

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse(naiveLayout, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("snapshot.json", schemaJSON)
	})
	return schema, schemaErr
}

// Validate checks raw JSON against the snapshot schema.
func Validate(raw []byte) error {
	sch, err := compiled()
	if err != nil {
		return fmt.Errorf("compile snapshot schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	return nil
}

// Decode validates and parses a snapshot.
func Decode(raw []byte) (*Snapshot, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Encode renders a snapshot as indented JSON.
func Encode(snap *Snapshot) ([]byte, error) {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}
