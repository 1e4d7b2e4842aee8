// Package storage defines the persisted plugin state and the backends it can
// be written to.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Paintersrp/ebref/internal/pathutil"
)

// CurrentVersion is the schema version written by Encode.
const CurrentVersion = 1

// ErrUnsupportedVersion is returned for payloads written by a newer release.
var ErrUnsupportedVersion = errors.New("unsupported state version")

// Settings are the user-tunable options persisted alongside progress.
type Settings struct {
	HighlightsEnabled  bool   `json:"highlightsEnabled"`
	HighlightColor     string `json:"highlightColor"`
	MaxHighlights      int    `json:"maxHighlights"`
	BacklinkLimit      int    `json:"backlinkLimit"`
	LabelMaxLength     int    `json:"labelMaxLength"`
	ProgressDebounceMs int    `json:"progressDebounceMs"`
	RefreshDebounceMs  int    `json:"refreshDebounceMs"`
}

// DefaultSettings returns the settings used for fields missing from disk.
func DefaultSettings() Settings {
	return Settings{
		HighlightsEnabled:  true,
		HighlightColor:     "#ffd54f",
		MaxHighlights:      80,
		BacklinkLimit:      200,
		LabelMaxLength:     60,
		ProgressDebounceMs: 500,
		RefreshDebounceMs:  300,
	}
}

// Position is a viewer location. Renderers report either an opaque string
// (a CFI) or a number (a page or fraction), and the JSON form keeps that shape.
type Position struct {
	text   string
	number float64
	isNum  bool
}

// StringPosition wraps an opaque location.
func StringPosition(s string) Position {
	return Position{text: s}
}

// NumberPosition wraps a numeric location.
func NumberPosition(n float64) Position {
	return Position{number: n, isNum: true}
}

// IsNumber reports whether the position is numeric.
func (p Position) IsNumber() bool {
	return p.isNum
}

// Number returns the numeric value, or zero for string positions.
func (p Position) Number() float64 {
	return p.number
}

// IsZero reports whether the position carries no value.
func (p Position) IsZero() bool {
	return !p.isNum && p.text == ""
}

func (p Position) String() string {
	if p.isNum {
		return strconv.FormatFloat(p.number, 'f', -1, 64)
	}
	return p.text
}

// MarshalJSON implements json.Marshaler.
func (p Position) MarshalJSON() ([]byte, error) {
	if p.isNum {
		return json.Marshal(p.number)
	}
	return json.Marshal(p.text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Position) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*p = Position{}
	case string:
		*p = StringPosition(val)
	case float64:
		*p = NumberPosition(val)
	default:
		return fmt.Errorf("position must be a string or number, got %s", data)
	}
	return nil
}

// Record is the last viewed position of one document.
type Record struct {
	Position Position `json:"position"`
	// UpdatedAt is milliseconds since the Unix epoch.
	UpdatedAt int64 `json:"updatedAt"`
}

// Document is the full persisted payload.
type Document struct {
	Version  int               `json:"version"`
	Settings Settings          `json:"settings"`
	Progress map[string]Record `json:"progress"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() Document {
	return Document{
		Version:  CurrentVersion,
		Settings: DefaultSettings(),
		Progress: make(map[string]Record),
	}
}

// Decode parses a persisted payload. Payloads without a version marker are
// treated as bare settings and upgraded. Versioned payloads are read over the
// defaults so fields added later keep their default value.
func Decode(data []byte) (Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Document{}, fmt.Errorf("decode state: %w", err)
	}

	if _, versioned := probe["version"]; !versioned {
		if err := json.Unmarshal(data, &doc.Settings); err != nil {
			return Document{}, fmt.Errorf("decode legacy settings: %w", err)
		}
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode state: %w", err)
	}
	if doc.Version > CurrentVersion {
		return Document{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	doc.Version = CurrentVersion
	doc.Progress = normalizeProgress(doc.Progress)
	return doc, nil
}

// Encode serializes the document at the current version.
func Encode(doc Document) ([]byte, error) {
	doc.Version = CurrentVersion
	if doc.Progress == nil {
		doc.Progress = make(map[string]Record)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// normalizeProgress collapses keys that only differ in separator style or
// composition. The most recently updated record wins.
func normalizeProgress(in map[string]Record) map[string]Record {
	out := make(map[string]Record, len(in))
	for key, rec := range in {
		normalized := pathutil.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		if existing, ok := out[normalized]; ok && existing.UpdatedAt >= rec.UpdatedAt {
			continue
		}
		out[normalized] = rec
	}
	return out
}
