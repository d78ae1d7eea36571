package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatVersion is written into every saved document.
const FormatVersion = "1.0.0"

// TimeLayout is the on-disk timestamp encoding (millisecond precision, UTC).
const TimeLayout = "2006-01-02T15:04:05.000Z"

var (
	ErrNoData          = errors.New("no data to export")
	ErrInvalidDocument = errors.New("invalid data format")
	ErrNotSupported    = errors.New("operation not supported by storage backend")
)

// Document is the unit of persistence.
type Document struct {
	Version             string          `json:"version"`
	Prompts             []PromptRecord  `json:"prompts"`
	Categories          []string        `json:"categories"`
	Settings            json.RawMessage `json:"settings,omitempty"`
	TranslationSettings json.RawMessage `json:"translationSettings,omitempty"`
	LastModified        string          `json:"lastModified"`
}

type PromptRecord struct {
	ID           string                       `json:"id"`
	Title        string                       `json:"title"`
	Content      string                       `json:"content"`
	Category     string                       `json:"category,omitempty"`
	Tags         []string                     `json:"tags,omitempty"`
	CreatedAt    Timestamp                    `json:"createdAt"`
	UpdatedAt    Timestamp                    `json:"updatedAt"`
	Versions     []VersionRecord              `json:"versions"`
	Translations map[string]TranslationRecord `json:"translations,omitempty"`
}

type VersionRecord struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"createdAt"`
}

type TranslationRecord struct {
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	TranslatedAt Timestamp `json:"translatedAt"`
	Provider     string    `json:"provider,omitempty"`
	IsOutdated   bool      `json:"isOutdated"`
}

// Timestamp holds an encoded instant. Numbers (epoch milliseconds) are accepted on
// decode and rewritten in TimeLayout. Any other value decodes as empty, which Time
// resolves to its fallback; decoding never fails.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*t = Timestamp(s)
		}
		return nil
	}
	if ms, err := strconv.ParseFloat(string(b), 64); err == nil {
		*t = Timestamp(FormatTime(time.UnixMilli(int64(ms))))
	}
	return nil
}

// Time parses the timestamp, falling back to fallback when it cannot be read.
func (t Timestamp) Time(fallback time.Time) time.Time {
	return ParseTime(string(t), fallback)
}

func Stamp(t time.Time) Timestamp {
	return Timestamp(FormatTime(t))
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var parseLayouts = []string{
	time.RFC3339Nano,
	TimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime never fails: unreadable input yields fallback.
func ParseTime(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

type Usage struct {
	Used       int64 `json:"used" yaml:"used"`
	Limit      int64 `json:"limit,omitempty" yaml:"limit,omitempty"`
	Percentage int   `json:"percentage,omitempty" yaml:"percentage,omitempty"`
}

func usageOf(used, limit int64) Usage {
	u := Usage{Used: used, Limit: limit}
	if limit > 0 {
		u.Percentage = int(math.Round(float64(used) / float64(limit) * 100))
	}
	return u
}

type BackupInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	Size      int64     `json:"size,omitempty" yaml:"size,omitempty"`
}

// Empty returns a fresh document with no prompts.
func Empty(now time.Time) *Document {
	return &Document{
		Version:      FormatVersion,
		Prompts:      []PromptRecord{},
		Categories:   []string{},
		LastModified: FormatTime(now),
	}
}

// DecodeDocument reads and validates an import payload. A valid payload carries a
// non-empty string "version" and an array "prompts". Timestamps are normalized.
func DecodeDocument(r io.Reader, now time.Time) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	var version string
	if err := json.Unmarshal(probe["version"], &version); err != nil || version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidDocument)
	}
	if p := bytes.TrimSpace(probe["prompts"]); len(p) == 0 || p[0] != '[' {
		return nil, fmt.Errorf("%w: prompts must be an array", ErrInvalidDocument)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	doc.normalize(now)
	return &doc, nil
}

func (d *Document) normalize(now time.Time) {
	if d.Prompts == nil {
		d.Prompts = []PromptRecord{}
	}
	if d.Categories == nil {
		d.Categories = []string{}
	}
	for i := range d.Prompts {
		p := &d.Prompts[i]
		p.CreatedAt = Stamp(p.CreatedAt.Time(now))
		p.UpdatedAt = Stamp(p.UpdatedAt.Time(now))
		if p.Versions == nil {
			p.Versions = []VersionRecord{}
		}
		for j := range p.Versions {
			p.Versions[j].CreatedAt = Stamp(p.Versions[j].CreatedAt.Time(now))
		}
	}
}

func encodeDocument(d *Document, indent bool) ([]byte, error) {
	if indent {
		return json.MarshalIndent(d, "", "  ")
	}
	return json.Marshal(d)
}

func decodeStored(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	if doc.Prompts == nil {
		doc.Prompts = []PromptRecord{}
	}
	if doc.Categories == nil {
		doc.Categories = []string{}
	}
	return &doc, nil
}

// stamped returns a shallow copy of d with LastModified set to now.
func stamped(d *Document, now time.Time) *Document {
	cp := *d
	if cp.Version == "" {
		cp.Version = FormatVersion
	}
	if cp.Prompts == nil {
		cp.Prompts = []PromptRecord{}
	}
	if cp.Categories == nil {
		cp.Categories = []string{}
	}
	cp.LastModified = FormatTime(now)
	return &cp
}
