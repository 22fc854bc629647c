package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cara/internal/logging"
)

// Entry is one decoded log record.
type Entry struct {
	Time          time.Time      `json:"ts"`
	Level         string         `json:"level"`
	Message       string         `json:"msg"`
	Component     string         `json:"component,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	Section       string         `json:"section,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Attrs         map[string]any `json:"attrs,omitempty"`
	Raw           string         `json:"-"`
}

var reservedKeys = map[string]bool{
	"ts":                       true,
	slog.LevelKey:              true,
	slog.MessageKey:            true,
	logging.FieldComponent:     true,
	logging.FieldProvider:      true,
	logging.FieldSection:       true,
	logging.FieldCorrelationID: true,
}

// ParseEntry decodes a JSON log line. Lines that are not JSON objects come back
// as an entry carrying only Raw and Message.
func ParseEntry(line string) Entry {
	entry := Entry{Raw: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		entry.Message = line
		return entry
	}
	if ts, ok := fields["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Time = parsed
		}
	}
	entry.Level = stringField(fields, slog.LevelKey)
	entry.Message = stringField(fields, slog.MessageKey)
	entry.Component = stringField(fields, logging.FieldComponent)
	entry.Provider = stringField(fields, logging.FieldProvider)
	entry.Section = stringField(fields, logging.FieldSection)
	entry.CorrelationID = stringField(fields, logging.FieldCorrelationID)
	for key, value := range fields {
		if reservedKeys[key] {
			continue
		}
		if entry.Attrs == nil {
			entry.Attrs = make(map[string]any)
		}
		entry.Attrs[key] = value
	}
	return entry
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Filter narrows entries. Zero fields match everything.
type Filter struct {
	CorrelationID string
	Provider      string
	Section       string
	MinLevel      string
}

// Match reports whether entry passes every set field.
func (f Filter) Match(entry Entry) bool {
	if f.CorrelationID != "" && entry.CorrelationID != f.CorrelationID {
		return false
	}
	if f.Provider != "" && !strings.EqualFold(entry.Provider, f.Provider) {
		return false
	}
	if f.Section != "" && !strings.EqualFold(entry.Section, f.Section) {
		return false
	}
	if f.MinLevel != "" && levelRank(entry.Level) < levelRank(f.MinLevel) {
		return false
	}
	return true
}

func levelRank(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
