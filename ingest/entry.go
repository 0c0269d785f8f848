// Package ingest turns accepted tracking submissions into analytics entries
// and writes them to a sink without holding up the HTTP response.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"storefront/api/models"
)

// Limits applied to client-supplied data before it reaches storage.
const (
	MaxEventNameLen  = 128
	MaxMetadataBytes = 16 << 10
	MaxMetadataKeys  = 64
	MaxMetadataDepth = 4
	MaxStringRunes   = 1024
)

// Rejection reasons, also used as metric labels.
const (
	ReasonInvalidJSON      = "invalid_json"
	ReasonBodyTooLarge     = "body_too_large"
	ReasonMissingName      = "missing_event_name"
	ReasonMissingQuery     = "missing_query"
	ReasonNameTooLong      = "event_name_too_long"
	ReasonNotObject        = "metadata_not_object"
	ReasonMetadataTooLarge = "metadata_too_large"
	ReasonTooManyKeys      = "metadata_too_many_keys"
	ReasonTooDeep          = "metadata_too_deep"
)

// ValidationError describes why a submission was rejected.
type ValidationError struct {
	Reason string
	Msg    string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Invalid builds a ValidationError.
func Invalid(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// ValidateEventName checks a client-supplied event name.
func ValidateEventName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Invalid(ReasonMissingName, "eventName is required")
	}
	if utf8.RuneCountInString(name) > MaxEventNameLen {
		return "", Invalid(ReasonNameTooLong, "eventName exceeds %d characters", MaxEventNameLen)
	}
	return name, nil
}

// Metadata is a sanitized, schema-less metadata object.
type Metadata struct {
	fields map[string]any
}

// ParseMetadata accepts an absent/null value or a JSON object within the size,
// key-count and depth limits. Long strings are truncated rather than rejected.
func ParseMetadata(raw json.RawMessage) (*Metadata, error) {
	m := &Metadata{fields: make(map[string]any)}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return m, nil
	}
	if len(trimmed) > MaxMetadataBytes {
		return nil, Invalid(ReasonMetadataTooLarge, "metadata exceeds %d bytes", MaxMetadataBytes)
	}
	if trimmed[0] != '{' {
		return nil, Invalid(ReasonNotObject, "metadata must be a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&m.fields); err != nil {
		return nil, Invalid(ReasonInvalidJSON, "metadata is not valid JSON: %v", err)
	}
	if len(m.fields) > MaxMetadataKeys {
		return nil, Invalid(ReasonTooManyKeys, "metadata has more than %d keys", MaxMetadataKeys)
	}
	for k, v := range m.fields {
		clean, err := sanitize(v, 2)
		if err != nil {
			return nil, err
		}
		m.fields[k] = clean
	}
	return m, nil
}

func sanitize(v any, depth int) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if depth > MaxMetadataDepth {
			return nil, Invalid(ReasonTooDeep, "metadata nests deeper than %d levels", MaxMetadataDepth)
		}
		for k, x := range t {
			clean, err := sanitize(x, depth+1)
			if err != nil {
				return nil, err
			}
			t[k] = clean
		}
		return t, nil
	case []any:
		if depth > MaxMetadataDepth {
			return nil, Invalid(ReasonTooDeep, "metadata nests deeper than %d levels", MaxMetadataDepth)
		}
		for i, x := range t {
			clean, err := sanitize(x, depth+1)
			if err != nil {
				return nil, err
			}
			t[i] = clean
		}
		return t, nil
	case string:
		return truncate(t, MaxStringRunes), nil
	default:
		return v, nil
	}
}

// String returns a top-level string field, or "".
func (m *Metadata) String(key string) string {
	s, _ := m.fields[key].(string)
	return s
}

// Set adds or replaces a top-level field.
func (m *Metadata) Set(key string, v any) {
	if s, ok := v.(string); ok {
		v = truncate(s, MaxStringRunes)
	}
	m.fields[key] = v
}

// Encode returns the JSON form, or nil when there are no fields.
func (m *Metadata) Encode() (json.RawMessage, error) {
	if len(m.fields) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m.fields)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

// RequestInfo is what the server observed about the submitting request.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	PageURL   string
}

// NewEntry builds a persisted entry. Identity, timing and request context come
// from the server; only the event name, session id, page path and metadata come
// from the client.
func NewEntry(eventType, eventName string, meta *Metadata, info RequestInfo, now time.Time) (models.AnalyticsEntry, error) {
	encoded, err := meta.Encode()
	if err != nil {
		return models.AnalyticsEntry{}, err
	}
	return models.AnalyticsEntry{
		ID:        ulid.Make().String(),
		EventType: eventType,
		EventName: eventName,
		SessionID: truncate(meta.String("sessionId"), 64),
		PageURL:   truncate(info.PageURL, 2048),
		PagePath:  truncate(meta.String("path"), 2048),
		UserAgent: truncate(info.UserAgent, 512),
		IPAddress: info.IPAddress,
		Metadata:  encoded,
		CreatedAt: now.UTC(),
	}, nil
}

// EventTypeFor classifies a named event.
func EventTypeFor(eventName string) string {
	if eventName == models.EventTypePageView {
		return models.EventTypePageView
	}
	return models.EventTypeEvent
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
