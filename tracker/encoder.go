package tracker

import "time"

// Ambient metadata keys merged into every event.
const (
	KeyPath         = "path"
	KeyQuery        = "query"
	KeyReferrer     = "referrer"
	KeyScreenWidth  = "screenWidth"
	KeyScreenHeight = "screenHeight"
	KeyUserAgent    = "userAgent"
	KeyTimestamp    = "timestamp"
	KeySessionID    = "sessionId"

	// KeyCaller holds caller metadata whose keys collide with ambient keys.
	KeyCaller = "caller"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Page is the location the visitor is currently on.
type Page struct {
	Path     string
	Query    string
	Referrer string
}

// Device describes the client the tracker runs in.
type Device struct {
	ScreenWidth  int
	ScreenHeight int
	UserAgent    string
}

// Ambient is the context captured at the moment an event is encoded.
type Ambient struct {
	Page      Page
	Device    Device
	SessionID string
	Time      time.Time
}

// Payload is what a Transport delivers. Search payloads carry EventType and
// Query instead of EventName.
type Payload struct {
	EventName string         `json:"eventName,omitempty"`
	EventType string         `json:"eventType,omitempty"`
	Query     string         `json:"query,omitempty"`
	Metadata  map[string]any `json:"metadata"`
}

// IsSearch reports whether the payload goes to the search endpoint.
func (p Payload) IsSearch() bool {
	return p.EventType != ""
}

// Encode builds a named event payload.
func Encode(name string, meta map[string]any, amb Ambient) Payload {
	return Payload{EventName: name, Metadata: Merge(meta, amb)}
}

// EncodeSearch builds a search payload.
func EncodeSearch(query string, meta map[string]any, amb Ambient) Payload {
	return Payload{EventType: "search", Query: query, Metadata: Merge(meta, amb)}
}

// Merge shallow-merges caller metadata with the ambient fields. Ambient values
// win; colliding caller values move under KeyCaller. meta is not modified.
func Merge(meta map[string]any, amb Ambient) map[string]any {
	ambient := amb.fields()
	out := make(map[string]any, len(meta)+len(ambient)+1)

	var shadowed map[string]any
	for k, v := range meta {
		if _, clash := ambient[k]; clash || k == KeyCaller {
			if shadowed == nil {
				shadowed = make(map[string]any)
			}
			shadowed[k] = v
			continue
		}
		out[k] = v
	}
	for k, v := range ambient {
		out[k] = v
	}
	if shadowed != nil {
		out[KeyCaller] = shadowed
	}
	return out
}

func (a Ambient) fields() map[string]any {
	return map[string]any{
		KeyPath:         a.Page.Path,
		KeyQuery:        a.Page.Query,
		KeyReferrer:     a.Page.Referrer,
		KeyScreenWidth:  a.Device.ScreenWidth,
		KeyScreenHeight: a.Device.ScreenHeight,
		KeyUserAgent:    a.Device.UserAgent,
		KeyTimestamp:    a.Time.UTC().Format(isoMillis),
		KeySessionID:    a.SessionID,
	}
}
