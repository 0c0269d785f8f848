package tracker

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"
)

// Marker attributes a rendered element uses to declare itself trackable.
const (
	MarkerAttr     = "data-track"
	MarkerMetaAttr = "data-track-meta"
)

const maxClickText = 100

// scrollState remembers how far down the current page the visitor has been.
type scrollState struct {
	max      float64
	reported int // highest quarter already reported, 0..4
}

// observe records a scroll position and returns the depth percentages newly
// crossed, in increasing order.
func (s *scrollState) observe(fraction float64) []int {
	fraction = math.Max(0, math.Min(1, fraction))
	if fraction <= s.max {
		return nil
	}
	s.max = fraction

	quarter := int(math.Floor(fraction*4 + 1e-9))
	var crossed []int
	for q := s.reported + 1; q <= quarter; q++ {
		crossed = append(crossed, q*25)
	}
	if quarter > s.reported {
		s.reported = quarter
	}
	return crossed
}

// ScrollFraction converts a scroll offset, the viewport height and the total
// document height into the fraction of the page seen so far.
func ScrollFraction(offset, viewport, total float64) float64 {
	if total <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, (offset+viewport)/total))
}

// Scroll records the visitor's scroll position on the current page. Each
// quarter of the page is reported at most once per visit.
func (t *Tracker) Scroll(fraction float64) {
	t.mu.Lock()
	crossed := t.visit.scroll.observe(fraction)
	t.mu.Unlock()

	for _, depth := range crossed {
		t.Track(EventScrollDepth, map[string]any{"depth": depth})
	}
}

// Binding is the event a clickable component reports.
type Binding struct {
	Event    string         `json:"event" yaml:"event"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ClickMap maps component identifiers to their bindings.
type ClickMap map[string]Binding

// ClickInfo is what the UI knows about the clicked element.
type ClickInfo struct {
	Text      string
	ElementID string
}

// Bind registers or replaces the binding for a component. Called at render time.
func (t *Tracker) Bind(componentID string, b Binding) {
	t.mu.Lock()
	t.clicks[componentID] = b
	t.mu.Unlock()
}

// Unbind removes a component's binding.
func (t *Tracker) Unbind(componentID string) {
	t.mu.Lock()
	delete(t.clicks, componentID)
	t.mu.Unlock()
}

// Click reports a click on a component. Components without a binding are ignored.
func (t *Tracker) Click(componentID string, info ClickInfo) {
	t.mu.Lock()
	b, ok := t.clicks[componentID]
	t.mu.Unlock()
	if !ok || b.Event == "" {
		return
	}

	meta := make(map[string]any, len(b.Metadata)+2)
	for k, v := range b.Metadata {
		meta[k] = v
	}
	if text := clickText(info.Text); text != "" {
		meta["text"] = text
	}
	if info.ElementID != "" {
		meta["elementId"] = info.ElementID
	}
	t.Track(b.Event, meta)
}

// BindingFromMarker builds a binding from an element's marker attributes.
// Metadata that is not a JSON object is ignored.
func BindingFromMarker(attrs map[string]string) (Binding, bool) {
	event := strings.TrimSpace(attrs[MarkerAttr])
	if event == "" {
		return Binding{}, false
	}
	b := Binding{Event: event}
	if raw := attrs[MarkerMetaAttr]; raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			b.Metadata = meta
		}
	}
	return b, true
}

func clickText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxClickText {
		return s
	}
	return string([]rune(s)[:maxClickText])
}
