package tracker

import (
	"net/url"
	"strings"
	"sync"
)

// AutoTracker reports external link clicks, video plays and tab visibility
// changes. It attaches while consent is accepted and detaches as soon as it is
// withdrawn; detached calls do nothing.
type AutoTracker struct {
	t *Tracker

	mu          sync.Mutex
	attached    bool
	unsubscribe func()
}

func NewAutoTracker(t *Tracker) *AutoTracker {
	a := &AutoTracker{t: t}
	a.setAttached(t.consent.Allowed())
	a.unsubscribe = t.consent.Subscribe(func(state ConsentState) {
		a.setAttached(state == ConsentAccepted)
	})
	return a
}

// Attached reports whether the listeners are currently active.
func (a *AutoTracker) Attached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached
}

// Close stops following consent changes and detaches.
func (a *AutoTracker) Close() {
	a.unsubscribe()
	a.setAttached(false)
}

// ExternalLink reports a click on a link that leaves the site.
func (a *AutoTracker) ExternalLink(href string) {
	if !a.Attached() {
		return
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" || strings.EqualFold(u.Hostname(), a.t.host) {
		return
	}
	a.t.Track(EventExternalLink, map[string]any{
		"url":    href,
		"domain": u.Hostname(),
	})
}

// VideoPlay reports the start of a video.
func (a *AutoTracker) VideoPlay(src string) {
	if !a.Attached() {
		return
	}
	a.t.Track(EventVideoPlay, map[string]any{"videoSrc": src})
}

// TabChange reports the page becoming hidden or visible.
func (a *AutoTracker) TabChange(hidden bool) {
	if !a.Attached() {
		return
	}
	state := "visible"
	if hidden {
		state = "hidden"
	}
	a.t.Track(EventTabChange, map[string]any{"state": state})
}

func (a *AutoTracker) setAttached(on bool) {
	a.mu.Lock()
	changed := a.attached != on
	a.attached = on
	a.mu.Unlock()

	if changed {
		a.t.logger.Debug("auto-tracking listeners toggled", "attached", on)
	}
}
