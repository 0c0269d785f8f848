// Package tracker is the client half of the storefront analytics pipeline.
//
// A Tracker encodes named events with ambient page and device context, checks
// the visitor's consent at call time and hands the payload to a Transport on a
// separate goroutine. Delivery is best effort: nothing is queued, retried or
// ordered, and a failure never reaches the caller.
package tracker

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"storefront/api/logging"
)

// Event names emitted by the built-in observers.
const (
	EventPageView     = "page_view"
	EventPageExit     = "page_exit"
	EventScrollDepth  = "scroll_depth"
	EventExternalLink = "external_link_click"
	EventVideoPlay    = "video_play"
	EventTabChange    = "tab_change"
)

// Config wires a Tracker. Transport is required.
type Config struct {
	Storage   Storage   // defaults to a MemoryStorage
	Transport Transport // regular delivery, bounded by SendTimeout
	Beacon    Transport // unload-safe delivery; defaults to Beacon(Transport, DefaultBeaconTimeout)
	Device    Device
	Host      string // site host, used to recognise external links
	Clicks    ClickMap
	Logger    *slog.Logger
	Now       func() time.Time

	SendTimeout time.Duration // defaults to DefaultSendTimeout
}

// Tracker is safe for concurrent use.
type Tracker struct {
	transport Transport
	beacon    Transport
	sessions  *Sessions
	consent   *ConsentGate
	device    Device
	host      string
	logger    *slog.Logger
	now       func() time.Time
	timeout   time.Duration

	inflight sync.WaitGroup

	mu     sync.Mutex
	visit  *pageVisit
	clicks ClickMap
}

type pageVisit struct {
	page    Page
	started time.Time
	scroll  scrollState
}

func New(cfg Config) *Tracker {
	if cfg.Storage == nil {
		cfg.Storage = NewMemoryStorage()
	}
	if cfg.Beacon == nil {
		cfg.Beacon = Beacon(cfg.Transport, DefaultBeaconTimeout)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	logger := logging.For(cfg.Logger, logging.ChannelTracker)

	clicks := make(ClickMap, len(cfg.Clicks))
	for id, b := range cfg.Clicks {
		clicks[id] = b
	}

	t := &Tracker{
		transport: cfg.Transport,
		beacon:    cfg.Beacon,
		sessions:  NewSessions(cfg.Storage, logger),
		consent:   NewConsentGate(cfg.Storage, logger),
		device:    cfg.Device,
		host:      cfg.Host,
		logger:    logger,
		now:       cfg.Now,
		timeout:   cfg.SendTimeout,
		clicks:    clicks,
	}
	t.visit = t.newVisit(Page{})
	return t
}

// Consent exposes the consent gate so the UI can record the visitor's choice.
func (t *Tracker) Consent() *ConsentGate {
	return t.consent
}

// SessionID returns the current session identifier.
func (t *Tracker) SessionID() string {
	return t.sessions.ID()
}

// Track reports a named event. It returns immediately.
func (t *Tracker) Track(name string, meta map[string]any) {
	t.emit(false, func(amb Ambient) Payload {
		return Encode(name, meta, amb)
	})
}

// TrackSearch reports a search query through the search endpoint.
func (t *Tracker) TrackSearch(query string, meta map[string]any) {
	t.emit(false, func(amb Ambient) Payload {
		return EncodeSearch(query, meta, amb)
	})
}

// Navigate starts a new page visit and reports a page view. Deliveries still
// in flight from the previous page run to completion.
func (t *Tracker) Navigate(path, query, referrer string) {
	t.mu.Lock()
	t.visit = t.newVisit(Page{Path: path, Query: query, Referrer: referrer})
	t.mu.Unlock()

	t.Track(EventPageView, nil)
}

// Exit reports how long the current page was active, in whole seconds, through
// the unload-safe transport.
func (t *Tracker) Exit() {
	t.mu.Lock()
	visit := t.visit
	t.mu.Unlock()

	seconds := int(math.Round(t.now().Sub(visit.started).Seconds()))
	t.emit(true, func(amb Ambient) Payload {
		return Encode(EventPageExit, map[string]any{"duration": seconds}, amb)
	})
}

// Wait blocks until every dispatched delivery has finished.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

func (t *Tracker) newVisit(page Page) *pageVisit {
	return &pageVisit{page: page, started: t.now()}
}

func (t *Tracker) emit(unload bool, build func(Ambient) Payload) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("tracking call panicked", "panic", r)
		}
	}()

	if !t.consent.Allowed() {
		return
	}

	t.mu.Lock()
	page := t.visit.page
	t.mu.Unlock()

	p := build(Ambient{
		Page:      page,
		Device:    t.device,
		SessionID: t.sessions.ID(),
		Time:      t.now(),
	})

	transport := t.transport
	if unload {
		transport = t.beacon
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Debug("event delivery panicked", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := transport.Send(ctx, p); err != nil {
			t.logger.Debug("event delivery failed", "event", p.EventName, "error", err)
		}
	}()
}
