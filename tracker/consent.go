package tracker

import (
	"fmt"
	"log/slog"
	"sync"
)

// ConsentState is the visitor's recorded tracking choice.
type ConsentState string

const (
	ConsentAccepted ConsentState = "accepted"
	ConsentPartial  ConsentState = "partial"
	ConsentDeclined ConsentState = "declined"
	ConsentUnset    ConsentState = "unset"
)

const consentKey = "cookie_consent"

// ParseConsent maps a stored value to a state. Anything unrecognised is unset.
func ParseConsent(v string) ConsentState {
	switch s := ConsentState(v); s {
	case ConsentAccepted, ConsentPartial, ConsentDeclined:
		return s
	default:
		return ConsentUnset
	}
}

// ConsentGate reads the consent state from storage on every call, so a change
// applies to the very next event.
type ConsentGate struct {
	storage Storage
	logger  *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   []consentSub
}

type consentSub struct {
	id int
	fn func(ConsentState)
}

func NewConsentGate(storage Storage, logger *slog.Logger) *ConsentGate {
	return &ConsentGate{storage: storage, logger: logger}
}

// State returns the current consent state; unreadable storage counts as unset.
func (g *ConsentGate) State() ConsentState {
	v, err := g.storage.Get(consentKey)
	if err != nil {
		g.logger.Debug("consent storage unavailable", "error", err)
		return ConsentUnset
	}
	return ParseConsent(v)
}

// Allowed reports whether events may leave the client. Only an explicit
// "accepted" allows it; "partial" is treated as declined.
func (g *ConsentGate) Allowed() bool {
	return g.State() == ConsentAccepted
}

// Set persists the state and notifies subscribers.
func (g *ConsentGate) Set(state ConsentState) error {
	switch state {
	case ConsentAccepted, ConsentPartial, ConsentDeclined, ConsentUnset:
	default:
		return fmt.Errorf("tracker: unknown consent state %q", state)
	}
	if err := g.storage.Set(consentKey, string(state)); err != nil {
		return fmt.Errorf("tracker: persist consent: %w", err)
	}

	g.mu.Lock()
	subs := make([]consentSub, len(g.subs))
	copy(subs, g.subs)
	g.mu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
	return nil
}

// Subscribe registers fn to be called after every successful Set. The returned
// function removes the subscription.
func (g *ConsentGate) Subscribe(fn func(ConsentState)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	g.subs = append(g.subs, consentSub{id: id, fn: fn})

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, sub := range g.subs {
			if sub.id == id {
				g.subs = append(g.subs[:i], g.subs[i+1:]...)
				return
			}
		}
	}
}
