package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	EventPath  = "/api/track"
	SearchPath = "/api/track/search"

	DefaultBeaconTimeout = 5 * time.Second
	DefaultSendTimeout   = 10 * time.Second
)

// Transport delivers one payload. Implementations make a single attempt.
type Transport interface {
	Send(ctx context.Context, p Payload) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, p Payload) error

func (f TransportFunc) Send(ctx context.Context, p Payload) error {
	return f(ctx, p)
}

// HTTPTransport posts payloads to the ingestion API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	path := EventPath
	if p.IsSearch() {
		path = SearchPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

type beacon struct {
	next    Transport
	timeout time.Duration
}

// Beacon wraps next so that a delivery survives cancellation of the caller's
// context, as a page teardown would cause. The send is bounded by timeout
// instead.
func Beacon(next Transport, timeout time.Duration) Transport {
	if timeout <= 0 {
		timeout = DefaultBeaconTimeout
	}
	return &beacon{next: next, timeout: timeout}
}

func (b *beacon) Send(ctx context.Context, p Payload) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	return b.next.Send(ctx, p)
}
