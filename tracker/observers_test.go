package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClick_ResolvesDeclaredBinding(t *testing.T) {
	tr, regular, _, _ := newTestTracker(t, ConsentAccepted)
	tr.Bind("product-card-42", Binding{Event: "product_click", Metadata: map[string]any{"productId": "42"}})

	tr.Click("product-card-42", ClickInfo{Text: "  Blue   Sneakers \n", ElementID: "card-42"})
	tr.Click("footer-logo", ClickInfo{Text: "Home"})
	tr.Wait()

	got := regular.payloads()
	require.Len(t, got, 1)
	assert.Equal(t, "product_click", got[0].EventName)
	assert.Equal(t, "42", got[0].Metadata["productId"])
	assert.Equal(t, "Blue Sneakers", got[0].Metadata["text"])
	assert.Equal(t, "card-42", got[0].Metadata["elementId"])
}

func TestClick_UnbindAndInitialMap(t *testing.T) {
	regular := &recorder{}
	tr := New(Config{
		Transport: regular,
		Clicks:    ClickMap{"buy-now": {Event: "buy_now"}},
	})
	require.NoError(t, tr.Consent().Set(ConsentAccepted))

	tr.Click("buy-now", ClickInfo{Text: strings.Repeat("x", 300)})
	tr.Unbind("buy-now")
	tr.Click("buy-now", ClickInfo{})
	tr.Wait()

	got := regular.named("buy_now")
	require.Len(t, got, 1)
	assert.Len(t, got[0].Metadata["text"], maxClickText)
}

func TestBindingFromMarker(t *testing.T) {
	b, ok := BindingFromMarker(map[string]string{
		MarkerAttr:     "newsletter_signup",
		MarkerMetaAttr: `{"placement":"footer"}`,
	})
	require.True(t, ok)
	assert.Equal(t, "newsletter_signup", b.Event)
	assert.Equal(t, map[string]any{"placement": "footer"}, b.Metadata)

	b, ok = BindingFromMarker(map[string]string{MarkerAttr: "x", MarkerMetaAttr: "{broken"})
	require.True(t, ok)
	assert.Nil(t, b.Metadata)

	_, ok = BindingFromMarker(map[string]string{"class": "btn"})
	assert.False(t, ok)
}

func TestAutoTracker_FollowsConsent(t *testing.T) {
	tr, regular, _, _ := newTestTracker(t, ConsentDeclined)
	auto := NewAutoTracker(tr)
	defer auto.Close()

	assert.False(t, auto.Attached())
	auto.VideoPlay("/media/intro.mp4")

	require.NoError(t, tr.Consent().Set(ConsentAccepted))
	assert.True(t, auto.Attached())
	auto.VideoPlay("/media/intro.mp4")
	auto.TabChange(true)
	auto.ExternalLink("https://partner.example.org/deal")
	auto.ExternalLink("https://shop.example.com/cart")
	auto.ExternalLink("/relative")

	require.NoError(t, tr.Consent().Set(ConsentPartial))
	assert.False(t, auto.Attached())
	auto.TabChange(false)
	tr.Wait()

	assert.Len(t, regular.named(EventVideoPlay), 1)
	tabs := regular.named(EventTabChange)
	require.Len(t, tabs, 1)
	assert.Equal(t, "hidden", tabs[0].Metadata["state"])
	links := regular.named(EventExternalLink)
	require.Len(t, links, 1)
	assert.Equal(t, "partner.example.org", links[0].Metadata["domain"])
}

func TestAutoTracker_CloseDetaches(t *testing.T) {
	tr, _, _, _ := newTestTracker(t, ConsentAccepted)
	auto := NewAutoTracker(tr)
	require.True(t, auto.Attached())

	auto.Close()
	assert.False(t, auto.Attached())
	require.NoError(t, tr.Consent().Set(ConsentAccepted))
	assert.False(t, auto.Attached())
}

func TestHTTPTransport_RoutesByPayloadKind(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies[r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", srv.Client())
	require.NoError(t, tr.Send(context.Background(), Payload{EventName: "page_view", Metadata: map[string]any{"path": "/"}}))
	require.NoError(t, tr.Send(context.Background(), Payload{EventType: "search", Query: "hat", Metadata: map[string]any{}}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "page_view", bodies[EventPath]["eventName"])
	assert.Equal(t, "hat", bodies[SearchPath]["query"])
}

func TestHTTPTransport_NonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPTransport(srv.URL, nil).Send(context.Background(), Payload{EventName: "x"})
	assert.Error(t, err)
}
