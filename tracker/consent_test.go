package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/logging"
)

func TestParseConsent(t *testing.T) {
	assert.Equal(t, ConsentAccepted, ParseConsent("accepted"))
	assert.Equal(t, ConsentPartial, ParseConsent("partial"))
	assert.Equal(t, ConsentDeclined, ParseConsent("declined"))
	assert.Equal(t, ConsentUnset, ParseConsent(""))
	assert.Equal(t, ConsentUnset, ParseConsent("ACCEPTED"))
}

func TestConsentGate_OnlyAcceptedAllows(t *testing.T) {
	g := NewConsentGate(NewMemoryStorage(), logging.Discard())
	assert.False(t, g.Allowed())

	for _, state := range []ConsentState{ConsentPartial, ConsentDeclined, ConsentUnset} {
		require.NoError(t, g.Set(state))
		assert.False(t, g.Allowed(), state)
	}

	require.NoError(t, g.Set(ConsentAccepted))
	assert.True(t, g.Allowed())
}

func TestConsentGate_ReadsStorageEveryCall(t *testing.T) {
	storage := NewMemoryStorage()
	g := NewConsentGate(storage, logging.Discard())

	require.NoError(t, storage.Set(consentKey, "accepted"))
	assert.True(t, g.Allowed())

	require.NoError(t, storage.Set(consentKey, "declined"))
	assert.False(t, g.Allowed())

	storage.SetDisabled(true)
	assert.Equal(t, ConsentUnset, g.State())
}

func TestConsentGate_BroadcastsChanges(t *testing.T) {
	g := NewConsentGate(NewMemoryStorage(), logging.Discard())

	var seen []ConsentState
	unsubscribe := g.Subscribe(func(s ConsentState) { seen = append(seen, s) })

	require.NoError(t, g.Set(ConsentAccepted))
	require.NoError(t, g.Set(ConsentDeclined))
	unsubscribe()
	require.NoError(t, g.Set(ConsentAccepted))

	assert.Equal(t, []ConsentState{ConsentAccepted, ConsentDeclined}, seen)
}

func TestConsentGate_SetRejectsUnknownAndStorageFailure(t *testing.T) {
	storage := NewMemoryStorage()
	g := NewConsentGate(storage, logging.Discard())

	called := false
	g.Subscribe(func(ConsentState) { called = true })

	assert.Error(t, g.Set("maybe"))

	storage.SetDisabled(true)
	err := g.Set(ConsentAccepted)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.False(t, called)
}
