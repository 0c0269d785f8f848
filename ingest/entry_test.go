package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/models"
)

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Reason
}

func TestValidateEventName(t *testing.T) {
	name, err := ValidateEventName("  add_to_cart ")
	require.NoError(t, err)
	assert.Equal(t, "add_to_cart", name)

	_, err = ValidateEventName("   ")
	assert.Equal(t, ReasonMissingName, reasonOf(t, err))

	_, err = ValidateEventName(strings.Repeat("e", MaxEventNameLen+1))
	assert.Equal(t, ReasonNameTooLong, reasonOf(t, err))
}

func TestParseMetadata_AbsentOrNull(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		m, err := ParseMetadata(json.RawMessage(raw))
		require.NoError(t, err)
		encoded, err := m.Encode()
		require.NoError(t, err)
		assert.Nil(t, encoded)
	}
}

func TestParseMetadata_Rejections(t *testing.T) {
	tooMany := map[string]int{}
	for i := 0; i <= MaxMetadataKeys; i++ {
		tooMany[fmt.Sprintf("k%d", i)] = i
	}
	tooManyJSON, _ := json.Marshal(tooMany)

	cases := []struct {
		name   string
		raw    string
		reason string
	}{
		{"array", `[1,2,3]`, ReasonNotObject},
		{"string", `"hello"`, ReasonNotObject},
		{"broken", `{"a":`, ReasonInvalidJSON},
		{"too many keys", string(tooManyJSON), ReasonTooManyKeys},
		{"too deep", `{"a":{"b":{"c":{"d":{"e":1}}}}}`, ReasonTooDeep},
		{"too deep via arrays", `{"a":[[[[1]]]]}`, ReasonTooDeep},
		{"too large", `{"blob":"` + strings.Repeat("x", MaxMetadataBytes) + `"}`, ReasonMetadataTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMetadata(json.RawMessage(tc.raw))
			assert.Equal(t, tc.reason, reasonOf(t, err))
		})
	}
}

func TestParseMetadata_KeepsNestingAndTruncatesStrings(t *testing.T) {
	long := strings.Repeat("é", MaxStringRunes+10)
	raw := fmt.Sprintf(`{"sessionId":"s-1","price":19.99,"nested":{"b":{"c":{"note":%q}}}}`, long)

	m, err := ParseMetadata(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "s-1", m.String("sessionId"))

	encoded, err := m.Encode()
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(encoded, &back))
	assert.Equal(t, 19.99, back["price"])
	note := back["nested"].(map[string]any)["b"].(map[string]any)["c"].(map[string]any)["note"].(string)
	assert.Len(t, []rune(note), MaxStringRunes)
}

func TestNewEntry_ServerStampsFields(t *testing.T) {
	m, err := ParseMetadata(json.RawMessage(`{"sessionId":"abc","path":"/p/42","timestamp":"1999-01-01T00:00:00Z"}`))
	require.NoError(t, err)

	now := time.Date(2024, 7, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	entry, err := NewEntry(models.EventTypeEvent, "add_to_cart", m, RequestInfo{
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0",
		PageURL:   "https://shop.example.com/p/42",
	}, now)
	require.NoError(t, err)

	assert.Len(t, entry.ID, 26)
	assert.Equal(t, "abc", entry.SessionID)
	assert.Equal(t, "/p/42", entry.PagePath)
	assert.Equal(t, "https://shop.example.com/p/42", entry.PageURL)
	assert.Equal(t, "203.0.113.7", entry.IPAddress)
	assert.Equal(t, time.UTC, entry.CreatedAt.Location())
	assert.True(t, entry.CreatedAt.Equal(now))
	assert.JSONEq(t, `{"sessionId":"abc","path":"/p/42","timestamp":"1999-01-01T00:00:00Z"}`, string(entry.Metadata))

	other, err := NewEntry(models.EventTypeEvent, "add_to_cart", m, RequestInfo{}, now)
	require.NoError(t, err)
	assert.NotEqual(t, entry.ID, other.ID)
}

func TestEventTypeFor(t *testing.T) {
	assert.Equal(t, models.EventTypePageView, EventTypeFor("page_view"))
	assert.Equal(t, models.EventTypeEvent, EventTypeFor("page_exit"))
	assert.Equal(t, models.EventTypeEvent, EventTypeFor("Page_View"))
}
