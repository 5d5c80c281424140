package journey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jornada-io/jornada/pkg/models"
)

func TestMatchPrecedence(t *testing.T) {
	conditions := []models.Condition{
		{EdgeID: "kw", Target: "n-kw", Type: models.ConditionKeywords, Value: "sim|quero"},
		{EdgeID: "re", Target: "n-re", Type: models.ConditionRegex, Value: "/^sim$/i"},
		{EdgeID: "pl", Target: "n-pl", Type: models.ConditionPayload, Value: "BTN_YES"},
		{EdgeID: "fb", Target: "n-fb", Type: models.ConditionKeywords, IsFallback: true},
	}

	tests := []struct {
		name    string
		text    string
		payload string
		want    string
	}{
		{"payload beats everything", "sim", "BTN_YES", "pl"},
		{"regex beats keywords", "sim", "", "re"},
		{"keywords when regex misses", "Sim, quero", "", "kw"},
		{"fallback when nothing matches", "talvez", "", "fb"},
		{"unknown payload falls through to text", "sim", "BTN_OTHER", "re"},
		{"empty reply takes fallback", "", "", "fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chosen, ok := Match(conditions, tt.text, tt.payload)
			require.True(t, ok)
			assert.Equal(t, tt.want, chosen.EdgeID)
		})
	}
}

func TestMatchNoFallback(t *testing.T) {
	conditions := []models.Condition{
		{EdgeID: "kw", Type: models.ConditionKeywords, Value: "sim"},
	}

	_, ok := Match(conditions, "nunca", "")
	assert.False(t, ok)
}

func TestMatchPayloadExact(t *testing.T) {
	conditions := []models.Condition{
		{EdgeID: "pl", Type: models.ConditionPayload, Value: "YES|CONFIRM"},
	}

	_, ok := Match(conditions, "", "yes")
	assert.False(t, ok, "payload match is case-sensitive")

	chosen, ok := Match(conditions, "", "CONFIRM")
	require.True(t, ok)
	assert.Equal(t, "pl", chosen.EdgeID)
}

func TestMatchKeywordsSubstringCaseInsensitive(t *testing.T) {
	conditions := []models.Condition{
		{EdgeID: "kw", Type: models.ConditionKeywords, Value: "Quero | outra"},
	}

	chosen, ok := Match(conditions, "eu QUERO participar", "")
	require.True(t, ok)
	assert.Equal(t, "kw", chosen.EdgeID)
}

func TestMatchRegexForms(t *testing.T) {
	tests := []struct {
		name  string
		value string
		text  string
		want  bool
	}{
		{"slash form with i flag", "/^sim$/i", "SIM", true},
		{"slash form without flag", "/^sim$/", "SIM", false},
		{"bare pattern", "^\\d{4}$", "1234", true},
		{"invalid pattern never matches", "/[unclosed/", "anything", false},
		{"js-only flags ignored", "/sim/giu", "assim", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchRegex(tt.value, tt.text))
		})
	}
}

func TestTimeoutCondition(t *testing.T) {
	conditions := []models.Condition{
		{EdgeID: "kw", Type: models.ConditionKeywords, Value: "sim"},
		{EdgeID: "fb", IsFallback: true},
		{EdgeID: "to", IsTimeout: true},
	}

	chosen, ok := TimeoutCondition(conditions)
	require.True(t, ok)
	assert.Equal(t, "to", chosen.EdgeID)

	chosen, ok = TimeoutCondition(conditions[:2])
	require.True(t, ok)
	assert.Equal(t, "fb", chosen.EdgeID, "falls back to the fallback edge")

	_, ok = TimeoutCondition(conditions[:1])
	assert.False(t, ok)
}
