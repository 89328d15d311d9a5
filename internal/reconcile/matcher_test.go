package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

var catalog = []entity.PricingTerm{
	{Item: "Widget"},
	{Item: "Widget Pro Max"},
	{Item: "Cloud Hosting - Standard Tier"},
}

func TestExactMatcher(t *testing.T) {
	i, ok := ExactMatcher{}.Match("  widget   PRO max ", catalog)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = ExactMatcher{}.Match("Widgets", catalog)
	assert.False(t, ok)

	_, ok = ExactMatcher{}.Match("", catalog)
	assert.False(t, ok)
}

func TestSubstringMatcher_PrefersLongestItem(t *testing.T) {
	i, ok := SubstringMatcher{}.Match("Widget Pro Max (blue)", catalog)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = SubstringMatcher{}.Match("widget", []entity.PricingTerm{{Item: "Deluxe Widget Kit"}})
	require.True(t, ok, "description contained in item")
	assert.Equal(t, 0, i)

	_, ok = SubstringMatcher{}.Match("Gadget", catalog)
	assert.False(t, ok)
}

func TestTokenOverlapMatcher(t *testing.T) {
	m := TokenOverlapMatcher{MinScore: 0.5}

	i, ok := m.Match("Standard tier cloud hosting", catalog)
	require.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = m.Match("Premium support hours", catalog)
	assert.False(t, ok)
}

func TestDefaultMatcher_ExactBeforeSubstring(t *testing.T) {
	i, ok := DefaultMatcher().Match("Widget", catalog)
	require.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestNewMatcher(t *testing.T) {
	for _, name := range []string{"", "default", "exact", "token_overlap"} {
		m, err := NewMatcher(name)
		require.NoError(t, err, name)
		assert.NotNil(t, m)
	}

	_, err := NewMatcher("levenshtein")
	assert.Error(t, err)
}

func TestMatcherFunc(t *testing.T) {
	m := MatcherFunc(func(string, []entity.PricingTerm) (int, bool) { return 2, true })
	i, ok := m.Match("anything", catalog)
	assert.True(t, ok)
	assert.Equal(t, 2, i)
}
