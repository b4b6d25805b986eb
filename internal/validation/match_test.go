package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/model"
)

func items(descs ...string) []model.BillableItem {
	out := make([]model.BillableItem, len(descs))
	for i, d := range descs {
		out[i] = model.BillableItem{Description: d, UnitPrice: 1}
	}
	return out
}

func TestSubstringMatcher(t *testing.T) {
	t.Parallel()

	catalog := items("Surgical Gloves, Size L", "N95 Respirator Masks", "Gloves")

	tests := []struct {
		name    string
		desc    string
		wantIdx int
		wantOK  bool
	}{
		{"exact", "Surgical Gloves, Size L", 0, true},
		{"case insensitive", "SURGICAL gloves, size l", 0, true},
		{"invoice contains term", "N95 Respirator Masks (box of 20)", 1, true},
		{"term contains invoice", "Respirator", 1, true},
		{"first match wins", "gloves", 0, true},
		{"whitespace collapsed", "  N95   Respirator  Masks ", 1, true},
		{"no match", "Stapler", -1, false},
		{"empty never matches", "", -1, false},
		{"blank never matches", "   ", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			idx, ok := SubstringMatcher{}.Match(tt.desc, catalog)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestSubstringMatcher_SkipsEmptyTerms(t *testing.T) {
	t.Parallel()

	idx, ok := SubstringMatcher{}.Match("Gloves", items("", "Gloves"))
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestSubstringMatcher_FullWidthFolding(t *testing.T) {
	t.Parallel()

	idx, ok := SubstringMatcher{}.Match("ＮＩＴＲＩＬＥ Gloves", items("Nitrile Gloves"))
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestTokenOverlapMatcher(t *testing.T) {
	t.Parallel()

	catalog := items("Surgical Gloves", "Exam Gloves", "Syringes 10ml")
	m := TokenOverlapMatcher{MinScore: 0.5}

	idx, ok := m.Match("Gloves, Exam", catalog)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = m.Match("10ml syringes", catalog)
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = m.Match("Courier fee", catalog)
	assert.False(t, ok)

	_, ok = m.Match("", catalog)
	assert.False(t, ok)
}

func TestTokenOverlapMatcher_TieBreak(t *testing.T) {
	t.Parallel()

	// Both score 1/3; the second shares a longer prefix with the description.
	catalog := items("Blue Gloves", "Gloves Large")
	idx, ok := TokenOverlapMatcher{MinScore: 0.3}.Match("Gloves Small", catalog)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	// Identical scores and prefixes fall back to the earlier item.
	catalog = items("Gloves A", "Gloves B")
	idx, ok = TokenOverlapMatcher{MinScore: 0.3}.Match("Gloves", catalog)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestTokenOverlapMatcher_MinScore(t *testing.T) {
	t.Parallel()

	// One shared word out of four scores 0.25.
	_, ok := TokenOverlapMatcher{MinScore: DefaultMinOverlapScore}.Match("Surgical Gloves", items("Exam Gloves Blue"))
	assert.False(t, ok)

	idx, ok := TokenOverlapMatcher{MinScore: 0}.Match("Surgical Gloves", items("Syringes", "Exam Gloves Blue"))
	require.True(t, ok, "zero threshold accepts any shared word")
	assert.Equal(t, 1, idx)

	_, ok = TokenOverlapMatcher{MinScore: 0}.Match("Surgical Gloves", items("Syringes", "Courier"))
	assert.False(t, ok, "no shared word never matches")
}

func TestNewMatchStrategy(t *testing.T) {
	t.Parallel()

	m, err := NewMatchStrategy("", 0)
	require.NoError(t, err)
	assert.IsType(t, SubstringMatcher{}, m)

	m, err = NewMatchStrategy(" Token_Overlap ", 0.7)
	require.NoError(t, err)
	assert.Equal(t, TokenOverlapMatcher{MinScore: 0.7}, m)

	_, err = NewMatchStrategy("levenshtein", 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown match strategy")
}
