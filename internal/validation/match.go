package validation

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/contract-validator/internal/model"
)

// MatchStrategy picks the contract billable item an invoice description
// refers to. It returns the index into items, or false when nothing matches.
type MatchStrategy interface {
	Match(description string, items []model.BillableItem) (int, bool)
}

// Strategy names accepted by NewMatchStrategy.
const (
	StrategySubstring    = "substring"
	StrategyTokenOverlap = "token_overlap"
)

// NewMatchStrategy builds a strategy by name. minScore only applies to
// token_overlap.
func NewMatchStrategy(name string, minScore float64) (MatchStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategySubstring:
		return SubstringMatcher{}, nil
	case StrategyTokenOverlap:
		return TokenOverlapMatcher{MinScore: minScore}, nil
	default:
		return nil, eris.Errorf("validation: unknown match strategy %q", name)
	}
}

// SubstringMatcher returns the first item whose description contains the
// invoice description, or is contained by it, ignoring case.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(description string, items []model.BillableItem) (int, bool) {
	want := normalize(description)
	if want == "" {
		return -1, false
	}
	for i, item := range items {
		have := normalize(item.Description)
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return i, true
		}
	}
	return -1, false
}

// DefaultMinOverlapScore is the configured default for TokenOverlapMatcher.
const DefaultMinOverlapScore = 0.5

// TokenOverlapMatcher scores every item by the Jaccard overlap of word sets
// and returns the best one scoring at least MinScore. Ties go to the longer
// common prefix, then to the earlier item. MinScore is used as given: zero
// accepts any item sharing at least one word, and items sharing none never
// match.
type TokenOverlapMatcher struct {
	MinScore float64
}

func (m TokenOverlapMatcher) Match(description string, items []model.BillableItem) (int, bool) {
	want := normalize(description)
	wantWords := wordSet(want)
	if len(wantWords) == 0 {
		return -1, false
	}

	best, bestScore, bestPrefix := -1, 0.0, 0
	for i, item := range items {
		have := normalize(item.Description)
		score := jaccard(wantWords, wordSet(have))
		if score == 0 || score < m.MinScore {
			continue
		}
		prefix := commonPrefixLen(want, have)
		if best == -1 || score > bestScore || (score == bestScore && prefix > bestPrefix) {
			best, bestScore, bestPrefix = i, score, prefix
		}
	}
	return best, best >= 0
}

// normalize folds compatibility forms, lowercases and collapses whitespace.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func wordSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
