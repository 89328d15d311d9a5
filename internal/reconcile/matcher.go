package reconcile

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// Matcher pairs an invoice line description with a contract pricing entry.
// It returns the index into pricing, or false when nothing matches.
type Matcher interface {
	Match(description string, pricing []entity.PricingTerm) (int, bool)
}

// MatcherFunc adapts a function to Matcher
type MatcherFunc func(description string, pricing []entity.PricingTerm) (int, bool)

func (f MatcherFunc) Match(description string, pricing []entity.PricingTerm) (int, bool) {
	return f(description, pricing)
}

// ExactMatcher matches item names case-insensitively after whitespace folding
type ExactMatcher struct{}

func (ExactMatcher) Match(description string, pricing []entity.PricingTerm) (int, bool) {
	want := fold(description)
	if want == "" {
		return 0, false
	}
	for i, p := range pricing {
		if fold(p.Item) == want {
			return i, true
		}
	}
	return 0, false
}

// SubstringMatcher matches when either name contains the other.
// The longest contained contract item wins; ties go to the earlier entry.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(description string, pricing []entity.PricingTerm) (int, bool) {
	desc := fold(description)
	if desc == "" {
		return 0, false
	}
	best, bestLen := -1, 0
	for i, p := range pricing {
		item := fold(p.Item)
		if item == "" {
			continue
		}
		if strings.Contains(desc, item) || strings.Contains(item, desc) {
			if len(item) > bestLen {
				best, bestLen = i, len(item)
			}
		}
	}
	return best, best >= 0
}

// TokenOverlapMatcher scores word overlap (Jaccard) and accepts the best
// candidate at or above MinScore.
type TokenOverlapMatcher struct {
	MinScore float64
}

func (m TokenOverlapMatcher) Match(description string, pricing []entity.PricingTerm) (int, bool) {
	desc := tokens(description)
	if len(desc) == 0 {
		return 0, false
	}
	minScore := m.MinScore
	if minScore <= 0 {
		minScore = 0.5
	}
	best, bestScore := -1, 0.0
	for i, p := range pricing {
		score := jaccard(desc, tokens(p.Item))
		if score >= minScore && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, best >= 0
}

// ChainMatcher tries each matcher in order
type ChainMatcher []Matcher

func (c ChainMatcher) Match(description string, pricing []entity.PricingTerm) (int, bool) {
	for _, m := range c {
		if i, ok := m.Match(description, pricing); ok {
			return i, true
		}
	}
	return 0, false
}

// DefaultMatcher prefers an exact name and falls back to substring matching
func DefaultMatcher() Matcher {
	return ChainMatcher{ExactMatcher{}, SubstringMatcher{}}
}

// NewMatcher resolves a configured matcher name
func NewMatcher(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultMatcher(), nil
	case "exact":
		return ExactMatcher{}, nil
	case "token_overlap":
		return ChainMatcher{ExactMatcher{}, TokenOverlapMatcher{MinScore: 0.5}}, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q", name)
	}
}

func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
