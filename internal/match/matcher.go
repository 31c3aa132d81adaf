// Package match normalizes product names and resolves fuzzy matches between
// the expected price table and scraped menu cards.
package match

import (
	"sort"
	"strings"
)

// noisePrefixes are promotional fragments the site prepends to product names.
var noisePrefixes = []string{
	"new!",
	"new",
	"back!",
	"limited time",
	"featured",
}

// categorySuffixes are trailing category words a dataset may omit, e.g. an
// expected row "Caesar" against a scraped card "Caesar Salad".
var categorySuffixes = []string{
	"pizza",
	"salad",
	"dip",
	"dipping sauce",
	"drink",
	"beverage",
}

// Normalize case-folds, strips noise prefixes, and collapses whitespace.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(n, prefix+" ") {
			n = strings.TrimPrefix(n, prefix+" ")
			break
		}
	}
	return strings.Join(strings.Fields(n), " ")
}

// StripCategorySuffix removes a known trailing category word from an already
// normalized name. Returns the input unchanged when nothing strips or when
// stripping would leave an empty name.
func StripCategorySuffix(normalized string) string {
	for _, suffix := range categorySuffixes {
		if strings.HasSuffix(normalized, " "+suffix) {
			stripped := strings.TrimSpace(strings.TrimSuffix(normalized, suffix))
			if stripped != "" {
				return stripped
			}
		}
	}
	return normalized
}

// Similarity returns a 0..1 score for two normalized names based on
// Levenshtein distance over the longer length.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// DefaultThreshold is the minimum similarity accepted on the fuzzy pass.
const DefaultThreshold = 0.72

// Matcher resolves a target name against a candidate set: exact normalized
// match first, then suffix-stripped equality, then fuzzy scoring above the
// threshold with lexicographic tie-breaking. Results are deterministic for
// any candidate order.
type Matcher struct {
	threshold float64
}

// New builds a Matcher; threshold <= 0 selects DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold reports the configured minimum similarity.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Best returns the candidate matching target, or ok=false when nothing
// qualifies. The returned string is the original candidate, not its
// normalized form.
func (m *Matcher) Best(target string, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	normTarget := Normalize(target)

	type entry struct {
		original   string
		normalized string
	}
	entries := make([]entry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, entry{original: c, normalized: Normalize(c)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].normalized < entries[j].normalized
	})

	for _, e := range entries {
		if e.normalized == normTarget {
			return e.original, true
		}
	}

	strippedTarget := StripCategorySuffix(normTarget)
	for _, e := range entries {
		if StripCategorySuffix(e.normalized) == strippedTarget {
			return e.original, true
		}
	}

	best := entry{}
	bestScore := 0.0
	for _, e := range entries {
		score := Similarity(normTarget, e.normalized)
		if score > bestScore {
			bestScore = score
			best = e
		}
	}
	if bestScore >= m.threshold {
		return best.original, true
	}
	return "", false
}

// levenshtein computes edit distance with the two-row method.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
