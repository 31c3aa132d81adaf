package match

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tropical chicken", Normalize("  Tropical   Chicken "))
	require.Equal(t, "hawaiian pizza", Normalize("NEW! Hawaiian Pizza"))
	require.Equal(t, "caesar salad", Normalize("Caesar Salad"))
}

func TestStripCategorySuffix(t *testing.T) {
	t.Parallel()

	require.Equal(t, "caesar", StripCategorySuffix("caesar salad"))
	require.Equal(t, "hawaiian", StripCategorySuffix("hawaiian pizza"))
	require.Equal(t, "ranch", StripCategorySuffix("ranch dip"))
	require.Equal(t, "salad", StripCategorySuffix("salad"))
}

func TestBestExactMatchWinsOverFuzzy(t *testing.T) {
	t.Parallel()

	m := New(0)
	got, ok := m.Best("Hawaiian Pizza", []string{"Hawaiian Pizzas", "hawaiian pizza"})
	require.True(t, ok)
	require.Equal(t, "hawaiian pizza", got)
}

func TestBestSuffixAwareMatch(t *testing.T) {
	t.Parallel()

	m := New(0)
	got, ok := m.Best("Caesar", []string{"Greek Salad", "Caesar Salad"})
	require.True(t, ok)
	require.Equal(t, "Caesar Salad", got)
}

func TestBestFuzzyThreshold(t *testing.T) {
	t.Parallel()

	m := New(0.9)
	_, ok := m.Best("Veggie Korma", []string{"Butter Chicken"})
	require.False(t, ok)

	m = New(0.5)
	got, ok := m.Best("Tropicl Chicken", []string{"Tropical Chicken", "Buffalo Chicken"})
	require.True(t, ok)
	require.Equal(t, "Tropical Chicken", got)
}

func TestBestTieBreaksLexicographically(t *testing.T) {
	t.Parallel()

	// Both candidates are one edit away; the lexicographically first
	// normalized name must win regardless of input order.
	m := New(0.1)
	first, ok := m.Best("cat", []string{"cbt", "cab"})
	require.True(t, ok)
	second, ok2 := m.Best("cat", []string{"cab", "cbt"})
	require.True(t, ok2)
	require.Equal(t, first, second)
	require.Equal(t, "cab", first)
}

func TestSimilarityBounds(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, Similarity("caesar", "caesar"), 0.0001)
	require.InDelta(t, 0.0, Similarity("", "zzzz"), 0.0001)
	require.Greater(t, Similarity("caesar", "caesar salad"), 0.4)
}
