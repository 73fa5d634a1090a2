package filters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrannozavr/steamParser/internal/filters"
	"github.com/Tyrannozavr/steamParser/internal/store"
)

func f(v float64) *float64 { return &v }

func TestMatches_MaxPrice(t *testing.T) {
	doc := store.FilterDoc{MaxPrice: f(10.0)}
	assert.True(t, filters.Matches(doc, store.Listing{Price: 9.99}))
	assert.False(t, filters.Matches(doc, store.Listing{Price: 10.01}))
}

func TestMatches_WearRange(t *testing.T) {
	doc := store.FilterDoc{WearMin: f(0.1), WearMax: f(0.2)}
	assert.True(t, filters.Matches(doc, store.Listing{Wear: 0.15}))
	assert.False(t, filters.Matches(doc, store.Listing{Wear: 0.05}))
	assert.False(t, filters.Matches(doc, store.Listing{Wear: 0.25}))
}

func TestMatches_NameContains_CaseInsensitive(t *testing.T) {
	doc := store.FilterDoc{NameContains: "Dragon"}
	assert.True(t, filters.Matches(doc, store.Listing{Name: "AK-47 | dragon lore"}))
	assert.False(t, filters.Matches(doc, store.Listing{Name: "AWP | Asiimov"}))
}

func TestMatches_StickersAll(t *testing.T) {
	doc := store.FilterDoc{StickersAll: []string{"Katowice 2014", "iBUYPOWER (Holo)"}}
	assert.True(t, filters.Matches(doc, store.Listing{Stickers: []string{"Katowice 2014", "iBUYPOWER (Holo)", "Titan (Holo)"}}))
	assert.False(t, filters.Matches(doc, store.Listing{Stickers: []string{"Katowice 2014"}}))
}

func TestMatches_PatternList(t *testing.T) {
	doc := store.FilterDoc{PatternList: &store.PatternRule{ItemType: "Case Hardened", Seeds: []int{661, 321}}}
	assert.True(t, filters.Matches(doc, store.Listing{Pattern: 661}))
	assert.False(t, filters.Matches(doc, store.Listing{Pattern: 999}))
}

func TestMatches_EmptyDoc_MatchesEverything(t *testing.T) {
	assert.True(t, filters.Matches(store.FilterDoc{}, store.Listing{Price: 1000, Name: "anything"}))
}

func TestMatches_CombinesAllPresentPredicates(t *testing.T) {
	doc := store.FilterDoc{MaxPrice: f(50), NameContains: "dragon"}
	assert.True(t, filters.Matches(doc, store.Listing{Price: 20, Name: "dragon lore"}))
	assert.False(t, filters.Matches(doc, store.Listing{Price: 60, Name: "dragon lore"}))
	assert.False(t, filters.Matches(doc, store.Listing{Price: 20, Name: "asiimov"}))
}
