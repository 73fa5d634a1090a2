// Package filters evaluates a store.FilterDoc against a listing as a
// table of pure predicate functions, rather than a hand-rolled
// switch over filter kinds — each predicate is independent and the
// evaluator just ANDs whichever ones are present in the document.
package filters

import (
	"strings"

	"github.com/Tyrannozavr/steamParser/internal/store"
)

type predicate func(store.FilterDoc, store.Listing) bool

var predicates = []predicate{
	maxPrice,
	minPrice,
	wearRange,
	nameContains,
	stickersAll,
	patternList,
}

// Matches reports whether a listing satisfies every predicate present
// in the document. A predicate whose corresponding field is unset is
// vacuously true.
func Matches(doc store.FilterDoc, l store.Listing) bool {
	for _, p := range predicates {
		if !p(doc, l) {
			return false
		}
	}
	return true
}

func maxPrice(d store.FilterDoc, l store.Listing) bool {
	return d.MaxPrice == nil || l.Price <= *d.MaxPrice
}

func minPrice(d store.FilterDoc, l store.Listing) bool {
	return d.MinPrice == nil || l.Price >= *d.MinPrice
}

func wearRange(d store.FilterDoc, l store.Listing) bool {
	if d.WearMin != nil && l.Wear < *d.WearMin {
		return false
	}
	if d.WearMax != nil && l.Wear > *d.WearMax {
		return false
	}
	return true
}

func nameContains(d store.FilterDoc, l store.Listing) bool {
	if d.NameContains == "" {
		return true
	}
	return strings.Contains(strings.ToLower(l.Name), strings.ToLower(d.NameContains))
}

func stickersAll(d store.FilterDoc, l store.Listing) bool {
	if len(d.StickersAll) == 0 {
		return true
	}
	have := make(map[string]bool, len(l.Stickers))
	for _, s := range l.Stickers {
		have[s] = true
	}
	for _, want := range d.StickersAll {
		if !have[want] {
			return false
		}
	}
	return true
}

func patternList(d store.FilterDoc, l store.Listing) bool {
	if d.PatternList == nil {
		return true
	}
	for _, seed := range d.PatternList.Seeds {
		if seed == l.Pattern {
			return true
		}
	}
	return false
}
