// Package search implements the case- and diacritic-insensitive text
// matching used by every free-text search over entity collections.
//
// Normalization is a fixed table for the five Romanian diacritic letters,
// not general Unicode folding: the search contract promises exactly these
// mappings and nothing else.
package search

import (
	"sort"
	"strings"
)

// diacriticReplacer folds the Romanian diacritic letters to their base
// Latin forms. Both the comma-below letters (ș, ț) and the legacy
// cedilla forms (ş, ţ) are mapped; real data contains both spellings.
var diacriticReplacer = strings.NewReplacer(
	"ă", "a", "Ă", "a",
	"â", "a", "Â", "a",
	"î", "i", "Î", "i",
	"ș", "s", "Ș", "s",
	"ş", "s", "Ş", "s",
	"ț", "t", "Ț", "t",
	"ţ", "t", "Ţ", "t",
)

// Normalize lowercases text and folds Romanian diacritics to their base
// letters. Empty input yields the empty string.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	return diacriticReplacer.Replace(strings.ToLower(text))
}

// Contains reports whether haystack contains needle under normalization.
func Contains(haystack, needle string) bool {
	return strings.Contains(Normalize(haystack), Normalize(needle))
}

// StartsWith reports whether text starts with prefix under normalization.
func StartsWith(text, prefix string) bool {
	return strings.HasPrefix(Normalize(text), Normalize(prefix))
}

// Equals reports whether a and b are equal under normalization.
func Equals(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// SortByKey sorts list in place by the normalized form of the key
// extracted from each element. Ties keep the incoming order, which is the
// store's natural order.
func SortByKey[T any](list []T, ascending bool, key func(T) string) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := Normalize(key(list[i])), Normalize(key(list[j]))
		if ascending {
			return a < b
		}
		return a > b
	})
}
