// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package titles normalizes and compares series titles across sources.
package titles

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, strips diacritics, and collapses every run of
// non-alphanumeric characters into one space. "Frieren: Beyond Journey's End"
// becomes "frieren beyond journey s end".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	prevSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Similarity returns the Dice coefficient of the word sets of the
// normalized titles: 1 for identical, 0 for disjoint.
func Similarity(a, b string) float64 {
	wa := strings.Fields(Normalize(a))
	wb := strings.Fields(Normalize(b))
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	set := make(map[string]int, len(wa))
	for _, w := range wa {
		set[w]++
	}
	shared := 0
	for _, w := range wb {
		if set[w] > 0 {
			set[w]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(wa)+len(wb))
}

// Equal reports whether a and b normalize to the same title.
func Equal(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}
