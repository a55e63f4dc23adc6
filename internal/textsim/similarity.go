// Package textsim scores how alike two building names are on a [0,1] scale.
package textsim

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/xrash/smetrics"
)

// Func scores two strings; 1.0 means identical and 0.0 means nothing in common
type Func func(a, b string) float64

// Algorithm names a similarity metric
type Algorithm string

const (
	// AlgorithmRatio is the matching-block ratio 2*M/T (difflib)
	AlgorithmRatio Algorithm = "ratio"
	// AlgorithmJaroWinkler favours shared prefixes
	AlgorithmJaroWinkler Algorithm = "jaro-winkler"
	// AlgorithmLevenshtein is 1 - distance/max(len)
	AlgorithmLevenshtein Algorithm = "levenshtein"
)

// Algorithms lists every supported metric, default first
var Algorithms = []Algorithm{AlgorithmRatio, AlgorithmJaroWinkler, AlgorithmLevenshtein}

// ForAlgorithm returns the scoring function for name
func ForAlgorithm(name Algorithm) (Func, error) {
	switch name {
	case AlgorithmRatio, "":
		return Ratio, nil
	case AlgorithmJaroWinkler:
		return JaroWinkler, nil
	case AlgorithmLevenshtein:
		return Levenshtein, nil
	default:
		return nil, fmt.Errorf("unknown similarity algorithm %q", name)
	}
}

// Ratio returns the matching-block ratio of a and b, computed character by character
// with the same block search (and autojunk heuristic for long inputs) as difflib.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	m := difflib.NewMatcher(runes(a), runes(b))
	return m.Ratio()
}

// JaroWinkler returns the Jaro-Winkler similarity with the usual 0.7 boost and 4-rune prefix
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

// Levenshtein returns 1 - editDistance/maxLength
func Levenshtein(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Normalize strips commas and surrounding space, as names are written in the matrix report
func Normalize(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, ",", ""))
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
