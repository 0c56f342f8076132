// Package answer grades free-text answers against the accepted answers of a short answer question.
package answer

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/elearn/core/catalog"
)

const (
	// MinSimilarity is the minimum difflib ratio for a fuzzy match.
	MinSimilarity = .8
	// MinKeywordCoverage is the minimum share of keywords the provided answer must contain.
	MinKeywordCoverage = .7
)

type Method string

const (
	MethodExact     Method = "exact"
	MethodFuzzy     Method = "fuzzy"
	MethodKeywords  Method = "keywords"
	MethodSubstring Method = "substring"
)

var (
	wordRegex = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

	stopWords = map[string]struct{}{
		"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {}, "in": {}, "on": {}, "at": {},
		"to": {}, "for": {}, "by": {}, "with": {}, "from": {}, "as": {}, "is": {}, "are": {}, "was": {},
		"were": {}, "be": {}, "been": {}, "it": {}, "its": {}, "this": {}, "that": {}, "these": {}, "those": {},
	}
)

// Match describes how a provided answer matched an accepted one.
type Match struct {
	Matched bool                `json:"matched"`
	Answer  catalog.ShortAnswer `json:"answer"`
	Method  Method              `json:"method,omitempty"`
	Ratio   float64             `json:"ratio,omitempty"`
}

// Normalize lowers s, strips its punctuation, drops stop words and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)

	words := wordRegex.FindAllString(s, -1)
	kept := words[:0]
	for _, w := range words {
		if _, ok := stopWords[w]; !ok {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Validate reports whether provided matches any of the accepted answers.
func Validate(provided string, accepted []catalog.ShortAnswer) bool {
	return MatchDetail(provided, accepted).Matched
}

// MatchDetail returns the first accepted answer provided matches.
// An empty provided answer (after normalization) never matches.
func MatchDetail(provided string, accepted []catalog.ShortAnswer) Match {
	prov := Normalize(provided)
	if prov == "" {
		return Match{}
	}
	for _, ans := range accepted {
		if m := match(prov, ans); m.Matched {
			return m
		}
	}
	return Match{}
}

func match(prov string, ans catalog.ShortAnswer) Match {
	acc := Normalize(ans.Text)
	if ans.IsExactMatch {
		if acc != "" && prov == acc {
			return Match{Matched: true, Answer: ans, Method: MethodExact, Ratio: 1}
		}
		return Match{}
	}
	if acc == "" {
		return Match{}
	}

	ratio := Similarity(prov, acc)
	if ratio >= MinSimilarity {
		return Match{Matched: true, Answer: ans, Method: MethodFuzzy, Ratio: ratio}
	}
	if strings.Contains(ans.Text, ",") && keywordCoverage(prov, ans.Text) >= MinKeywordCoverage {
		return Match{Matched: true, Answer: ans, Method: MethodKeywords, Ratio: ratio}
	}
	if strings.Contains(" "+acc+" ", " "+prov+" ") {
		return Match{Matched: true, Answer: ans, Method: MethodSubstring, Ratio: ratio}
	}
	return Match{}
}

// Similarity is the difflib ratio of the characters of a & b.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// keywordCoverage is the share of the comma separated keywords found in prov.
func keywordCoverage(prov, keywordList string) float64 {
	var total, found int
	for _, kw := range strings.Split(keywordList, ",") {
		kw = Normalize(kw)
		if kw == "" {
			continue
		}
		total++
		if strings.Contains(prov, kw) {
			found++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(found) / float64(total)
}
