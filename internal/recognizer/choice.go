// ABOUTME: Choice recognizer matching text against choice values and synonyms
// ABOUTME: Falls back to picking a choice by number or ordinal

package recognizer

import (
	"slices"
	"strings"
)

// Choice is one option offered to the user.
type Choice struct {
	Value    string   `json:"value"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// FoundChoice is the choice a user picked.
type FoundChoice struct {
	Value   string  `json:"value"`
	Index   int     `json:"index"`
	Score   float64 `json:"score"`
	Synonym string  `json:"synonym,omitempty"`
}

// ModelResult is a recognized span of text and what it resolved to.
type ModelResult[T any] struct {
	Text       string
	TypeName   string
	Resolution T
}

// ChoiceOptions tunes Choices.
type ChoiceOptions struct {
	// AllowPartialMatches accepts a choice when only some of its words
	// appear in the text.
	AllowPartialMatches bool
	// NoIndex disables picking a choice by number or ordinal.
	NoIndex bool
	Locale  string
}

// Choices returns the choices mentioned in text, best match first.
func Choices(text string, choices []Choice, opts ChoiceOptions) []ModelResult[FoundChoice] {
	utterance := Tokenize(text)
	if len(utterance) == 0 || len(choices) == 0 {
		return nil
	}

	var results []ModelResult[FoundChoice]
	for i, choice := range choices {
		best := FoundChoice{Index: -1}
		for _, candidate := range append([]string{choice.Value}, choice.Synonyms...) {
			score := matchScore(utterance, Tokenize(candidate))
			if score > best.Score {
				best = FoundChoice{Value: choice.Value, Index: i, Score: score, Synonym: candidate}
			}
		}
		if best.Index < 0 || (best.Score < 1 && !opts.AllowPartialMatches) {
			continue
		}
		results = append(results, ModelResult[FoundChoice]{
			Text:       text,
			TypeName:   "choice",
			Resolution: best,
		})
	}

	if len(results) == 0 && !opts.NoIndex {
		if found, ok := matchIndex(utterance, choices, opts.Locale); ok {
			results = append(results, ModelResult[FoundChoice]{Text: text, TypeName: "choice", Resolution: found})
		}
	}

	slices.SortStableFunc(results, func(a, b ModelResult[FoundChoice]) int {
		switch {
		case a.Resolution.Score > b.Resolution.Score:
			return -1
		case a.Resolution.Score < b.Resolution.Score:
			return 1
		}
		return a.Resolution.Index - b.Resolution.Index
	})
	return results
}

// matchScore is the fraction of candidate tokens found in order in the
// utterance.
func matchScore(utterance, candidate []Token) float64 {
	if len(candidate) == 0 {
		return 0
	}
	matched, pos := 0, 0
	for _, want := range candidate {
		for j := pos; j < len(utterance); j++ {
			if utterance[j].Normalized == want.Normalized {
				matched++
				pos = j + 1
				break
			}
		}
	}
	return float64(matched) / float64(len(candidate))
}

// matchIndex picks a choice by "2", "two", "second" or "2nd". The utterance
// must hold a single token so sentences with stray numbers don't match.
func matchIndex(utterance []Token, choices []Choice, locale string) (FoundChoice, bool) {
	if len(utterance) != 1 {
		return FoundChoice{}, false
	}
	word := utterance[0].Normalized

	n, ok := Ordinal(word)
	if !ok {
		nums := Numbers(word, locale)
		if len(nums) != 1 || nums[0].Value != float64(int(nums[0].Value)) {
			return FoundChoice{}, false
		}
		n = int(nums[0].Value)
	}
	if n == -1 {
		n = len(choices)
	}
	if n < 1 || n > len(choices) {
		return FoundChoice{}, false
	}
	c := choices[n-1]
	return FoundChoice{Value: c.Value, Index: n - 1, Score: 1, Synonym: strings.TrimSpace(word)}, true
}
