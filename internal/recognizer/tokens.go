// ABOUTME: Tokenization shared by the choice, number and boolean recognizers
// ABOUTME: Wraps the prose tokenizer and normalizes tokens to lower case

package recognizer

import (
	"strings"
	"unicode"

	"github.com/tsawler/prose/v3"
)

// Token is a normalized word from an utterance.
type Token struct {
	Text       string // lower-cased
	Normalized string // lower-cased with surrounding punctuation removed
}

// Tokenize splits text into tokens with prose. Tokens that are only
// punctuation are dropped.
func Tokenize(text string) []Token {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return fallbackTokens(text)
	}

	var tokens []Token
	for _, tok := range doc.Tokens() {
		if t, ok := newToken(tok.Text); ok {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func fallbackTokens(text string) []Token {
	var tokens []Token
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '.' && r != ',' && r != '\'')
	}) {
		if t, ok := newToken(field); ok {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func newToken(raw string) (Token, bool) {
	lower := strings.ToLower(raw)
	norm := strings.TrimFunc(lower, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if norm == "" {
		return Token{}, false
	}
	return Token{Text: lower, Normalized: norm}, true
}

// baseLanguage returns the language part of a locale such as "en-us".
func baseLanguage(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		return locale[:i]
	}
	return locale
}
