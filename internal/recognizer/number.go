// ABOUTME: Number recognizer for digits and English number words
// ABOUTME: Returns every number found in the text in order of appearance

package recognizer

import (
	"strconv"
	"strings"
)

// NumberModel is one recognized number.
type NumberModel struct {
	Text  string
	Value float64
}

var numberWords = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
	"thirty": 30, "forty": 40, "fifty": 50, "sixty": 60, "seventy": 70,
	"eighty": 80, "ninety": 90, "hundred": 100,
}

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"last": -1,
}

// Numbers returns the numbers in text. Number words are only recognized for
// English locales; digits are recognized for every locale.
func Numbers(text, locale string) []NumberModel {
	english := baseLanguage(locale) == "en" || locale == ""

	var models []NumberModel
	for _, tok := range Tokenize(text) {
		if v, ok := parseDigits(tok.Normalized); ok {
			models = append(models, NumberModel{Text: tok.Normalized, Value: v})
			continue
		}
		if !english {
			continue
		}
		if v, ok := numberWords[tok.Normalized]; ok {
			models = append(models, NumberModel{Text: tok.Normalized, Value: v})
		}
	}
	return models
}

// Ordinal reads "first", "2nd" and similar tokens. "last" returns -1.
func Ordinal(token string) (int, bool) {
	token = strings.ToLower(token)
	if n, ok := ordinalWords[token]; ok {
		return n, true
	}
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		if digits, ok := strings.CutSuffix(token, suffix); ok {
			if n, err := strconv.Atoi(digits); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

func parseDigits(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || (s[0] < '0' || s[0] > '9') && s[0] != '-' && s[0] != '.' {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
