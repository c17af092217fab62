// ABOUTME: Yes/no recognizer with per-language word lists
// ABOUTME: Used by the confirm prompt

package recognizer

var booleanWords = map[string]map[string]bool{
	"en": {
		"yes": true, "y": true, "yeah": true, "yep": true, "sure": true, "ok": true, "okay": true, "true": true,
		"no": false, "n": false, "nope": false, "nah": false, "false": false,
	},
	"es": {"sí": true, "si": true, "no": false},
	"fr": {"oui": true, "non": false},
	"de": {"ja": true, "nein": false},
	"pt": {"sim": true, "não": false, "nao": false},
	"ru": {"да": true, "ага": true, "конечно": true, "нет": false, "не": false},
}

// Boolean returns the first yes or no word in text. Unknown languages fall
// back to English.
func Boolean(text, locale string) (value, ok bool) {
	words, found := booleanWords[baseLanguage(locale)]
	if !found {
		words = booleanWords["en"]
	}
	for _, tok := range Tokenize(text) {
		if v, hit := words[tok.Normalized]; hit {
			return v, true
		}
	}
	return false, false
}

// BooleanChoices returns the yes and no labels offered for locale.
func BooleanChoices(locale string) (yes, no string) {
	switch baseLanguage(locale) {
	case "es":
		return "Sí", "No"
	case "fr":
		return "Oui", "Non"
	case "de":
		return "Ja", "Nein"
	case "pt":
		return "Sim", "Não"
	case "ru":
		return "Да", "Нет"
	}
	return "Yes", "No"
}
