// Package recognizer extracts typed values from message text.
//
// Recognizers are pure functions of text and locale returning ranked
// candidates; the first candidate wins. An empty result means nothing was
// recognized and is never an error.
//
//   - WhenRecognizer: dates and times via github.com/olebedev/when
//   - Choices: matches text against a list of choices using prose tokens
//   - Numbers: cardinal numbers written as digits or English words
//   - Boolean: yes/no answers
package recognizer
