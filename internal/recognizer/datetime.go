// ABOUTME: Date/time recognizer built on the olebedev/when rule engine
// ABOUTME: Selects a rule set by locale and resolves relative to an injectable clock

package recognizer

import (
	"log/slog"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules"
	"github.com/olebedev/when/rules/br"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/olebedev/when/rules/ru"
)

// Resolution types.
const (
	TypeDateTime = "datetime"
	TypeDate     = "date"
)

// Layouts of DateTimeResolution.Value per type.
const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
)

// DateTimeResolution is one resolved value for a recognized expression.
type DateTimeResolution struct {
	Timex string `json:"timex"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DateTimeModel is a recognized date/time expression.
type DateTimeModel struct {
	Text       string
	Start      int
	Resolution []DateTimeResolution
}

// DateTime recognizes date/time expressions in text.
type DateTime interface {
	Recognize(text, locale string) []DateTimeModel
}

// WhenRecognizer implements DateTime with one rule-set parser per language.
type WhenRecognizer struct {
	parsers  map[string]*when.Parser
	fallback string
	now      func() time.Time
	logger   *slog.Logger
}

// WhenOption configures a WhenRecognizer.
type WhenOption func(*WhenRecognizer)

// WithNow sets the reference clock relative expressions resolve against.
func WithNow(now func() time.Time) WhenOption {
	return func(r *WhenRecognizer) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WhenOption {
	return func(r *WhenRecognizer) {
		r.logger = logger
	}
}

// NewWhenRecognizer creates a recognizer for English, Russian and
// Brazilian Portuguese. Other languages use the English rules.
func NewWhenRecognizer(opts ...WhenOption) *WhenRecognizer {
	r := &WhenRecognizer{
		parsers:  make(map[string]*when.Parser),
		fallback: "en",
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "recognizer")

	r.parsers["en"] = newParser(en.All)
	r.parsers["ru"] = newParser(ru.All)
	r.parsers["pt"] = newParser(br.All)
	return r
}

func newParser(ruleSet []rules.Rule) *when.Parser {
	w := when.New(nil)
	w.Add(ruleSet...)
	w.Add(common.All...)
	return w
}

// Recognize returns the expression found in text, or nothing.
func (r *WhenRecognizer) Recognize(text, locale string) []DateTimeModel {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	parser, ok := r.parsers[baseLanguage(locale)]
	if !ok {
		parser = r.parsers[r.fallback]
	}

	res, err := parser.Parse(text, r.now())
	if err != nil {
		r.logger.Debug("date parse failed", "error", err, "locale", locale)
		return nil
	}
	if res == nil {
		return nil
	}

	return []DateTimeModel{{
		Text:       res.Text,
		Start:      res.Index,
		Resolution: []DateTimeResolution{resolve(res.Time)},
	}}
}

func resolve(t time.Time) DateTimeResolution {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return DateTimeResolution{
			Timex: t.Format("2006-01-02"),
			Type:  TypeDate,
			Value: t.Format(DateLayout),
		}
	}
	return DateTimeResolution{
		Timex: t.Format("2006-01-02T15:04:05"),
		Type:  TypeDateTime,
		Value: t.Format(DateTimeLayout),
	}
}
