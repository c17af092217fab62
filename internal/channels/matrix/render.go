// ABOUTME: Markdown rendering for Matrix formatted_body
// ABOUTME: Plain text stays plain so clients without HTML support see the same thing

package matrix

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in bot text is escaped, not passed through.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderMarkdown converts text to HTML. ok is false when the text has no
// formatting worth sending, i.e. it renders to a single bare paragraph.
func renderMarkdown(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", false
	}
	out := strings.TrimSpace(buf.String())
	inner, bare := strings.CutPrefix(out, "<p>")
	if bare {
		inner, bare = strings.CutSuffix(inner, "</p>")
	}
	if bare && !strings.Contains(inner, "<") {
		return "", false
	}
	return out, true
}
