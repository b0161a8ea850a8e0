package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultWrapWidth = 100

// Renderer turns markdown into terminal output.
type Renderer interface {
	Render(string) (string, error)
}

// NewMarkdownRenderer returns a glamour renderer using style ("dark",
// "light", "notty"...). Width <= 0 uses the default wrap width.
func NewMarkdownRenderer(style string, width int) (Renderer, error) {
	if strings.TrimSpace(style) == "" {
		style = "dark"
	}
	if width <= 0 {
		width = defaultWrapWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Answer renders a final model answer, falling back to the raw text when
// rendering fails.
func Answer(content string, r Renderer) string {
	if r == nil || strings.TrimSpace(content) == "" {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
