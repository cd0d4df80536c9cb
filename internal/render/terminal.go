package render

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// TerminalRenderer renders markdown for a terminal.
type TerminalRenderer struct {
	tr *glamour.TermRenderer
}

func NewTerminalRenderer(wordWrap int) (*TerminalRenderer, error) {
	if wordWrap <= 0 {
		wordWrap = 80
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("create terminal renderer: %w", err)
	}
	return &TerminalRenderer{tr: tr}, nil
}

func (r *TerminalRenderer) Render(text string) (string, error) {
	out, err := r.tr.Render(text)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

// Plain passes text through unchanged. It is used when output is not a TTY.
type Plain struct{}

func (Plain) Render(text string) (string, error) { return text, nil }

// RenderOrPlain renders text with r and falls back to the raw text on error.
func RenderOrPlain(r Renderer, text string) string {
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}
