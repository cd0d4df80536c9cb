// Package render turns message text into display output. Model and system
// text is markdown; user text is shown verbatim.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"studybuddy-backend/internal/transcript"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown text to an output format.
type Renderer interface {
	Render(text string) (string, error)
}

// HTMLRenderer renders markdown to HTML. Raw HTML inside the markdown is
// not passed through.
type HTMLRenderer struct {
	md goldmark.Markdown
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Table, extension.Linkify),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

func (r *HTMLRenderer) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Message renders msg for display. User text is escaped and keeps its line
// breaks; everything else goes through r.
func Message(r Renderer, msg transcript.Message) (string, error) {
	if msg.Role == transcript.RoleUser {
		return EscapeText(msg.Text), nil
	}
	return r.Render(msg.Text)
}

// EscapeText escapes text for HTML and turns newlines into <br>.
func EscapeText(text string) string {
	escaped := html.EscapeString(text)
	return strings.ReplaceAll(escaped, "\n", "<br>\n")
}
