package render

import (
	"errors"
	"testing"

	"studybuddy-backend/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLRenderer_Markdown(t *testing.T) {
	r := NewHTMLRenderer()

	out, err := r.Render("Switched context to **Math**.\n- one\n- two")
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>Math</strong>")
	assert.Contains(t, out, "<li>one</li>")
}

func TestHTMLRenderer_DropsRawHTML(t *testing.T) {
	r := NewHTMLRenderer()

	out, err := r.Render("hi <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}

func TestHTMLRenderer_HardWraps(t *testing.T) {
	out, err := NewHTMLRenderer().Render("line one\nline two")
	require.NoError(t, err)
	assert.Contains(t, out, "<br")
}

func TestMessage_UserTextIsEscaped(t *testing.T) {
	r := NewHTMLRenderer()

	user := transcript.Message{Role: transcript.RoleUser, Text: "is **2 < 3**?\nyes"}
	out, err := Message(r, user)
	require.NoError(t, err)
	assert.Equal(t, "is **2 &lt; 3**?<br>\nyes", out)

	model := transcript.Message{Role: transcript.RoleModel, Text: "**4**"}
	out, err = Message(r, model)
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>4</strong>")
}

type failingRenderer struct{}

func (failingRenderer) Render(string) (string, error) { return "", errors.New("boom") }

func TestRenderOrPlain(t *testing.T) {
	assert.Equal(t, "raw", RenderOrPlain(failingRenderer{}, "raw"))
	assert.Equal(t, "raw", RenderOrPlain(nil, "raw"))
	assert.Equal(t, "raw", RenderOrPlain(Plain{}, "raw"))
}

func TestTerminalRenderer(t *testing.T) {
	r, err := NewTerminalRenderer(0)
	require.NoError(t, err)

	out, err := r.Render("# Photosynthesis\nPlants make **sugar**.")
	require.NoError(t, err)
	assert.Contains(t, out, "Photosynthesis")
	assert.Contains(t, out, "sugar")
}
