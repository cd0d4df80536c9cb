package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter_Headers(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSSEWriter(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestSSEWriter_WriteAndClose(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)

	require.NoError(t, w.Write("message", "hello"))
	require.NoError(t, w.Write("", "line1\nline2"))
	require.NoError(t, w.WriteJSON("status", map[string]string{"state": "finalized"}))
	require.NoError(t, w.Close())

	want := "event: message\ndata: hello\n\n" +
		"data: line1\ndata: line2\n\n" +
		"event: status\ndata: {\"state\":\"finalized\"}\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, want, rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSSEWriter_WriteAfterClose(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Write("message", "late"), ErrSSEClosed)
	assert.NoError(t, w.Close())
	assert.Equal(t, "data: [DONE]\n\n", rec.Body.String())
}

func TestSSEWriter_WriteJSONMarshalError(t *testing.T) {
	w := NewSSEWriter(httptest.NewRecorder())
	err := w.WriteJSON("bad", make(chan int))
	assert.Error(t, err)
}
