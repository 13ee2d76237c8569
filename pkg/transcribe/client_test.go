package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}

func TestTranscribe(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"  the faucet is dripping  "}`))
	}))
	defer srv.Close()

	c, err := NewClient("test-key", WithBaseURL(srv.URL), WithLanguage("en"))
	require.NoError(t, err)

	text, err := c.Transcribe(context.Background(), "note.m4a", []byte("fake audio bytes"))
	require.NoError(t, err)

	assert.Equal(t, "the faucet is dripping", text)
	assert.Contains(t, gotPath, "/audio/transcriptions")
	assert.Contains(t, gotContentType, "multipart/form-data")
	assert.Contains(t, gotBody, "note.m4a")
	assert.Contains(t, gotBody, "whisper-1")
	assert.Contains(t, gotBody, "fake audio bytes")
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad audio"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Transcribe(context.Background(), "note.mp3", []byte("x"))
	assert.ErrorContains(t, err, "note.mp3")
}

func TestMimeFor(t *testing.T) {
	assert.Equal(t, "audio/m4a", mimeFor("voice.m4a"))
	assert.Equal(t, "audio/mpeg", mimeFor("voice.mp3"))
	assert.Equal(t, "video/mp4", mimeFor("clip.mp4"))
	assert.Equal(t, "application/octet-stream", mimeFor("file.bin"))
}
