// ABOUTME: Tests for the speech backend client against a fake audio API
// ABOUTME: Covers transcription, synthesis, auth headers and error statuses

package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{
		APIKey:   "sk-test",
		BaseURL:  server.URL,
		STTModel: "whisper-1",
		TTSModel: "tts-1",
		Voice:    "alloy",
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{STTModel: "whisper-1", TTSModel: "tts-1"}, nil)
	require.Error(t, err)

	_, err = New(Config{APIKey: "sk-test"}, nil)
	require.Error(t, err)
}

func TestSpeechToText(t *testing.T) {
	var gotAuth, gotModel string
	var gotAudio []byte

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotAudio, _ = io.ReadAll(file)

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	})

	c := newTestClient(t, handler)
	text, err := c.SpeechToText(context.Background(), []byte("ogg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "hello world", text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, []byte("ogg-bytes"), gotAudio)
}

func TestSpeechToText_ErrorStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid file format", http.StatusBadRequest)
	})

	c := newTestClient(t, handler)
	_, err := c.SpeechToText(context.Background(), []byte("not audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "invalid file format")
}

func TestTextToSpeech(t *testing.T) {
	var gotPayload map[string]string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte("opus-bytes"))
	})

	c := newTestClient(t, handler)
	audio, err := c.TextToSpeech(context.Background(), "read this aloud")
	require.NoError(t, err)

	assert.Equal(t, []byte("opus-bytes"), audio)
	assert.Equal(t, "tts-1", gotPayload["model"])
	assert.Equal(t, "alloy", gotPayload["voice"])
	assert.Equal(t, "read this aloud", gotPayload["input"])
	assert.Equal(t, "opus", gotPayload["response_format"])
}

func TestTextToSpeech_ErrorStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	c := newTestClient(t, handler)
	_, err := c.TextToSpeech(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}
