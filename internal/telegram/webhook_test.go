// ABOUTME: Tests for the webhook update endpoint
// ABOUTME: Covers secret token verification and payload handling

package telegram

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhookServer(t *testing.T, api *fakeBotAPI) (*WebhookServer, *fakeBotAPI) {
	t.Helper()
	router, _ := newTestRouter(t, api, nil)
	s := NewWebhookServer(api.client(t), router, "https://bot.example.com/", "127.0.0.1:0", nil)
	return s, api
}

func postUpdate(t *testing.T, s *WebhookServer, secret string, update *Update) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(update)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	w := httptest.NewRecorder()
	s.handleUpdate(w, req)
	return w
}

func TestWebhook_RejectsBadSecret(t *testing.T) {
	s, api := newTestWebhookServer(t, newFakeBotAPI(t))

	w := postUpdate(t, s, "wrong-secret", textUpdate(1, 42, 1, "/start"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postUpdate(t, s, "", textUpdate(2, 42, 1, "/start"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Empty(t, api.callsFor("sendMessage"))
}

func TestWebhook_HandlesUpdate(t *testing.T) {
	s, api := newTestWebhookServer(t, newFakeBotAPI(t))

	w := postUpdate(t, s, s.secret, textUpdate(1, 42, 1, "/start"))
	assert.Equal(t, http.StatusOK, w.Code)

	calls := api.waitFor(t, "sendMessage", 1)
	assert.Equal(t, "Start by sending me a message!", calls[0].Payload["text"])
}

func TestWebhook_RejectsMalformedPayload(t *testing.T) {
	s, _ := newTestWebhookServer(t, newFakeBotAPI(t))

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", s.secret)
	w := httptest.NewRecorder()
	s.handleUpdate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_FreshSecretPerServer(t *testing.T) {
	api := newFakeBotAPI(t)
	s1, _ := newTestWebhookServer(t, api)
	s2, _ := newTestWebhookServer(t, api)
	assert.NotEqual(t, s1.secret, s2.secret)
	assert.NotEmpty(t, s1.secret)
}
