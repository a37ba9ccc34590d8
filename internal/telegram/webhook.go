// ABOUTME: Webhook update server - the push-based alternative to long polling
// ABOUTME: Registers the webhook with a per-process secret and verifies it inbound

package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookServer receives updates pushed by the Bot API over HTTPS. A fresh
// secret token is generated per process and verified on every request.
type WebhookServer struct {
	client     *Client
	router     *Router
	logger     *slog.Logger
	publicURL  string
	listenAddr string
	secret     string
}

// NewWebhookServer creates a server that registers publicURL as the webhook
// endpoint and listens on listenAddr. TLS termination is expected upstream.
func NewWebhookServer(client *Client, router *Router, publicURL, listenAddr string, logger *slog.Logger) *WebhookServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookServer{
		client:     client,
		router:     router,
		logger:     logger.With("component", "webhook"),
		publicURL:  publicURL,
		listenAddr: listenAddr,
		secret:     uuid.New().String(),
	}
}

// Run registers the webhook and serves until ctx is cancelled. The webhook is
// deregistered on shutdown so a later polling deployment starts clean.
func (s *WebhookServer) Run(ctx context.Context) error {
	if err := s.client.SetWebhook(ctx, s.publicURL, s.secret); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleUpdate)

	server := &http.Server{
		Addr:              s.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "addr", s.listenAddr, "url", s.publicURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("webhook server shutdown", "error", err)
	}
	if err := s.client.DeleteWebhook(shutdownCtx); err != nil {
		s.logger.Warn("deregistering webhook", "error", err)
	}
	return nil
}

func (s *WebhookServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != s.secret {
		s.logger.Warn("webhook request with bad secret", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.logger.Warn("malformed webhook payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	// The Bot API retries on slow responses, so handling happens off the
	// request goroutine.
	go s.router.HandleUpdate(context.Background(), &update)
}
