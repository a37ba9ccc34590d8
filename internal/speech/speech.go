// ABOUTME: Speech backend client over an OpenAI-compatible audio HTTP API
// ABOUTME: Implements speech-to-text (transcriptions) and text-to-speech (speech)

// Package speech implements the chat.Speech interface against an
// OpenAI-compatible audio API (POST /audio/transcriptions and
// POST /audio/speech).
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config holds the speech backend settings.
type Config struct {
	APIKey   string
	BaseURL  string // defaults to the OpenAI endpoint
	STTModel string // e.g. "whisper-1"
	TTSModel string // e.g. "tts-1"
	Voice    string // e.g. "alloy"
	Timeout  time.Duration
}

// Client talks to the audio API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	sttModel   string
	ttsModel   string
	voice      string
	logger     *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.STTModel == "" || cfg.TTSModel == "" {
		return nil, fmt.Errorf("speech models are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		sttModel:   cfg.STTModel,
		ttsModel:   cfg.TTSModel,
		voice:      cfg.Voice,
		logger:     logger.With("component", "speech"),
	}, nil
}

// SpeechToText transcribes an audio payload.
func (c *Client) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "voice.ogg")
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if err := writer.WriteField("model", c.sttModel); err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription request: status %d: %s", resp.StatusCode, detail)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription response: %w", err)
	}

	c.logger.Debug("transcribed audio", "bytes", len(audio), "chars", len(result.Text))
	return result.Text, nil
}

// TextToSpeech synthesizes speech for a text.
func (c *Client) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"model":           c.ttsModel,
		"voice":           c.voice,
		"input":           text,
		"response_format": "opus",
	})
	if err != nil {
		return nil, fmt.Errorf("building speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building speech request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("speech request: status %d: %s", resp.StatusCode, detail)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech response: %w", err)
	}

	c.logger.Debug("synthesized speech", "chars", len(text), "bytes", len(audio))
	return audio, nil
}
