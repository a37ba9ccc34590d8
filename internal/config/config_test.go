// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
telegram:
  token: "123456:test-token"
  allowed_chat_ids:
    - 111
    - -100222

llm:
  api_key: "sk-ant-test"
  model: "claude-sonnet-4-5"
  max_tokens: 2048
  stream: false
  request_timeout: "2m"

speech:
  enabled: true
  api_key: "sk-test"
  stt_model: "whisper-1"
  tts_model: "tts-1"
  voice: "alloy"

conversation:
  timeout: "1h"
  edit_interval: "2s"

database:
  path: "./test.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify telegram config
	if cfg.Telegram.Token != "123456:test-token" {
		t.Errorf("Telegram.Token = %q, want %q", cfg.Telegram.Token, "123456:test-token")
	}
	if len(cfg.Telegram.AllowedChatIDs) != 2 {
		t.Errorf("Telegram.AllowedChatIDs len = %d, want 2", len(cfg.Telegram.AllowedChatIDs))
	}
	if cfg.Telegram.AllowedChatIDs[1] != -100222 {
		t.Errorf("Telegram.AllowedChatIDs[1] = %d, want -100222", cfg.Telegram.AllowedChatIDs[1])
	}

	// Verify llm config with duration parsing
	if cfg.LLM.Model != "claude-sonnet-4-5" {
		t.Errorf("LLM.Model = %q, want %q", cfg.LLM.Model, "claude-sonnet-4-5")
	}
	if cfg.LLM.MaxTokens != 2048 {
		t.Errorf("LLM.MaxTokens = %d, want 2048", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.Streaming() {
		t.Error("LLM.Streaming() = true, want false")
	}
	if cfg.LLM.RequestTimeout != 2*time.Minute {
		t.Errorf("LLM.RequestTimeout = %v, want %v", cfg.LLM.RequestTimeout, 2*time.Minute)
	}

	// Verify speech config
	if !cfg.Speech.Enabled {
		t.Error("Speech.Enabled = false, want true")
	}
	if cfg.Speech.STTModel != "whisper-1" {
		t.Errorf("Speech.STTModel = %q, want %q", cfg.Speech.STTModel, "whisper-1")
	}

	// Verify conversation timing with duration parsing
	if cfg.Conversation.Timeout != time.Hour {
		t.Errorf("Conversation.Timeout = %v, want %v", cfg.Conversation.Timeout, time.Hour)
	}
	if cfg.Conversation.EditInterval != 2*time.Second {
		t.Errorf("Conversation.EditInterval = %v, want %v", cfg.Conversation.EditInterval, 2*time.Second)
	}

	// Verify database config
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	// Verify logging config
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_StreamDefaultsTrue(t *testing.T) {
	configPath := writeConfig(t, `
telegram:
  token: "123456:test-token"
llm:
  api_key: "sk-ant-test"
  model: "claude-sonnet-4-5"
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.LLM.Streaming() {
		t.Error("LLM.Streaming() = false, want true when stream is unset")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "123456:from-env")
	t.Setenv("TEST_LLM_KEY", "sk-ant-from-env")

	configPath := writeConfig(t, `
telegram:
  token: "${TEST_BOT_TOKEN}"
llm:
  api_key: "${TEST_LLM_KEY}"
  model: "claude-sonnet-4-5"
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Telegram.Token != "123456:from-env" {
		t.Errorf("Telegram.Token = %q, want %q", cfg.Telegram.Token, "123456:from-env")
	}
	if cfg.LLM.APIKey != "sk-ant-from-env" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "sk-ant-from-env")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	os.Unsetenv("TEST_UNSET_TOKEN")

	configPath := writeConfig(t, `
telegram:
  token: "${TEST_UNSET_TOKEN}"
llm:
  api_key: "sk-ant-test"
  model: "claude-sonnet-4-5"
database:
  path: "./test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for empty token, got nil")
	}
	if !strings.Contains(err.Error(), "telegram.token") {
		t.Errorf("Load() error = %v, want mention of telegram.token", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
telegram:
  token: "123456:test-token"
llm:
  api_key: "sk-ant-test"
  model: "claude-sonnet-4-5"
conversation:
  timeout: "one hour"
database:
  path: "./test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected duration parse error, got nil")
	}
	if !strings.Contains(err.Error(), "conversation.timeout") {
		t.Errorf("Load() error = %v, want mention of conversation.timeout", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "telegram: [not: valid")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "123456:test-token"},
			LLM:      LLMConfig{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5"},
			Database: DatabaseConfig{Path: "./test.db"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"webhook without listen addr", func(c *Config) { c.Telegram.Webhook.URL = "https://bot.example.com/" }, "listen_addr"},
		{"missing llm key", func(c *Config) { c.LLM.APIKey = "" }, "llm.api_key"},
		{"missing model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"speech enabled without key", func(c *Config) { c.Speech.Enabled = true }, "speech.api_key"},
		{"speech enabled without models", func(c *Config) {
			c.Speech.Enabled = true
			c.Speech.APIKey = "sk-test"
		}, "stt_model"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want mention of %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
