// Package config handles configuration loading for mr-gpt-bot.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	telegram:
//	  token: "${TELEGRAM_BOT_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	conversation:
//	  timeout: "1h"
//	  edit_interval: "2s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Telegram:
//
//	telegram:
//	  token: "${TELEGRAM_BOT_TOKEN}"
//	  allowed_chat_ids: [123456789]  # empty serves every chat
//	  webhook:                       # omit to long-poll getUpdates
//	    url: "https://bot.example.com/"
//	    listen_addr: "0.0.0.0:8443"
//
// Text generation backend:
//
//	llm:
//	  api_key: "${ANTHROPIC_API_KEY}"
//	  model: "claude-sonnet-4-5"
//	  max_tokens: 4096
//	  stream: true
//	  request_timeout: "2m"
//
// Speech backend (optional):
//
//	speech:
//	  enabled: true
//	  api_key: "${OPENAI_API_KEY}"
//	  stt_model: "whisper-1"
//	  tts_model: "tts-1"
//	  voice: "alloy"
//
// Conversation lifecycle:
//
//	conversation:
//	  timeout: "1h"        # idle time before a conversation expires
//	  edit_interval: "2s"  # minimum delay between streamed message edits
//
// Database:
//
//	database:
//	  path: "/var/lib/mr-gpt-bot/bot.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Telegram token presence
//   - Webhook listen address when a webhook URL is set
//   - LLM API key and model presence
//   - Speech credentials and models when speech is enabled
//   - Database path presence
//   - Duration format validity
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/mr-gpt-bot/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
