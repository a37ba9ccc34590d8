// ABOUTME: Configuration loading and parsing for mr-gpt-bot
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mr-gpt-bot configuration
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	LLM          LLMConfig          `yaml:"llm"`
	Speech       SpeechConfig       `yaml:"speech"`
	Conversation ConversationConfig `yaml:"conversation"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// TelegramConfig holds Bot API credentials and update delivery settings
type TelegramConfig struct {
	Token          string        `yaml:"token"`
	AllowedChatIDs []int64       `yaml:"allowed_chat_ids"`
	Webhook        WebhookConfig `yaml:"webhook"`
}

// WebhookConfig selects webhook delivery instead of long polling.
// When URL is empty the bot long-polls getUpdates.
type WebhookConfig struct {
	URL        string `yaml:"url"`
	ListenAddr string `yaml:"listen_addr"`
}

// LLMConfig holds the text generation backend configuration
type LLMConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Stream    *bool  `yaml:"stream"` // nil defaults to true

	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// SpeechConfig holds the optional speech backend configuration
type SpeechConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	STTModel string `yaml:"stt_model"`
	TTSModel string `yaml:"tts_model"`
	Voice    string `yaml:"voice"`
}

// ConversationConfig holds conversation lifecycle timing
type ConversationConfig struct {
	Timeout      time.Duration `yaml:"-"`
	EditInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw      string `yaml:"timeout"`
	EditIntervalRaw string `yaml:"edit_interval"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Streaming reports whether streamed completions are enabled (the default).
func (c *LLMConfig) Streaming() bool {
	return c.Stream == nil || *c.Stream
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}

	if c.Telegram.Webhook.URL != "" && c.Telegram.Webhook.ListenAddr == "" {
		return fmt.Errorf("telegram.webhook.listen_addr is required when telegram.webhook.url is set")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	if c.Speech.Enabled {
		if c.Speech.APIKey == "" {
			return fmt.Errorf("speech.api_key is required when speech is enabled")
		}
		if c.Speech.STTModel == "" || c.Speech.TTSModel == "" {
			return fmt.Errorf("speech.stt_model and speech.tts_model are required when speech is enabled")
		}
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Conversation.TimeoutRaw != "" {
		cfg.Conversation.Timeout, err = time.ParseDuration(cfg.Conversation.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing conversation.timeout %q: %w", cfg.Conversation.TimeoutRaw, err)
		}
	}

	if cfg.Conversation.EditIntervalRaw != "" {
		cfg.Conversation.EditInterval, err = time.ParseDuration(cfg.Conversation.EditIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing conversation.edit_interval %q: %w", cfg.Conversation.EditIntervalRaw, err)
		}
	}

	if cfg.LLM.RequestTimeoutRaw != "" {
		cfg.LLM.RequestTimeout, err = time.ParseDuration(cfg.LLM.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing llm.request_timeout %q: %w", cfg.LLM.RequestTimeoutRaw, err)
		}
	}

	return nil
}
