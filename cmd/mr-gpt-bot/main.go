// ABOUTME: Entry point for the mr-gpt-bot Telegram bot
// ABOUTME: Wires the store, LLM, speech and Telegram layers and runs updates

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/chat"
	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/config"
	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/llm"
	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/speech"
	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/telegram"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                 _         _           _
 _ __ ___  _ __       __ _ _ __ | |_      | |__   ___ | |_
| '_ ' _ \| '__|____ / _' | '_ \| __|_____| '_ \ / _ \| __|
| | | | | | | |_____| (_| | |_) | ||_____ | |_) | (_) | |_
|_| |_| |_|_|        \__, | .__/ \__|     |_.__/ \___/ \__|
                     |___/|_|
`

// getConfigPath returns the path to the bot config file.
// Priority: MRGPT_CONFIG env var > XDG_CONFIG_HOME/mr-gpt-bot/config.yaml > ~/.config/mr-gpt-bot/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MRGPT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mr-gpt-bot", "config.yaml")
}

// getDataPath returns the path to the bot data directory.
// Priority: XDG_DATA_HOME/mr-gpt-bot > ~/.local/share/mr-gpt-bot
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "mr-gpt-bot")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mr-gpt-bot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the bot")
		fmt.Println("  init    Create a new config file interactively")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Model:     %s\n", cfg.LLM.Model)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Telegram.Webhook.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Updates:   webhook %s\n", cfg.Telegram.Webhook.URL)
	} else {
		green.Print("    ▶ ")
		fmt.Printf("Updates:   long polling\n")
	}
	if cfg.Speech.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Speech:    %s / %s\n", cfg.Speech.STTModel, cfg.Speech.TTSModel)
	}

	fmt.Println()

	logger.Info("starting mr-gpt-bot",
		"config", configPath,
		"model", cfg.LLM.Model,
		"database", cfg.Database.Path,
	)

	// Conversation store
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	// Text generation backend
	generator, err := llm.New(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		MaxTokens:      cfg.LLM.MaxTokens,
		RequestTimeout: cfg.LLM.RequestTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	// Optional speech backend
	var speechClient chat.Speech
	if cfg.Speech.Enabled {
		sc, err := speech.New(speech.Config{
			APIKey:   cfg.Speech.APIKey,
			BaseURL:  cfg.Speech.BaseURL,
			STTModel: cfg.Speech.STTModel,
			TTSModel: cfg.Speech.TTSModel,
			Voice:    cfg.Speech.Voice,
		}, logger)
		if err != nil {
			return fmt.Errorf("creating speech client: %w", err)
		}
		speechClient = sc
	}

	// Telegram transport
	tgClient, err := telegram.NewClient(cfg.Telegram.Token, "", logger)
	if err != nil {
		return fmt.Errorf("creating Telegram client: %w", err)
	}

	manager := chat.NewManager(st, tgClient, generator, speechClient, logger, chat.Options{
		ConversationTimeout: cfg.Conversation.Timeout,
		EditInterval:        cfg.Conversation.EditInterval,
		Streaming:           cfg.LLM.Streaming(),
	})

	router := telegram.NewRouter(tgClient, manager, cfg.Telegram.AllowedChatIDs, logger)
	defer router.Close()

	if err := router.Init(ctx); err != nil {
		return fmt.Errorf("initializing router: %w", err)
	}

	if cfg.Telegram.Webhook.URL != "" {
		server := telegram.NewWebhookServer(tgClient, router, cfg.Telegram.Webhook.URL, cfg.Telegram.Webhook.ListenAddr, logger)
		return server.Run(ctx)
	}

	poller := telegram.NewPoller(tgClient, router, logger)
	return poller.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("mr-gpt-bot configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "bot.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Telegram configuration
	fmt.Println("\n--- Telegram Configuration ---")
	token := prompt(reader, "Bot token (from @BotFather, or ${TELEGRAM_BOT_TOKEN})", "${TELEGRAM_BOT_TOKEN}")
	allowedChats := prompt(reader, "Allowed chat ids (comma separated, empty for all)", "")

	// LLM configuration
	fmt.Println("\n--- LLM Configuration ---")
	apiKey := prompt(reader, "API key (or ${ANTHROPIC_API_KEY})", "${ANTHROPIC_API_KEY}")
	model := prompt(reader, "Model", "claude-sonnet-4-5")

	// Speech configuration
	fmt.Println("\n--- Speech Configuration ---")
	enableSpeech := prompt(reader, "Enable speech (voice messages and /say)?", "no")
	speechEnabled := strings.ToLower(enableSpeech) == "yes" || strings.ToLower(enableSpeech) == "y"

	var speechKey, sttModel, ttsModel, voice string
	if speechEnabled {
		speechKey = prompt(reader, "Speech API key (or ${OPENAI_API_KEY})", "${OPENAI_API_KEY}")
		sttModel = prompt(reader, "Speech-to-text model", "whisper-1")
		ttsModel = prompt(reader, "Text-to-speech model", "tts-1")
		voice = prompt(reader, "Voice", "alloy")
	}

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Conversation timing
	fmt.Println("\n--- Conversation Configuration ---")
	timeout := prompt(reader, "Conversation timeout", "1h")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# mr-gpt-bot configuration\n")
	cfg.WriteString("# Generated by mr-gpt-bot init\n\n")

	cfg.WriteString("telegram:\n")
	cfg.WriteString(fmt.Sprintf("  token: \"%s\"\n", token))
	if allowedChats != "" {
		cfg.WriteString("  allowed_chat_ids:\n")
		for _, id := range strings.Split(allowedChats, ",") {
			cfg.WriteString(fmt.Sprintf("    - %s\n", strings.TrimSpace(id)))
		}
	}
	cfg.WriteString("\n")

	cfg.WriteString("llm:\n")
	cfg.WriteString(fmt.Sprintf("  api_key: \"%s\"\n", apiKey))
	cfg.WriteString(fmt.Sprintf("  model: \"%s\"\n", model))
	cfg.WriteString("  max_tokens: 4096\n")
	cfg.WriteString("  stream: true\n")
	cfg.WriteString("  request_timeout: \"2m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("speech:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", speechEnabled))
	if speechEnabled {
		cfg.WriteString(fmt.Sprintf("  api_key: \"%s\"\n", speechKey))
		cfg.WriteString(fmt.Sprintf("  stt_model: \"%s\"\n", sttModel))
		cfg.WriteString(fmt.Sprintf("  tts_model: \"%s\"\n", ttsModel))
		cfg.WriteString(fmt.Sprintf("  voice: \"%s\"\n", voice))
	}
	cfg.WriteString("\n")

	cfg.WriteString("conversation:\n")
	cfg.WriteString(fmt.Sprintf("  timeout: \"%s\"\n", timeout))
	cfg.WriteString("  edit_interval: \"2s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the bot:")
	fmt.Printf("  mr-gpt-bot serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
