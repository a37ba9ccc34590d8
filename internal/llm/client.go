// ABOUTME: Generative backend client on the Anthropic API
// ABOUTME: Conversation creation plus streaming and blocking completion

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/chat"
	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
)

const defaultMaxTokens = 4096

// titleLimit caps conversation titles derived from the first user message.
const titleLimit = 40

// Config holds the generator settings.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int
	RequestTimeout time.Duration // zero means no per-request deadline
}

// Client implements the chat.Generator interface against the Anthropic API.
type Client struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))

	return &Client{
		client:    &client,
		model:     anthropic.Model(cfg.Model),
		maxTokens: maxTokens,
		timeout:   cfg.RequestTimeout,
		logger:    logger.With("component", "llm"),
	}, nil
}

// NewConversation builds a conversation around the first user message. The id
// is the chat's running conversation count and the title is derived from the
// message text.
func (c *Client) NewConversation(existingCount int, firstUserMessage *store.Message) *store.Conversation {
	return &store.Conversation{
		ID:        existingCount,
		Title:     deriveTitle(firstUserMessage.Content),
		StartedAt: time.Now(),
		Messages:  []*store.Message{firstUserMessage},
	}
}

// Complete requests a streaming completion. The returned stream yields
// cumulative snapshots of the assistant message as deltas arrive.
func (c *Client) Complete(ctx context.Context, conv *store.Conversation, user *store.Message, correlationID, systemPrompt string) (chat.Stream, error) {
	params := c.buildParams(conv, systemPrompt)

	ctx, cancel := c.withTimeout(ctx)

	c.logger.Debug("starting streaming completion",
		"correlation_id", correlationID,
		"conversation_id", conv.ID,
		"messages", len(conv.Messages))

	stream := c.client.Messages.NewStreaming(ctx, params)
	return &messageStream{stream: stream, ctx: ctx, cancel: cancel}, nil
}

// Generate is the non-streaming variant: one blocking call, one final message.
func (c *Client) Generate(ctx context.Context, conv *store.Conversation, user *store.Message, correlationID, systemPrompt string) (*store.Message, error) {
	params := c.buildParams(conv, systemPrompt)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	c.logger.Debug("starting blocking completion",
		"correlation_id", correlationID,
		"conversation_id", conv.ID,
		"messages", len(conv.Messages))

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("completion: %w", ctxErr)
		}
		return nil, fmt.Errorf("completion: %w", err)
	}

	return &store.Message{
		Role:      store.RoleAssistant,
		Content:   messageText(message),
		CreatedAt: time.Now(),
	}, nil
}

func (c *Client) buildParams(conv *store.Conversation, systemPrompt string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  convertMessages(conv.Messages),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		}
	}
	return params
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// convertMessages maps stored messages to API message params. Only user and
// assistant messages are sent; the system prompt travels separately.
func convertMessages(msgs []*store.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case store.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case store.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

// messageText joins the text blocks of a completed message.
func messageText(message *anthropic.Message) string {
	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// deriveTitle turns the first user message into a short conversation title:
// its first line, truncated to titleLimit runes.
func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	runes := []rune(title)
	if len(runes) > titleLimit {
		title = strings.TrimSpace(string(runes[:titleLimit])) + "…"
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}
