// ABOUTME: Minimal Bot API HTTP client - the handful of methods the bot needs
// ABOUTME: Also implements the chat.Transport interface consumed by the manager

package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/chat"
)

const defaultAPIRoot = "https://api.telegram.org"

// Client is a thin Bot API client. It also implements chat.Transport.
type Client struct {
	httpClient *http.Client
	apiRoot    string
	token      string
	logger     *slog.Logger
}

// NewClient creates a Client for the given bot token. apiRoot overrides the
// production endpoint in tests; pass "" for the default.
func NewClient(token, apiRoot string, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if apiRoot == "" {
		apiRoot = defaultAPIRoot
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		// Long polling holds requests open for up to the poll timeout, so
		// no overall client timeout; per-call deadlines come from ctx.
		httpClient: &http.Client{},
		apiRoot:    apiRoot,
		token:      token,
		logger:     logger.With("component", "telegram"),
	}, nil
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// call POSTs a JSON payload to a Bot API method and decodes the result.
func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: building request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s: API error %d: %s", method, envelope.ErrorCode, envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%s: decoding result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiRoot, c.token, method)
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for inbound updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage implements chat.Transport.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *chat.SendOptions) (int, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	applyOptions(payload, opts)

	var sent Message
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessageText implements chat.Transport.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts *chat.SendOptions) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	applyOptions(payload, opts)
	return c.call(ctx, "editMessageText", payload, nil)
}

// DeleteMessage removes a sent message.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "deleteMessage", payload, nil)
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	payload := map[string]any{"callback_query_id": callbackQueryID}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// SetMyCommands registers the bot's command list.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	payload := map[string]any{"commands": commands}
	return c.call(ctx, "setMyCommands", payload, nil)
}

// SetWebhook points the Bot API at a webhook URL.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	payload := map[string]any{
		"url":             webhookURL,
		"secret_token":    secretToken,
		"allowed_updates": []string{"message", "callback_query"},
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

// DeleteWebhook removes a previously configured webhook.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", struct{}{}, nil)
}

// GetFile resolves a file id to a downloadable path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	payload := map[string]any{"file_id": fileID}
	var file File
	if err := c.call(ctx, "getFile", payload, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DownloadFile fetches a file's bytes by the path returned from GetFile.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	downloadURL := fmt.Sprintf("%s/file/bot%s/%s", c.apiRoot, c.token, url.PathEscape(filePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// SendVoice implements chat.Transport. Voice uploads go as multipart form data.
func (c *Client) SendVoice(ctx context.Context, chatID int64, voice []byte, replyTo int) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", fmt.Sprint(chatID)); err != nil {
		return fmt.Errorf("sendVoice: building request: %w", err)
	}
	if replyTo != 0 {
		if err := writer.WriteField("reply_to_message_id", fmt.Sprint(replyTo)); err != nil {
			return fmt.Errorf("sendVoice: building request: %w", err)
		}
	}
	part, err := writer.CreateFormFile("voice", "voice.ogg")
	if err != nil {
		return fmt.Errorf("sendVoice: building request: %w", err)
	}
	if _, err := part.Write(voice); err != nil {
		return fmt.Errorf("sendVoice: building request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("sendVoice: building request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendVoice"), &body)
	if err != nil {
		return fmt.Errorf("sendVoice: building request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendVoice: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("sendVoice: decoding response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("sendVoice: API error %d: %s", envelope.ErrorCode, envelope.Description)
	}
	return nil
}

// applyOptions translates the transport-neutral send options to Bot API fields.
func applyOptions(payload map[string]any, opts *chat.SendOptions) {
	if opts == nil {
		return
	}
	if opts.ReplyTo != 0 {
		payload["reply_to_message_id"] = opts.ReplyTo
	}
	if len(opts.Keyboard) > 0 {
		rows := make([][]InlineKeyboardButton, 0, len(opts.Keyboard))
		for _, row := range opts.Keyboard {
			buttons := make([]InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, InlineKeyboardButton{Text: b.Label, CallbackData: b.Data})
			}
			rows = append(rows, buttons)
		}
		payload["reply_markup"] = InlineKeyboardMarkup{InlineKeyboard: rows}
	}
}
