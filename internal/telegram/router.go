// ABOUTME: Update router - dispatches commands, callbacks and plain messages
// ABOUTME: Owns the two-step mode-entry flow and group/allow-list filtering

package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/chat"
	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/dedupe"
)

// flowStage tracks where a chat is in the multi-step mode-entry flow.
type flowStage int

const (
	flowNone flowStage = iota
	flowEnterTitle
	flowEnterPrompt
)

// Commands registered with the platform on startup.
var botCommands = []BotCommand{
	{Command: "new", Description: "Start a new conversation"},
	{Command: "history", Description: "Show previous conversations"},
	{Command: "retry", Description: "Regenerate response for last message"},
	{Command: "mode", Description: "Select a mode for current chat and manage modes"},
	{Command: "say", Description: "Read out message sent by the bot by replying to it"},
}

// Router turns inbound updates into chat manager operations. Each update is
// handled on its own goroutine; per-chat ordering is the manager's concern.
type Router struct {
	client  *Client
	manager *chat.Manager
	logger  *slog.Logger
	seen    *dedupe.Cache
	allowed map[int64]bool

	botID       int64
	botUsername string

	mu    sync.Mutex
	flows map[int64]flowStage
}

// NewRouter creates a Router. allowedChatIDs empty means every chat is served.
func NewRouter(client *Client, manager *chat.Manager, allowedChatIDs []int64, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[int64]bool, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = true
	}
	return &Router{
		client:  client,
		manager: manager,
		logger:  logger.With("component", "router"),
		seen:    dedupe.New(10*time.Minute, 4096),
		allowed: allowed,
		flows:   make(map[int64]flowStage),
	}
}

// Init resolves the bot identity and registers the command list.
func (r *Router) Init(ctx context.Context) error {
	me, err := r.client.GetMe(ctx)
	if err != nil {
		return err
	}
	r.botID = me.ID
	r.botUsername = me.Username

	if err := r.client.SetMyCommands(ctx, botCommands); err != nil {
		return err
	}
	r.logger.Info("command list registered", "bot", r.botUsername)
	return nil
}

// Close releases the router's background resources.
func (r *Router) Close() {
	r.seen.Close()
}

// HandleUpdate routes one inbound update. Duplicates and disallowed chats are
// dropped silently.
func (r *Router) HandleUpdate(ctx context.Context, update *Update) {
	if r.seen.CheckAndMark(update.UpdateID) {
		r.logger.Debug("duplicate update ignored", "update_id", update.UpdateID)
		return
	}

	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	default:
		r.logger.Debug("update ignored, no message or callback", "update_id", update.UpdateID)
	}
}

func (r *Router) chatAllowed(chatID int64) bool {
	return len(r.allowed) == 0 || r.allowed[chatID]
}

func (r *Router) handleCallback(ctx context.Context, cb *CallbackQuery) {
	if cb.Message == nil {
		r.logger.Warn("callback without message ignored", "callback_id", cb.ID)
		return
	}
	chatID := cb.Message.Chat.ID
	if !r.chatAllowed(chatID) {
		r.logger.Info("callback ignored, chat not allowed", "chat_id", chatID)
		return
	}

	if err := r.client.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		r.logger.Warn("answering callback", "chat_id", chatID, "error", err)
	}

	data := cb.Data
	menuMessageID := cb.Message.MessageID

	var err error
	switch {
	case data == "/retry":
		if derr := r.client.DeleteMessage(ctx, chatID, menuMessageID); derr != nil {
			r.logger.Warn("deleting retry prompt", "chat_id", chatID, "error", derr)
		}
		err = r.manager.RetryLastMessage(ctx, chatID)

	case strings.HasPrefix(data, "/resume_"):
		var id int
		id, err = strconv.Atoi(strings.TrimPrefix(data, "/resume_"))
		if err == nil {
			err = r.manager.Resume(ctx, chatID, id)
		}

	case data == "/mode":
		err = r.manager.ListModesForSelection(ctx, chatID)

	case data == "/mode_show":
		err = r.manager.ShowModes(ctx, chatID)

	case data == "/mode_clear":
		err = r.manager.SelectMode(ctx, chatID, "", menuMessageID)

	case data == "/mode_add":
		r.setFlow(chatID, flowEnterTitle)
		_, err = r.client.SendMessage(ctx, chatID, "Enter a title for the new mode:", nil)

	case strings.HasPrefix(data, "/mode_select_"):
		err = r.manager.SelectMode(ctx, chatID, strings.TrimPrefix(data, "/mode_select_"), menuMessageID)

	case strings.HasPrefix(data, "/mode_detail_"):
		err = r.manager.ShowModeDetail(ctx, chatID, strings.TrimPrefix(data, "/mode_detail_"))

	case strings.HasPrefix(data, "/mode_edit_"):
		var ok bool
		ok, err = r.manager.BeginModeEdit(ctx, chatID, strings.TrimPrefix(data, "/mode_edit_"))
		if ok {
			r.setFlow(chatID, flowEnterPrompt)
		}

	case strings.HasPrefix(data, "/mode_delete_"):
		err = r.manager.DeleteMode(ctx, chatID, strings.TrimPrefix(data, "/mode_delete_"), menuMessageID)

	default:
		r.logger.Warn("unknown callback data", "chat_id", chatID, "data", data)
	}

	if err != nil {
		r.logger.Error("callback handling failed", "chat_id", chatID, "data", data, "error", err)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *Message) {
	chatID := msg.Chat.ID
	if !r.chatAllowed(chatID) {
		r.logger.Info("message ignored, chat not allowed", "chat_id", chatID)
		return
	}

	if msg.Voice != nil {
		r.handleVoice(ctx, msg)
		return
	}
	if msg.Text == "" {
		r.logger.Debug("update ignored, no text", "chat_id", chatID)
		return
	}

	if strings.HasPrefix(msg.Text, "/") {
		r.handleCommand(ctx, msg)
		return
	}

	if stage := r.flow(chatID); stage != flowNone {
		r.handleFlowInput(ctx, chatID, msg.Text, stage)
		return
	}

	text, ok := r.filterGroupText(msg)
	if !ok {
		return
	}

	replyTo := 0
	if isGroup(msg.Chat.Type) {
		replyTo = msg.MessageID
	}

	if err := r.manager.HandleMessage(ctx, chatID, msg.MessageID, text, replyTo); err != nil {
		r.logger.Error("message handling failed", "chat_id", chatID, "error", err)
	}
}

func (r *Router) handleCommand(ctx context.Context, msg *Message) {
	chatID := msg.Chat.ID

	command := strings.Fields(msg.Text)[0]
	// Commands may be addressed as /command@botname in groups.
	if i := strings.IndexByte(command, '@'); i >= 0 {
		if !strings.EqualFold(command[i+1:], r.botUsername) {
			return
		}
		command = command[:i]
	}

	var err error
	switch {
	case command == "/start":
		err = r.manager.Start(ctx, chatID)
	case command == "/new":
		err = r.manager.NewConversation(ctx, chatID)
	case command == "/history":
		err = r.manager.ShowHistory(ctx, chatID)
	case command == "/retry":
		err = r.manager.RetryLastMessage(ctx, chatID)
	case command == "/mode":
		err = r.manager.ListModesForSelection(ctx, chatID)
	case command == "/say":
		if msg.ReplyToMessage == nil {
			_, err = r.client.SendMessage(ctx, chatID, "Please reply to a message to read it out loud", nil)
			break
		}
		err = r.manager.ReadOutMessage(ctx, chatID, msg.ReplyToMessage.MessageID)
	case command == "/cancel":
		if r.flow(chatID) == flowNone {
			return
		}
		r.clearFlow(chatID)
		err = r.manager.CancelModeEntry(ctx, chatID)
	case strings.HasPrefix(command, "/resume_"):
		var id int
		id, err = strconv.Atoi(strings.TrimPrefix(command, "/resume_"))
		if err != nil {
			r.logger.Warn("malformed resume command", "chat_id", chatID, "text", msg.Text)
			return
		}
		err = r.manager.Resume(ctx, chatID, id)
	default:
		r.logger.Debug("unknown command ignored", "chat_id", chatID, "command", command)
	}

	if err != nil {
		r.logger.Error("command handling failed", "chat_id", chatID, "command", command, "error", err)
	}
}

// handleFlowInput feeds plain text into the pending mode-entry flow.
func (r *Router) handleFlowInput(ctx context.Context, chatID int64, text string, stage flowStage) {
	text = strings.TrimSpace(text)

	switch stage {
	case flowEnterTitle:
		if text == "" {
			if _, err := r.client.SendMessage(ctx, chatID, "Invalid title. Please try again.", nil); err != nil {
				r.logger.Warn("sending flow notice", "chat_id", chatID, "error", err)
			}
			return
		}
		if err := r.manager.SetPendingModeTitle(ctx, chatID, text); err != nil {
			r.logger.Error("storing mode title failed", "chat_id", chatID, "error", err)
			return
		}
		r.setFlow(chatID, flowEnterPrompt)
		if _, err := r.client.SendMessage(ctx, chatID, "Enter a prompt for the new mode:", nil); err != nil {
			r.logger.Warn("sending flow notice", "chat_id", chatID, "error", err)
		}

	case flowEnterPrompt:
		if text == "" {
			if _, err := r.client.SendMessage(ctx, chatID, "Invalid prompt. Please try again.", nil); err != nil {
				r.logger.Warn("sending flow notice", "chat_id", chatID, "error", err)
			}
			return
		}
		r.clearFlow(chatID)
		if err := r.manager.FinishModeEntry(ctx, chatID, text); err != nil {
			r.logger.Error("finishing mode entry failed", "chat_id", chatID, "error", err)
		}
	}
}

func (r *Router) handleVoice(ctx context.Context, msg *Message) {
	chatID := msg.Chat.ID

	file, err := r.client.GetFile(ctx, msg.Voice.FileID)
	if err != nil {
		r.logger.Error("resolving voice file failed", "chat_id", chatID, "error", err)
		return
	}
	audio, err := r.client.DownloadFile(ctx, file.FilePath)
	if err != nil {
		r.logger.Error("downloading voice file failed", "chat_id", chatID, "error", err)
		return
	}

	r.logger.Info("received audio", "chat_id", chatID, "bytes", len(audio))

	if err := r.manager.HandleVoice(ctx, chatID, msg.MessageID, audio); err != nil {
		r.logger.Error("voice handling failed", "chat_id", chatID, "error", err)
	}
}

// filterGroupText applies group-chat etiquette: the bot only reacts when
// mentioned or when the message replies to one of its own. Returns the text
// with the mention stripped.
func (r *Router) filterGroupText(msg *Message) (string, bool) {
	text := msg.Text
	if !isGroup(msg.Chat.Type) {
		return text, true
	}

	mention := "@" + r.botUsername
	mentioned := r.botUsername != "" && strings.Contains(text, mention)
	if mentioned {
		text = strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
	}

	quoted := msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == r.botID

	if !mentioned && !quoted {
		return "", false
	}
	return text, true
}

func isGroup(chatType string) bool {
	return chatType == ChatTypeGroup || chatType == ChatTypeSupergroup
}

func (r *Router) flow(chatID int64) flowStage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flows[chatID]
}

func (r *Router) setFlow(chatID int64, stage flowStage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[chatID] = stage
}

func (r *Router) clearFlow(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, chatID)
}
