// ABOUTME: Manager is the conversation session core - message handling, retry,
// ABOUTME: resume, history and voice flows, all serialized per chat

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
)

// Options configures a Manager.
type Options struct {
	// ConversationTimeout is the idle window after which the current
	// conversation is archived. Zero disables expiry.
	ConversationTimeout time.Duration

	// EditInterval is the minimum spacing between progress edits while
	// streaming. Defaults to 2 seconds.
	EditInterval time.Duration

	// Streaming selects the streaming completion variant; when false a single
	// blocking generator call is made per exchange.
	Streaming bool
}

// Manager owns per-chat conversation lifecycle: the conversation store, the
// active-session state, and the completion orchestration. Every public
// operation is funneled through the per-chat dispatcher, so operations on one
// chat are totally ordered while chats stay independent.
type Manager struct {
	store     store.Store
	transport Transport
	generator Generator
	speech    Speech // nil when the speech backend is not configured
	dispatch  *Dispatcher
	logger    *slog.Logger

	timeout      time.Duration
	editInterval time.Duration
	streaming    bool

	mu     sync.Mutex
	states map[int64]*chatState
}

// NewManager creates a Manager. speech may be nil.
func NewManager(st store.Store, transport Transport, generator Generator, speech Speech, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	editInterval := opts.EditInterval
	if editInterval <= 0 {
		editInterval = 2 * time.Second
	}
	return &Manager{
		store:        st,
		transport:    transport,
		generator:    generator,
		speech:       speech,
		dispatch:     NewDispatcher(logger),
		logger:       logger.With("component", "chat"),
		timeout:      opts.ConversationTimeout,
		editInterval: editInterval,
		streaming:    opts.Streaming,
		states:       make(map[int64]*chatState),
	}
}

// submit runs op inside the chat's serialization slot with the chat's state
// record, releasing the record afterwards if nothing keeps it alive.
func (m *Manager) submit(ctx context.Context, chatID int64, op func(context.Context, *chatState) error) error {
	return m.dispatch.Submit(ctx, chatID, func(ctx context.Context) error {
		st := m.state(chatID)
		err := op(ctx, st)
		m.releaseIfIdle(chatID, st)
		return err
	})
}

// Start greets a chat that issued the start command.
func (m *Manager) Start(ctx context.Context, chatID int64) error {
	return m.submit(ctx, chatID, func(ctx context.Context, _ *chatState) error {
		_, err := m.transport.SendMessage(ctx, chatID, "Start by sending me a message!", nil)
		if err == nil {
			m.logger.Info("start command executed", "chat_id", chatID)
		}
		return err
	})
}

// HandleMessage runs one full user-message exchange: placeholder, conversation
// lookup or lazy creation, completion, expiry re-arm. replyTo marks the
// placeholder as a reply when non-zero (group chats).
func (m *Manager) HandleMessage(ctx context.Context, chatID int64, userMessageID int, text string, replyTo int) error {
	return m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		_, err := m.handleMessage(ctx, st, chatID, userMessageID, text, replyTo)
		return err
	})
}

func (m *Manager) handleMessage(ctx context.Context, st *chatState, chatID int64, userMessageID int, text string, replyTo int) (*store.Conversation, error) {
	placeholderID, err := m.transport.SendMessage(ctx, chatID, "Generating response...", &SendOptions{ReplyTo: replyTo})
	if err != nil {
		return nil, fmt.Errorf("sending placeholder: %w", err)
	}

	userMsg := &store.Message{
		ID:        userMessageID,
		Role:      store.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}

	conv := st.current
	if conv != nil {
		conv.Messages = append(conv.Messages, userMsg)
		if err := m.store.AppendMessage(ctx, chatID, conv.ID, userMsg); err != nil {
			m.logger.Error("failed to persist user message", "chat_id", chatID, "error", err)
		}
	} else {
		count, err := m.store.ConversationCount(ctx, chatID)
		if err != nil {
			m.failPlaceholder(ctx, chatID, placeholderID)
			return nil, fmt.Errorf("counting conversations: %w", err)
		}
		conv = m.generator.NewConversation(count, userMsg)
		if err := m.store.CreateConversation(ctx, chatID, conv); err != nil {
			m.failPlaceholder(ctx, chatID, placeholderID)
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		m.logger.Info("conversation created", "chat_id", chatID, "conversation_id", conv.ID, "title", conv.Title)
	}

	m.complete(ctx, st, chatID, conv, userMsg, placeholderID)
	return conv, nil
}

// RetryLastMessage pops the last assistant reply of the current conversation
// and re-runs completion for the user message before it.
func (m *Manager) RetryLastMessage(ctx context.Context, chatID int64) error {
	return m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		conv := st.current
		if conv == nil {
			_, err := m.transport.SendMessage(ctx, chatID, "No conversation to retry", nil)
			return err
		}

		placeholderID, err := m.transport.SendMessage(ctx, chatID, "Regenerating response...", nil)
		if err != nil {
			return fmt.Errorf("sending placeholder: %w", err)
		}

		if last := conv.LastMessage(); last != nil && last.Role == store.RoleAssistant {
			conv.Messages = conv.Messages[:len(conv.Messages)-1]
			if err := m.store.PopLastMessage(ctx, chatID, conv.ID); err != nil {
				m.logger.Error("failed to pop assistant message", "chat_id", chatID, "error", err)
			}
		}

		last := conv.LastMessage()
		if last == nil || last.Role != store.RoleUser {
			return m.transport.EditMessageText(ctx, chatID, placeholderID, "No message to retry", nil)
		}

		m.complete(ctx, st, chatID, conv, last, placeholderID)
		return nil
	})
}

// Resume makes a stored conversation current again. An unknown id produces a
// single not-found notice and no state change.
func (m *Manager) Resume(ctx context.Context, chatID int64, conversationID int) error {
	return m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		conv, err := m.store.GetConversation(ctx, chatID, conversationID)
		if errors.Is(err, store.ErrNotFound) {
			_, serr := m.transport.SendMessage(ctx, chatID, "Failed to find that conversation. Try sending a new message.", nil)
			return serr
		}
		if err != nil {
			return fmt.Errorf("loading conversation: %w", err)
		}

		text := fmt.Sprintf("Resuming conversation %q:", conv.Title)
		if mode := m.currentMode(ctx, chatID); mode != nil {
			text = fmt.Sprintf("Resuming conversation %q in mode %q:", conv.Title, mode.Title)
		}
		if _, err := m.transport.SendMessage(ctx, chatID, text, nil); err != nil {
			return err
		}

		// Restore the bare content of the last message, clearing any expiry
		// notice previously written over it.
		if last := conv.LastMessage(); last != nil {
			if err := m.transport.EditMessageText(ctx, chatID, last.ID, last.Content, nil); err != nil {
				m.logger.Warn("could not restore last message", "chat_id", chatID, "message_id", last.ID, "error", err)
			}
		}

		st.current = conv
		m.armTimer(chatID, st)

		m.logger.Info("conversation resumed", "chat_id", chatID, "conversation_id", conv.ID)
		return nil
	})
}

// NewConversation expires whatever is current and announces a fresh start.
// The next user message creates the conversation lazily.
func (m *Manager) NewConversation(ctx context.Context, chatID int64) error {
	return m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		m.cancelTimer(st)
		if err := m.expire(ctx, chatID, st); err != nil {
			m.logger.Warn("expiring previous conversation", "chat_id", chatID, "error", err)
		}

		text := "Started a new conversation without mode. Send /mode to create a new mode."
		if mode := m.currentMode(ctx, chatID); mode != nil {
			text = fmt.Sprintf("Started a new conversation in mode %q.", mode.Title)
		}

		opts := &SendOptions{Keyboard: [][]Button{{{Label: "Change mode", Data: "/mode"}}}}
		if _, err := m.transport.SendMessage(ctx, chatID, text, opts); err != nil {
			return err
		}

		m.logger.Info("started new conversation", "chat_id", chatID)
		return nil
	})
}

// ShowHistory lists all stored conversations with resume shortcuts.
func (m *Manager) ShowHistory(ctx context.Context, chatID int64) error {
	return m.submit(ctx, chatID, func(ctx context.Context, _ *chatState) error {
		convs, err := m.store.ListConversations(ctx, chatID)
		if err != nil {
			return fmt.Errorf("listing conversations: %w", err)
		}

		lines := make([]string, 0, len(convs))
		for _, conv := range convs {
			lines = append(lines, fmt.Sprintf("[/resume_%d] %s (%s)", conv.ID, conv.Title, conv.StartedAt.Format("2006-01-02 15:04")))
		}
		text := strings.Join(lines, "\n")
		if text == "" {
			text = "No conversation history"
		}

		_, err = m.transport.SendMessage(ctx, chatID, text, nil)
		return err
	})
}

// HandleVoice transcribes a voice message, runs the normal message flow on the
// transcript, and reads the assistant reply back out loud.
func (m *Manager) HandleVoice(ctx context.Context, chatID int64, userMessageID int, audio []byte) error {
	return m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		if m.speech == nil {
			_, err := m.transport.SendMessage(ctx, chatID, "Speech recognition is not available for this chat.", nil)
			return err
		}

		placeholderID, err := m.transport.SendMessage(ctx, chatID, "Recognizing audio...", &SendOptions{ReplyTo: userMessageID})
		if err != nil {
			return fmt.Errorf("sending placeholder: %w", err)
		}

		text, err := m.speech.SpeechToText(ctx, audio)
		if err != nil || text == "" {
			if err != nil {
				m.logger.Warn("could not recognize audio", "chat_id", chatID, "error", err)
			}
			return m.transport.EditMessageText(ctx, chatID, placeholderID, "Could not recognize audio", nil)
		}

		m.logger.Info("recognized audio", "chat_id", chatID, "text", text)

		if err := m.transport.EditMessageText(ctx, chatID, placeholderID, fmt.Sprintf("You said: %q", text), nil); err != nil {
			return err
		}

		conv, err := m.handleMessage(ctx, st, chatID, userMessageID, text, 0)
		if err != nil {
			return err
		}

		last := conv.LastMessage()
		if last == nil || last.Role != store.RoleAssistant {
			return nil
		}
		return m.readOut(ctx, chatID, last)
	})
}

// ReadOutMessage speaks an assistant message from the current conversation.
func (m *Manager) ReadOutMessage(ctx context.Context, chatID int64, messageID int) error {
	return m.submit(ctx, chatID, func(ctx context.Context, st *chatState) error {
		conv := st.current
		if conv == nil {
			_, err := m.transport.SendMessage(ctx, chatID, "Can only read out messages in current conversation.", nil)
			return err
		}

		var msg *store.Message
		for _, candidate := range conv.Messages {
			if candidate.ID == messageID {
				msg = candidate
				break
			}
		}
		if msg == nil {
			_, err := m.transport.SendMessage(ctx, chatID, "Could not find that message.", nil)
			return err
		}
		if msg.Role != store.RoleAssistant {
			_, err := m.transport.SendMessage(ctx, chatID, "Can only read out messages sent by the bot.", nil)
			return err
		}

		return m.readOut(ctx, chatID, msg)
	})
}

// readOut synthesizes speech for an assistant message and sends it as a voice
// reply. Failures end in a chat notice, never an error up the chain.
func (m *Manager) readOut(ctx context.Context, chatID int64, msg *store.Message) error {
	if m.speech == nil {
		_, err := m.transport.SendMessage(ctx, chatID, "Speech recognition is not available for this chat.", nil)
		return err
	}

	audio, err := m.speech.TextToSpeech(ctx, msg.Content)
	if err != nil {
		m.logger.Warn("could not generate audio", "chat_id", chatID, "error", err)
		_, serr := m.transport.SendMessage(ctx, chatID, "Could not generate audio", &SendOptions{ReplyTo: msg.ID})
		return serr
	}

	return m.transport.SendVoice(ctx, chatID, audio, msg.ID)
}

// currentMode resolves the chat's current mode, reading a missing or dangling
// reference as "no mode".
func (m *Manager) currentMode(ctx context.Context, chatID int64) *store.Mode {
	mode, err := m.store.CurrentMode(ctx, chatID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("reading current mode", "chat_id", chatID, "error", err)
		}
		return nil
	}
	return mode
}

// failPlaceholder replaces a placeholder with the generic failure notice and
// a retry button. Used when an exchange dies before reaching the generator.
func (m *Manager) failPlaceholder(ctx context.Context, chatID int64, placeholderID int) {
	opts := &SendOptions{Keyboard: [][]Button{{{Label: "Retry", Data: "/retry"}}}}
	if err := m.transport.EditMessageText(ctx, chatID, placeholderID, "Error generating response", opts); err != nil {
		m.logger.Warn("could not edit placeholder", "chat_id", chatID, "message_id", placeholderID, "error", err)
	}
}
