// ABOUTME: Process-local per-chat state - current conversation pointer,
// ABOUTME: expiry timer handle and mode-entry scratch fields

package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
)

// chatState is the mutable, non-persisted state of one chat. It is owned by
// the chat's serialized operation chain: fields are only touched while
// holding the chat's dispatcher slot.
type chatState struct {
	// timer is the pending expiry timer, at most one at a time.
	timer *time.Timer

	// timerGen increments on every arm/cancel. A firing whose captured
	// generation no longer matches is stale and must not mutate state.
	timerGen uint64

	current *store.Conversation

	// Mode-entry scratch, driven by the transport-side flow controller.
	pendingModeTitle string
	editingMode      *store.Mode
}

func (st *chatState) idle() bool {
	return st.timer == nil && st.current == nil && st.pendingModeTitle == "" && st.editingMode == nil
}

// state returns the chat's state record, creating it on first reference.
func (m *Manager) state(chatID int64) *chatState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[chatID]
	if !ok {
		st = &chatState{}
		m.states[chatID] = st
	}
	return st
}

// releaseIfIdle drops the chat's state record when nothing references it
// anymore, so idle chats don't accumulate. Must be called while holding the
// chat's dispatcher slot.
func (m *Manager) releaseIfIdle(chatID int64, st *chatState) {
	if !st.idle() {
		return
	}
	m.mu.Lock()
	if cur, ok := m.states[chatID]; ok && cur == st {
		delete(m.states, chatID)
	}
	m.mu.Unlock()
}

// cancelTimer stops any pending expiry timer. Stopping an already-fired timer
// is safe: the firing checks its generation and backs off.
func (m *Manager) cancelTimer(st *chatState) {
	st.timerGen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}

// armTimer replaces the chat's expiry timer with a fresh full-timeout window.
// With no configured timeout the conversation never expires.
func (m *Manager) armTimer(chatID int64, st *chatState) {
	m.cancelTimer(st)
	if m.timeout <= 0 {
		return
	}

	gen := st.timerGen
	st.timer = time.AfterFunc(m.timeout, func() {
		err := m.dispatch.Submit(context.Background(), chatID, func(ctx context.Context) error {
			cur := m.state(chatID)
			if cur.timerGen != gen {
				return nil // superseded or cancelled after firing
			}
			cur.timer = nil
			err := m.expire(ctx, chatID, cur)
			m.releaseIfIdle(chatID, cur)
			return err
		})
		if err != nil {
			m.logger.Warn("conversation expiry failed", "chat_id", chatID, "error", err)
		}
	})
}

// expire archives the current conversation: the pointer is cleared and, when
// the conversation's last message is an assistant reply, that message is
// rewritten in place with an expiry notice and a resume button. A chat with
// nothing current is a no-op, so expiry is idempotent.
func (m *Manager) expire(ctx context.Context, chatID int64, st *chatState) error {
	conv := st.current
	if conv == nil {
		return nil
	}
	st.current = nil

	last := conv.LastMessage()
	if last == nil || last.Role != store.RoleAssistant {
		return nil
	}

	text := last.Content + fmt.Sprintf("\n\nThis conversation has expired and it was about %q. A new conversation has started.", conv.Title)
	opts := &SendOptions{Keyboard: [][]Button{{
		{Label: "Resume this conversation", Data: fmt.Sprintf("/resume_%d", conv.ID)},
	}}}
	if err := m.transport.EditMessageText(ctx, chatID, last.ID, text, opts); err != nil {
		return fmt.Errorf("rewriting expired message: %w", err)
	}

	m.logger.Info("conversation expired", "chat_id", chatID, "conversation_id", conv.ID)
	return nil
}
