// ABOUTME: Completion orchestrator - drives one generator request and keeps the
// ABOUTME: placeholder message in sync without flooding the transport with edits

package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
)

const generatingMarker = "\n\nGenerating..."

// complete drives one request/response cycle: it streams (or blocks on) the
// generator, settles the placeholder into its final state, and regardless of
// outcome makes the conversation current and re-arms the expiry timer. The
// placeholder always ends as either the full assistant content or an error
// notice with a retry button, never a stale progress marker.
func (m *Manager) complete(ctx context.Context, st *chatState, chatID int64, conv *store.Conversation, user *store.Message, placeholderID int) {
	var systemPrompt string
	if mode := m.currentMode(ctx, chatID); mode != nil {
		systemPrompt = mode.Prompt
	}
	correlationID := uuid.New().String()

	var final string
	var err error
	if m.streaming {
		final, err = m.streamCompletion(ctx, chatID, conv, user, placeholderID, correlationID, systemPrompt)
	} else {
		var msg *store.Message
		msg, err = m.generator.Generate(ctx, conv, user, correlationID, systemPrompt)
		if err == nil {
			final = msg.Content
		}
	}

	retryMarkup := &SendOptions{Keyboard: [][]Button{{{Label: "Retry", Data: "/retry"}}}}

	switch {
	case err == nil && final != "":
		msg := &store.Message{
			ID:        placeholderID,
			Role:      store.RoleAssistant,
			Content:   final,
			CreatedAt: time.Now(),
		}
		conv.Messages = append(conv.Messages, msg)
		if serr := m.store.AppendMessage(ctx, chatID, conv.ID, msg); serr != nil {
			m.logger.Error("failed to persist assistant message", "chat_id", chatID, "error", serr)
		}
		if eerr := m.transport.EditMessageText(ctx, chatID, placeholderID, final, nil); eerr != nil {
			m.logger.Warn("final edit failed", "chat_id", chatID, "message_id", placeholderID, "error", eerr)
		}
		m.logger.Info("completion finished", "chat_id", chatID, "conversation_id", conv.ID, "correlation_id", correlationID)

	case err == nil:
		// Generator produced nothing. Leave no stale marker behind.
		m.failPlaceholder(ctx, chatID, placeholderID)
		m.logger.Warn("generator produced empty completion", "chat_id", chatID, "correlation_id", correlationID)

	case errors.Is(err, context.DeadlineExceeded):
		if eerr := m.transport.EditMessageText(ctx, chatID, placeholderID, "Generation timed out.", retryMarkup); eerr != nil {
			m.logger.Warn("timeout edit failed", "chat_id", chatID, "error", eerr)
		}
		m.logger.Info("generation timed out", "chat_id", chatID, "correlation_id", correlationID)

	default:
		if eerr := m.transport.EditMessageText(ctx, chatID, placeholderID, "Error generating response", retryMarkup); eerr != nil {
			m.logger.Warn("error edit failed", "chat_id", chatID, "error", eerr)
		}
		m.logger.Error("generation failed", "chat_id", chatID, "correlation_id", correlationID, "error", err)
	}

	// Even a failed completion starts the idle clock on the conversation
	// holding the failed exchange.
	st.current = conv
	m.armTimer(chatID, st)
}

// streamCompletion consumes partial snapshots and throttles progress edits:
// at most one edit in flight, at least editInterval between issued edits, and
// throttled-out snapshots simply superseded by the next one. Returns the last
// snapshot's content; the caller issues the unconditional final edit.
func (m *Manager) streamCompletion(ctx context.Context, chatID int64, conv *store.Conversation, user *store.Message, placeholderID int, correlationID, systemPrompt string) (string, error) {
	stream, err := m.generator.Complete(ctx, conv, user, correlationID, systemPrompt)
	if err != nil {
		return "", fmt.Errorf("starting completion: %w", err)
	}

	var final string
	var editDone chan struct{}
	lastEdit := time.Now()

	for stream.Next() {
		final = stream.Current()

		if editDone != nil {
			select {
			case <-editDone:
				editDone = nil
			default:
				continue // previous edit still in flight
			}
		}
		if time.Since(lastEdit) < m.editInterval {
			continue
		}

		lastEdit = time.Now()
		done := make(chan struct{})
		editDone = done
		text := final + generatingMarker
		go func() {
			defer close(done)
			if err := m.transport.EditMessageText(ctx, chatID, placeholderID, text, nil); err != nil {
				m.logger.Warn("progress edit failed", "chat_id", chatID, "message_id", placeholderID, "error", err)
			}
		}()
	}

	// The final edit must land after any in-flight progress edit.
	if editDone != nil {
		<-editDone
	}

	if err := stream.Err(); err != nil {
		return "", err
	}
	return final, nil
}
