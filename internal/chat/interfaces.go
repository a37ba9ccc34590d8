// ABOUTME: Collaborator interfaces consumed by the chat manager
// ABOUTME: Transport, Generator, Stream and Speech are implemented elsewhere and wired in main

package chat

import (
	"context"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
)

// Button is a single inline action offered under a message.
type Button struct {
	Label string
	Data  string
}

// SendOptions carries the optional parts of a send or edit call.
type SendOptions struct {
	// ReplyTo makes the message a reply to the given message id when non-zero.
	ReplyTo int

	// Keyboard renders inline buttons under the message, one row per slice.
	Keyboard [][]Button
}

// Transport is the messaging platform surface the manager needs: send a
// message, edit one in place, and send a voice reply. Everything else about
// the platform (parsing updates, routing commands) lives outside the core.
type Transport interface {
	// SendMessage sends text to a chat and returns the new message's id.
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int, error)

	// EditMessageText replaces the text (and keyboard) of a sent message.
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts *SendOptions) error

	// SendVoice sends an audio payload as a voice message replying to replyTo.
	SendVoice(ctx context.Context, chatID int64, voice []byte, replyTo int) error
}

// Stream is a pull-based sequence of partial assistant snapshots. Each
// Current() carries the cumulative text so far; when Next returns false the
// last yielded value is the authoritative final content, unless Err reports
// a failure. Timeout failures satisfy errors.Is(err, context.DeadlineExceeded).
type Stream interface {
	Next() bool
	Current() string
	Err() error
}

// Generator is the generative-text backend.
type Generator interface {
	// NewConversation builds a conversation for a first user message. The id
	// is the chat's running conversation count; the title is derived from the
	// first message.
	NewConversation(existingCount int, firstUserMessage *store.Message) *store.Conversation

	// Complete requests a streaming completion for the conversation, whose
	// last message must be the triggering user message.
	Complete(ctx context.Context, conv *store.Conversation, user *store.Message, correlationID, systemPrompt string) (Stream, error)

	// Generate is the non-streaming variant: one blocking call, one final message.
	Generate(ctx context.Context, conv *store.Conversation, user *store.Message, correlationID, systemPrompt string) (*store.Message, error)
}

// Speech is the optional speech backend. A nil Speech disables voice features
// with a fixed user notice.
type Speech interface {
	SpeechToText(ctx context.Context, audio []byte) (string, error)
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
}
