// ABOUTME: Store interface and data types for per-chat persistence
// ABOUTME: Defines Conversation, Message, Mode structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message within a conversation. The ID is the
// transport message id, so assistant messages can be edited in place later
// (expiry notices, resume redisplay).
type Message struct {
	ID        int
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Conversation is a titled, ordered exchange between user and assistant.
// IDs are assigned per chat by count-at-creation-time: the first conversation
// of a chat is 0, the next 1, and so on. Conversations are never deleted,
// only superseded.
type Conversation struct {
	ID        int
	Title     string
	StartedAt time.Time
	Messages  []*Message
}

// LastMessage returns the most recent message, or nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// Mode is a reusable named system-prompt template, scoped to one chat.
type Mode struct {
	ID        string
	Title     string
	Prompt    string
	CreatedAt time.Time
}

// Store defines the interface for per-chat conversation and mode persistence.
// All collections are keyed by the chat id; entities of different chats never
// mix. Callers are expected to hold the chat's serialization slot while
// reading or writing, so implementations need no per-chat locking.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, chatID int64, conv *Conversation) error
	GetConversation(ctx context.Context, chatID int64, conversationID int) (*Conversation, error)
	ListConversations(ctx context.Context, chatID int64) ([]*Conversation, error)
	ConversationCount(ctx context.Context, chatID int64) (int, error)

	// Messages
	AppendMessage(ctx context.Context, chatID int64, conversationID int, msg *Message) error
	PopLastMessage(ctx context.Context, chatID int64, conversationID int) error

	// Modes
	PutMode(ctx context.Context, chatID int64, mode *Mode) error
	GetMode(ctx context.Context, chatID int64, modeID string) (*Mode, error)
	ListModes(ctx context.Context, chatID int64) ([]*Mode, error)
	DeleteMode(ctx context.Context, chatID int64, modeID string) error

	// Current-mode reference. SetCurrentMode with an empty id clears the
	// reference. CurrentMode resolves a dangling reference (mode deleted
	// after selection) to ErrNotFound.
	SetCurrentMode(ctx context.Context, chatID int64, modeID string) error
	CurrentMode(ctx context.Context, chatID int64) (*Mode, error)

	Close() error
}
