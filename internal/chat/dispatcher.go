// ABOUTME: Per-chat operation serializer - chains operations so at most one
// ABOUTME: mutates a chat's state at a time while other chats run freely

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher totally orders operations per chat id. A submitted operation
// waits for the chat's previous operation to finish (successfully or not)
// before it starts. Operations for different chats run independently.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[int64]chan struct{}
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		pending: make(map[int64]chan struct{}),
		logger:  logger.With("component", "dispatcher"),
	}
}

// Submit runs op after the chat's previously submitted operation completes.
// The previous operation's outcome never affects op: failures stay with their
// own submitter and a panic in op is recovered here so it cannot wedge the
// chain. op's own error is returned to the caller.
func (d *Dispatcher) Submit(ctx context.Context, chatID int64, op func(context.Context) error) (err error) {
	d.mu.Lock()
	prev := d.pending[chatID]
	done := make(chan struct{})
	d.pending[chatID] = done
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in chat operation", "chat_id", chatID, "panic", r)
			err = fmt.Errorf("chat operation panicked: %v", r)
		}
		close(done)

		// Clear the slot only if no later operation replaced it, so idle
		// chats hold no dangling state.
		d.mu.Lock()
		if cur, ok := d.pending[chatID]; ok && cur == done {
			delete(d.pending, chatID)
		}
		d.mu.Unlock()
	}()

	if prev != nil {
		<-prev
	}

	return op(ctx)
}

// PendingChats returns how many chats currently hold a pending slot.
func (d *Dispatcher) PendingChats() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
