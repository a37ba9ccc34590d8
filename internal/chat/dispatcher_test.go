// ABOUTME: Tests for the per-chat operation serializer
// ABOUTME: Covers total ordering per chat, failure isolation and panic recovery

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_OrdersOperationsPerChat(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()

	const n = 20
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			// Stagger submissions so the chain is built in index order.
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			_ = d.Submit(ctx, 1, func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, order, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, order[i], "operations ran out of order")
	}
}

func TestDispatcher_ChatsRunIndependently(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()

	slowStarted := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = d.Submit(ctx, 1, func(context.Context) error {
			close(slowStarted)
			<-release
			return nil
		})
	}()
	<-slowStarted

	// An operation on a different chat must not wait for chat 1.
	done := make(chan struct{})
	go func() {
		_ = d.Submit(ctx, 2, func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("operation on independent chat was blocked")
	}
	close(release)
}

func TestDispatcher_FailureDoesNotBreakChain(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()

	wantErr := errors.New("boom")
	err := d.Submit(ctx, 1, func(context.Context) error { return wantErr })
	require.ErrorIs(t, err, wantErr)

	// The failed operation's error stays with its submitter.
	ran := false
	err = d.Submit(ctx, 1, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()

	err := d.Submit(ctx, 1, func(context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// The chain is usable afterwards.
	err = d.Submit(ctx, 1, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestDispatcher_ReleasesIdleSlots(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()

	for chatID := int64(1); chatID <= 5; chatID++ {
		require.NoError(t, d.Submit(ctx, chatID, func(context.Context) error { return nil }))
	}
	assert.Equal(t, 0, d.PendingChats())
}
