// ABOUTME: Pull-based snapshot stream over the Anthropic SSE stream
// ABOUTME: Accumulates deltas and exposes cumulative text per chat.Stream

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// messageStream adapts the SDK's event stream to the chat.Stream contract:
// Next advances to the next content delta, Current returns the cumulative
// text so far, and Err reports the failure after exhaustion. A request that
// ran out of time satisfies errors.Is(Err(), context.DeadlineExceeded).
type messageStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	ctx    context.Context
	cancel context.CancelFunc

	acc anthropic.Message
	err error
}

func (s *messageStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		if err := s.acc.Accumulate(event); err != nil {
			s.err = fmt.Errorf("accumulating message: %w", err)
			s.cancel()
			return false
		}

		// Only content deltas change the visible text; other events
		// (message start/stop, block boundaries) are absorbed silently.
		if _, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			return true
		}
	}

	if err := s.stream.Err(); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			s.err = fmt.Errorf("streaming completion: %w", ctxErr)
		} else {
			s.err = fmt.Errorf("streaming completion: %w", err)
		}
	}
	s.cancel()
	return false
}

func (s *messageStream) Current() string {
	var b strings.Builder
	for _, block := range s.acc.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func (s *messageStream) Err() error {
	return s.err
}
