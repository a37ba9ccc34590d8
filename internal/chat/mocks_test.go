// ABOUTME: Test doubles for the chat manager's collaborator interfaces
// ABOUTME: Recording transport, scripted generator/stream and canned speech

package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
)

// sentMessage is one recorded SendMessage call.
type sentMessage struct {
	ID   int
	Text string
	Opts *SendOptions
}

// editedMessage is one recorded EditMessageText call.
type editedMessage struct {
	MessageID int
	Text      string
	Opts      *SendOptions
}

// fakeTransport records sends and edits. Message ids count up from 1000.
type fakeTransport struct {
	mu     sync.Mutex
	nextID int
	sent   []sentMessage
	edits  []editedMessage
	voices [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextID: 1000}
}

func (f *fakeTransport) SendMessage(_ context.Context, _ int64, text string, opts *SendOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMessage{ID: f.nextID, Text: text, Opts: opts})
	return f.nextID, nil
}

func (f *fakeTransport) EditMessageText(_ context.Context, _ int64, messageID int, text string, opts *SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedMessage{MessageID: messageID, Text: text, Opts: opts})
	return nil
}

func (f *fakeTransport) SendVoice(_ context.Context, _ int64, voice []byte, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = append(f.voices, voice)
	return nil
}

func (f *fakeTransport) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, len(f.sent))
	for i, s := range f.sent {
		texts[i] = s.Text
	}
	return texts
}

func (f *fakeTransport) lastSent() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) lastEdit() editedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits[len(f.edits)-1]
}

func (f *fakeTransport) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

func (f *fakeTransport) editsSnapshot() []editedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]editedMessage(nil), f.edits...)
}

// fakeStream yields a fixed sequence of cumulative snapshots, optionally
// pausing between items and failing at the end.
type fakeStream struct {
	snapshots []string
	stepDelay time.Duration
	err       error
	pos       int
}

func (s *fakeStream) Next() bool {
	if s.pos >= len(s.snapshots) {
		return false
	}
	if s.stepDelay > 0 {
		time.Sleep(s.stepDelay)
	}
	s.pos++
	return true
}

func (s *fakeStream) Current() string { return s.snapshots[s.pos-1] }
func (s *fakeStream) Err() error      { return s.err }

// fakeGenerator returns scripted streams or messages.
type fakeGenerator struct {
	// stream and streamErr script Complete; nextStream overrides stream once.
	stream    *fakeStream
	streamErr error

	// reply and generateErr script Generate.
	reply       string
	generateErr error

	mu               sync.Mutex
	completeRequests []string // system prompts seen by Complete
}

func (g *fakeGenerator) NewConversation(existingCount int, first *store.Message) *store.Conversation {
	return &store.Conversation{
		ID:        existingCount,
		Title:     first.Content,
		StartedAt: time.Now(),
		Messages:  []*store.Message{first},
	}
}

func (g *fakeGenerator) Complete(_ context.Context, _ *store.Conversation, _ *store.Message, _, systemPrompt string) (Stream, error) {
	g.mu.Lock()
	g.completeRequests = append(g.completeRequests, systemPrompt)
	g.mu.Unlock()
	if g.streamErr != nil {
		return nil, g.streamErr
	}
	// Streams are single-use; hand out a copy so retries start fresh.
	stream := *g.stream
	return &stream, nil
}

func (g *fakeGenerator) Generate(_ context.Context, _ *store.Conversation, _ *store.Message, _, _ string) (*store.Message, error) {
	if g.generateErr != nil {
		return nil, g.generateErr
	}
	return &store.Message{Role: store.RoleAssistant, Content: g.reply, CreatedAt: time.Now()}, nil
}

func (g *fakeGenerator) systemPrompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.completeRequests...)
}

// fakeSpeech transcribes everything to a fixed text and synthesizes fixed bytes.
type fakeSpeech struct {
	transcript string
	sttErr     error
	audio      []byte
	ttsErr     error
}

func (s *fakeSpeech) SpeechToText(_ context.Context, _ []byte) (string, error) {
	return s.transcript, s.sttErr
}

func (s *fakeSpeech) TextToSpeech(_ context.Context, _ string) ([]byte, error) {
	return s.audio, s.ttsErr
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
