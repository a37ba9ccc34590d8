// ABOUTME: Tests for the Anthropic-backed generator
// ABOUTME: Covers title derivation, message conversion and conversation creation

package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zagrichanskiy/mr-gpt-ai-bot/internal/store"
)

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{Model: "claude-sonnet-4-5"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")

	_, err = New(Config{APIKey: "sk-ant-test"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")

	c, err := New(Config{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(defaultMaxTokens), c.maxTokens)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "What is Go?", "What is Go?"},
		{"trims whitespace", "  hello  ", "hello"},
		{"first line only", "first line\nsecond line\nthird", "first line"},
		{"first line trimmed", "  first line  \nmore", "first line"},
		{
			"long message truncated",
			strings.Repeat("abcde ", 20),
			strings.TrimSpace(strings.Repeat("abcde ", 20)[:40]) + "…",
		},
		{"empty", "", "New conversation"},
		{"whitespace only", "   \n   ", "New conversation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveTitle(tt.content))
		})
	}
}

func TestDeriveTitle_CountsRunesNotBytes(t *testing.T) {
	content := strings.Repeat("ы", 60)
	title := deriveTitle(content)
	assert.Equal(t, strings.Repeat("ы", 40)+"…", title)
}

func TestNewConversation(t *testing.T) {
	c, err := New(Config{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5"}, nil)
	require.NoError(t, err)

	first := &store.Message{ID: 500, Role: store.RoleUser, Content: "What is Go?\nAnd why?", CreatedAt: time.Now()}
	conv := c.NewConversation(3, first)

	assert.Equal(t, 3, conv.ID)
	assert.Equal(t, "What is Go?", conv.Title)
	require.Len(t, conv.Messages, 1)
	assert.Same(t, first, conv.Messages[0])
	assert.False(t, conv.StartedAt.IsZero())
}

func TestConvertMessages(t *testing.T) {
	msgs := []*store.Message{
		{Role: store.RoleUser, Content: "question"},
		{Role: store.RoleAssistant, Content: "answer"},
		{Role: store.RoleSystem, Content: "system prompts travel separately"},
		{Role: store.RoleUser, Content: "follow-up"},
	}

	params := convertMessages(msgs)
	require.Len(t, params, 3, "system messages must be dropped")

	assert.Equal(t, "user", string(params[0].Role))
	assert.Equal(t, "assistant", string(params[1].Role))
	assert.Equal(t, "user", string(params[2].Role))
}

func TestBuildParams_SystemPrompt(t *testing.T) {
	c, err := New(Config{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5", MaxTokens: 512}, nil)
	require.NoError(t, err)

	conv := &store.Conversation{Messages: []*store.Message{{Role: store.RoleUser, Content: "hi"}}}

	params := c.buildParams(conv, "")
	assert.Empty(t, params.System)
	assert.Equal(t, int64(512), params.MaxTokens)

	params = c.buildParams(conv, "Talk like a pirate.")
	require.Len(t, params.System, 1)
	assert.Equal(t, "Talk like a pirate.", params.System[0].Text)
}
