// Package llm implements the chat.Generator interface on the Anthropic API,
// with streaming (cumulative snapshots per content delta) and blocking
// completion variants.
package llm
