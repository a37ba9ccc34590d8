// Package chat implements the conversation session core.
//
// # Overview
//
// The Manager owns, per chat: the persisted conversation/mode collections
// (via the store package), the process-local active-session state (current
// conversation pointer, expiry timer, mode-entry scratch), and the
// completion orchestration against the generative backend.
//
// # Serialization
//
// All operations go through the Dispatcher: at most one operation mutates a
// chat's state at a time, operations for the same chat are totally ordered by
// arrival, and different chats never block each other. Because of this, the
// per-chat state needs no locking of its own.
//
// # Lifecycle
//
// A conversation is created lazily on the first user message when nothing is
// current. It stays current until a new conversation starts, another one is
// resumed, or the idle timeout expires it. Expiry rewrites the last assistant
// message with a notice and a resume button; the conversation itself is kept
// for history and can be resumed at any time.
//
// # Streaming
//
// During a streaming completion the placeholder message is edited with the
// latest partial snapshot plus a progress marker, throttled to one in-flight
// edit and a minimum interval between edits. The final edit is unconditional
// and bare, so the placeholder never ends on a stale marker.
package chat
