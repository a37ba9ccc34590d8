// Package telegram connects the bot to the Telegram Bot API.
//
// # Overview
//
// The package has three layers:
//
//   - Client: a thin HTTP client for the handful of Bot API methods the bot
//     uses. It also implements chat.Transport, so the chat manager sends and
//     edits messages without knowing about Telegram.
//   - Router: turns inbound updates into chat.Manager calls. It owns
//     command parsing, callback dispatch, the multi-step mode-entry flow,
//     group mention filtering, the allowed-chat list, and update dedupe.
//   - Poller / WebhookServer: two interchangeable update sources. The poller
//     long-polls getUpdates; the webhook server registers an HTTPS endpoint
//     with a per-process secret token.
//
// # Update Handling
//
// Each update is handled on its own goroutine. Ordering within a chat is not
// the router's concern: the chat manager serializes operations per chat, so
// concurrent updates for the same chat queue up there.
//
// # Group Chats
//
// In group and supergroup chats the bot only reacts to messages that mention
// its username or reply to one of its own messages, and it replies to the
// triggering message so threads stay readable.
package telegram
