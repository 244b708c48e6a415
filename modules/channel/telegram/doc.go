// Package telegram is the Telegram Bot API transport for deskclaw.
//
// It long-polls getUpdates, turns messages and inline-button presses into
// bot.Update values, and implements the outbound side the bot needs:
//
//   - text replies, split at the 4096-character message limit
//   - photos uploaded from memory (generated images, screenshots)
//   - typing indicators
//   - confirmation prompts with ✅ Approve / ❌ Reject inline buttons whose
//     callback_data carries the gate's approval tokens
//
// No external Telegram library is used: the client talks to the Bot API
// with raw net/http + encoding/json.
package telegram
