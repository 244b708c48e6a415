package bot

import (
	"context"

	"github.com/flemzord/deskclaw/internal/tool"
)

// Update is one inbound event delivered by the transport.
type Update struct {
	// Principal is the sender's stable id (the Telegram user id).
	Principal string

	// ChatID is where replies go.
	ChatID string

	// Text is the message text. Empty for callbacks.
	Text string

	// CallbackID and CallbackData are set when the principal tapped an
	// inline button. MessageID is the message carrying the buttons.
	CallbackID   string
	CallbackData string
	MessageID    int
}

// IsCallback reports whether u is a button press.
func (u Update) IsCallback() bool { return u.CallbackID != "" }

// Transport is the outbound side of the chat platform.
type Transport interface {
	// SendText delivers text, splitting it as the platform requires.
	SendText(ctx context.Context, chatID, text string) error

	// SendImage delivers a binary attachment as a photo.
	SendImage(ctx context.Context, chatID string, img tool.Attachment) error

	// Typing shows a "typing" indicator.
	Typing(ctx context.Context, chatID string) error

	// AnswerCallback acknowledges a button press with a short toast.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// ClearButtons removes the inline keyboard of a message.
	ClearButtons(ctx context.Context, chatID string, messageID int) error
}
