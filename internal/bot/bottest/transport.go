// Package bottest provides test doubles for the bot package. It must not
// import bot, whose own tests use it.
package bottest

import (
	"context"
	"sync"

	"github.com/flemzord/deskclaw/internal/tool"
)

// Sent is one outbound text.
type Sent struct {
	ChatID string
	Text   string
}

// Transport records everything the bot sends. It is safe for concurrent use.
type Transport struct {
	// SendErr, if set, is returned by SendText.
	SendErr error

	mu        sync.Mutex
	texts     []Sent
	images    []tool.Attachment
	answers   []string
	cleared   []int
	typing    int
	textsSent chan Sent
}

// SendText records text.
func (t *Transport) SendText(_ context.Context, chatID, text string) error {
	t.mu.Lock()
	s := Sent{ChatID: chatID, Text: text}
	t.texts = append(t.texts, s)
	ch := t.textsSent
	t.mu.Unlock()

	if ch != nil {
		ch <- s
	}
	return t.SendErr
}

// SendImage implements bot.Transport.
func (t *Transport) SendImage(_ context.Context, _ string, img tool.Attachment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.images = append(t.images, img)
	return nil
}

// Typing implements bot.Transport.
func (t *Transport) Typing(context.Context, string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing++
	return nil
}

// AnswerCallback implements bot.Transport.
func (t *Transport) AnswerCallback(_ context.Context, _ string, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers = append(t.answers, text)
	return nil
}

// ClearButtons implements bot.Transport.
func (t *Transport) ClearButtons(_ context.Context, _ string, messageID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared = append(t.cleared, messageID)
	return nil
}

// Texts returns a snapshot of the texts sent so far.
func (t *Transport) Texts() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.texts...)
}

// Images returns a snapshot of the attachments sent so far.
func (t *Transport) Images() []tool.Attachment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tool.Attachment(nil), t.images...)
}

// Answers returns the callback answers so far.
func (t *Transport) Answers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.answers...)
}

// Cleared returns the message ids whose buttons were removed.
func (t *Transport) Cleared() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.cleared...)
}

// TextsSent returns a channel receiving every text as it is sent. It must
// be called before the first send and drained by the test.
func (t *Transport) TextsSent() <-chan Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.textsSent == nil {
		t.textsSent = make(chan Sent, 64)
	}
	return t.textsSent
}
