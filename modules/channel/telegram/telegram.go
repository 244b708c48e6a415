package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/flemzord/deskclaw/internal/approval"
	"github.com/flemzord/deskclaw/internal/bot"
	"github.com/flemzord/deskclaw/internal/tool"
)

// Compile-time interface guards.
var (
	_ bot.Transport     = (*Channel)(nil)
	_ approval.Prompter = (*Channel)(nil)
)

// maxPromptArgs bounds the argument preview shown in a confirmation prompt.
const maxPromptArgs = 1500

// Channel is the Telegram side of the bot: it polls for updates, delivers
// replies and renders confirmation prompts as inline keyboards.
type Channel struct {
	config  Config
	client  *Client
	logger  *slog.Logger
	botUser *User

	mu    sync.RWMutex
	chats map[string]int64 // principal -> last chat id

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Channel. Call Start to begin receiving updates.
func New(cfg Config, logger *slog.Logger) *Channel {
	cfg.Defaults()
	return &Channel{
		config: cfg,
		client: NewClient(cfg.Token, cfg.APIURL),
		logger: logger,
		chats:  make(map[string]int64),
	}
}

// Start validates the token, publishes the command menu and launches the
// polling loop. submit receives every inbound update.
func (c *Channel) Start(ctx context.Context, submit func(context.Context, bot.Update) error) error {
	user, err := c.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	c.botUser = user
	c.logger.Info("telegram bot authenticated",
		"id", user.ID,
		"username", user.Username,
	)

	commands := make([]BotCommand, 0, len(bot.Commands))
	for _, cmd := range bot.Commands {
		commands = append(commands, BotCommand{Command: cmd.Name, Description: cmd.Description})
	}
	if err := c.client.SetMyCommands(ctx, commands); err != nil {
		c.logger.Warn("telegram: setMyCommands failed", "error", err)
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})

	poller := NewPoller(c.client, submit, c.rememberChat, c.logger, c.config.PollingTimeout)
	go func() {
		defer close(c.done)
		poller.Run(pollCtx)
	}()

	c.logger.Info("telegram polling started", "timeout", c.config.PollingTimeout)
	return nil
}

// Stop ends the polling loop and waits for it to return. It is safe to
// call Stop without Start and more than once.
func (c *Channel) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.logger.Info("telegram channel stopping")
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BotUsername returns the authenticated bot's username, or "" before Start.
func (c *Channel) BotUsername() string {
	if c.botUser == nil {
		return ""
	}
	return c.botUser.Username
}

func (c *Channel) rememberChat(principal string, chatID int64) {
	c.mu.Lock()
	c.chats[principal] = chatID
	c.mu.Unlock()
}

// chatFor returns the chat a principal last wrote from. In a private chat
// the chat id equals the user id, which serves as fallback.
func (c *Channel) chatFor(principal string) (int64, error) {
	c.mu.RLock()
	id, ok := c.chats[principal]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}
	return parseChatID(principal)
}

// SendText implements bot.Transport. Long texts are split at line
// boundaries to respect Telegram's message length limit.
func (c *Channel) SendText(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	for _, chunk := range splitText(text, c.config.MaxMessageLength) {
		if _, err := c.client.SendMessage(ctx, SendMessageRequest{
			ChatID:                id,
			Text:                  chunk,
			DisableWebPagePreview: true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// SendImage implements bot.Transport.
func (c *Channel) SendImage(ctx context.Context, chatID string, img tool.Attachment) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	name := img.Name
	if name == "" {
		name = "image.png"
	}
	_, err = c.client.SendPhoto(ctx, id, name, img.Data, "")
	return err
}

// Typing implements bot.Transport.
func (c *Channel) Typing(ctx context.Context, chatID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return c.client.SendChatAction(ctx, id, "typing")
}

// AnswerCallback implements bot.Transport.
func (c *Channel) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.client.AnswerCallbackQuery(ctx, AnswerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	})
}

// ClearButtons implements bot.Transport.
func (c *Channel) ClearButtons(ctx context.Context, chatID string, messageID int) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return c.client.EditMessageReplyMarkup(ctx, EditMessageReplyMarkupRequest{
		ChatID:    id,
		MessageID: messageID,
	})
}

// SendApprovalPrompt implements approval.Prompter.
func (c *Channel) SendApprovalPrompt(ctx context.Context, p approval.Prompt) error {
	chatID, err := c.chatFor(p.Principal)
	if err != nil {
		return err
	}
	_, err = c.client.SendMessage(ctx, SendMessageRequest{
		ChatID: chatID,
		Text:   formatPrompt(p),
		ReplyMarkup: &InlineKeyboardMarkup{
			InlineKeyboard: [][]InlineKeyboardButton{{
				{Text: "✅ Approve", CallbackData: p.ApproveToken},
				{Text: "❌ Reject", CallbackData: p.RejectToken},
			}},
		},
	})
	return err
}

func formatPrompt(p approval.Prompt) string {
	args := prettyArgs(p.Arguments)
	if len(args) > maxPromptArgs {
		args = args[:maxPromptArgs] + "…"
	}
	text := fmt.Sprintf("⚠️ Confirmation required\n\nTool: %s\nArguments:\n%s", p.ToolName, args)
	if !p.ExpiresAt.IsZero() {
		text += fmt.Sprintf("\n\nExpires at %s.", p.ExpiresAt.Local().Format(time.TimeOnly))
	}
	return text
}

func prettyArgs(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat ID %q: %w", s, err)
	}
	return id, nil
}
