package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/flemzord/deskclaw/internal/bot"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

var allowedUpdates = []string{"message", "callback_query"}

// Poller implements long-polling for receiving Telegram updates.
type Poller struct {
	client  *Client
	handler func(context.Context, bot.Update) error
	onChat  func(principal string, chatID int64)
	logger  *slog.Logger
	timeout int
	pause   time.Duration
}

// NewPoller creates a new Poller. handler receives every converted update;
// onChat, when set, observes the chat each principal writes from.
func NewPoller(client *Client, handler func(context.Context, bot.Update) error, onChat func(string, int64), logger *slog.Logger, pollingTimeout int) *Poller {
	return &Poller{
		client:  client,
		handler: handler,
		onChat:  onChat,
		logger:  logger,
		timeout: pollingTimeout,
		pause:   errorPauseDuration,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	var offset int
	var consecutiveErrors int

	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.timeout,
			AllowedUpdates: allowedUpdates,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors",
					"pause", p.pause,
				)
				timer := time.NewTimer(p.pause)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0

		for i := range updates {
			offset = updates[i].UpdateID + 1
			p.handleUpdate(ctx, &updates[i])
		}
	}
}

// handleUpdate converts and delivers a single update.
func (p *Poller) handleUpdate(ctx context.Context, update *Update) {
	u, chatID, err := convertUpdate(update)
	if err != nil {
		p.logger.Debug("skipping update", "update_id", update.UpdateID, "reason", err)
		return
	}

	if p.onChat != nil {
		p.onChat(u.Principal, chatID)
	}

	if err := p.handler(ctx, u); err != nil {
		p.logger.Warn("update not accepted",
			"update_id", update.UpdateID,
			"principal", u.Principal,
			"error", err,
		)
	}
}

var (
	errNoSender      = errors.New("update has no sender")
	errUnsupported   = errors.New("unsupported update type")
	errEmptyMessage  = errors.New("message has no text")
	errBotSender     = errors.New("sender is a bot")
	errNoCallbackMsg = errors.New("callback query has no message")
)

// convertUpdate maps a Telegram update to the transport-neutral bot.Update.
func convertUpdate(update *Update) (bot.Update, int64, error) {
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.Message == nil {
			return bot.Update{}, 0, errNoCallbackMsg
		}
		chatID := cq.Message.Chat.ID
		return bot.Update{
			Principal:    strconv.FormatInt(cq.From.ID, 10),
			ChatID:       strconv.FormatInt(chatID, 10),
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
			MessageID:    cq.Message.MessageID,
		}, chatID, nil

	case update.Message != nil:
		msg := update.Message
		if msg.From == nil {
			return bot.Update{}, 0, errNoSender
		}
		if msg.From.IsBot {
			return bot.Update{}, 0, errBotSender
		}
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		if text == "" {
			return bot.Update{}, 0, errEmptyMessage
		}
		return bot.Update{
			Principal: strconv.FormatInt(msg.From.ID, 10),
			ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
			Text:      text,
			MessageID: msg.MessageID,
		}, msg.Chat.ID, nil
	}

	return bot.Update{}, 0, errUnsupported
}
