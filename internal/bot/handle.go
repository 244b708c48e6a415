package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/flemzord/deskclaw/internal/agent"
	"github.com/flemzord/deskclaw/internal/quota"
	"github.com/flemzord/deskclaw/internal/security"
)

// Replies for failed turns. Details go to the log only.
const (
	replyFailed        = "Sorry, something went wrong while processing your request. Please try again."
	replyTooManySteps  = "Sorry, I needed too many steps to answer this. Please try a simpler request."
	replyStuck         = "Sorry, I got stuck repeating the same action. Please rephrase your request."
	replyTimedOut      = "Sorry, this request took too long. Please try again."
	replyEmpty         = "I have nothing to add."
	replyAttachmentErr = "I generated a file but could not send it."
	replyBusy          = "I'm still working on your earlier messages. Please wait for my answer before sending more."
)

// dispatch runs on a worker for every inbound update. Updates of a
// principal already being served are queued behind the running one, so a
// principal never holds more than one worker and other principals keep
// getting served while a turn waits on an approval.
func (b *Bot) dispatch(ctx context.Context, u Update) {
	drain, ok := b.backlog.push(u)
	if !ok {
		b.logger.Warn("bot: backlog full, message dropped", "principal", u.Principal)
		b.send(ctx, u.ChatID, replyBusy)
		return
	}
	if !drain {
		return
	}
	for more := true; more; u, more = b.backlog.next(u.Principal) {
		b.handle(ctx, u)
	}
}

// handle processes one update. The principal's lane is held for the whole
// update so turns and directory changes never race.
func (b *Bot) handle(ctx context.Context, u Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bot: handler panicked", "principal", u.Principal, "panic", r)
		}
	}()

	b.config.Lanes.Acquire(u.Principal)
	defer b.config.Lanes.Release(u.Principal)

	text := strings.TrimSpace(u.Text)
	if text == "" {
		return
	}

	if name, arg, ok := parseCommand(text); ok {
		b.runCommand(ctx, u, name, arg)
		return
	}
	b.converse(ctx, u, text)
}

func (b *Bot) converse(ctx context.Context, u Update, text string) {
	admission := b.config.Quota.CheckAdmission(u.Principal)
	if !admission.Allowed {
		b.logger.Info("bot: quota denied", "principal", u.Principal, "reason", admission.Reason)
		b.config.Metrics.ObserveQuotaDenial()
		b.config.Audit.Log(security.AuditEvent{
			Type:      security.EventQuotaDenied,
			Principal: u.Principal,
			ChatID:    u.ChatID,
			Detail:    admission.Reason,
		})
		b.send(ctx, u.ChatID, "⛔ "+admission.Reason)
		return
	}
	b.config.Quota.RecordRequest(u.Principal)

	if err := b.config.Transport.Typing(ctx, u.ChatID); err != nil {
		b.logger.Debug("bot: typing indicator failed", "error", err)
	}

	reply, err := b.config.Agent.Converse(ctx, u.Principal, text)
	b.config.Quota.RecordTokens(u.Principal, reply.Usage.TotalTokens)
	if err != nil {
		b.logger.Error("bot: turn failed", "principal", u.Principal, "iterations", reply.Iterations, "error", err)
		b.send(ctx, u.ChatID, failureReply(err))
		return
	}

	out := reply.Text
	if strings.TrimSpace(out) == "" {
		out = replyEmpty
	}
	if admission.Warning {
		out += "\n\n" + quota.WarningLine(b.config.Quota.Status(u.Principal))
	}
	b.send(ctx, u.ChatID, out)

	for _, att := range reply.Attachments {
		if err := b.config.Transport.SendImage(ctx, u.ChatID, att); err != nil {
			b.logger.Error("bot: sending attachment failed", "principal", u.Principal, "name", att.Name, "error", err)
			b.send(ctx, u.ChatID, replyAttachmentErr)
		}
	}
}

func (b *Bot) send(ctx context.Context, chatID, text string) {
	if err := b.config.Transport.SendText(ctx, chatID, text); err != nil {
		b.logger.Error("bot: sending reply failed", "chat_id", chatID, "error", err)
	}
}

func failureReply(err error) string {
	switch {
	case errors.Is(err, agent.ErrMaxIterationsReached):
		return replyTooManySteps
	case errors.Is(err, agent.ErrLoopDetected):
		return replyStuck
	case errors.Is(err, context.DeadlineExceeded):
		return replyTimedOut
	default:
		return replyFailed
	}
}
