package bot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/flemzord/deskclaw/internal/quota"
	"github.com/flemzord/deskclaw/internal/sandbox"
	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/session"
)

// maxListing caps the entries shown by /ls.
const maxListing = 100

// Commands lists the bot commands with their help text, in menu order.
var Commands = []struct {
	Name        string
	Description string
}{
	{"start", "Start using the assistant"},
	{"help", "Show this help"},
	{"new", "Start a new conversation"},
	{"reset", "Start a new conversation"},
	{"pwd", "Show the current directory"},
	{"ls", "List a directory: /ls [path]"},
	{"cd", "Change directory: /cd <path>"},
	{"status", "Show usage and session status"},
	{"model", "Show the model in use"},
}

// parseCommand splits "/name@bot arg" into name and arg.
func parseCommand(text string) (name, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (b *Bot) runCommand(ctx context.Context, u Update, name, arg string) {
	var reply string
	switch name {
	case "start":
		reply = "👋 Welcome to deskclaw!\n\nSend me a message to get started, or use /help to see what I can do."
	case "help":
		reply = b.helpText()
	case "new", "reset":
		reply = b.resetCommand(ctx, u)
	case "pwd":
		reply = b.pwdCommand(ctx, u)
	case "ls":
		reply = b.lsCommand(ctx, u, arg)
	case "cd":
		reply = b.cdCommand(ctx, u, arg)
	case "status":
		reply = b.statusCommand(ctx, u)
	case "model":
		reply = "🤖 Model: " + b.config.Agent.ModelName()
	default:
		reply = fmt.Sprintf("Unknown command /%s. Use /help to see the available commands.", name)
	}
	b.send(ctx, u.ChatID, reply)
}

func (b *Bot) helpText() string {
	var s strings.Builder
	s.WriteString("📚 Commands\n\n")
	for _, c := range Commands {
		fmt.Fprintf(&s, "/%s - %s\n", c.Name, c.Description)
	}
	if len(b.config.Tools) > 0 {
		s.WriteString("\n🛠 Tools\n\n")
		for _, t := range b.config.Tools {
			fmt.Fprintf(&s, "• %s: %s\n", t.Name, t.Description)
		}
	}
	return strings.TrimRight(s.String(), "\n")
}

func (b *Bot) resetCommand(ctx context.Context, u Update) string {
	if err := b.config.Sessions.ClearHistory(ctx, u.Principal); err != nil {
		b.logger.Error("bot: clearing history failed", "principal", u.Principal, "error", err)
		return replyFailed
	}
	b.config.Audit.Log(security.AuditEvent{Type: security.EventSessionReset, Principal: u.Principal, ChatID: u.ChatID})
	return "🆕 Started a new conversation."
}

func (b *Bot) pwdCommand(ctx context.Context, u Update) string {
	sess, err := b.config.Sessions.Get(ctx, u.Principal)
	if err != nil {
		b.logger.Error("bot: loading session failed", "principal", u.Principal, "error", err)
		return replyFailed
	}
	return "📁 Current directory:\n" + sess.WorkingDir
}

func (b *Bot) lsCommand(ctx context.Context, u Update, arg string) string {
	sess, err := b.config.Sessions.Get(ctx, u.Principal)
	if err != nil {
		b.logger.Error("bot: loading session failed", "principal", u.Principal, "error", err)
		return replyFailed
	}

	target := arg
	if target == "" {
		target = sess.WorkingDir
	}
	canonical, err := b.config.Policy.Authorize(target, sess.Scope())
	if err != nil {
		return "❌ " + userError(err, target)
	}

	entries, err := os.ReadDir(canonical)
	if err != nil {
		return "❌ " + userError(err, target)
	}

	label := arg
	if label == "" {
		label = "(current directory)"
	}
	return fmt.Sprintf("📂 %s:\n\n%s", label, formatListing(entries))
}

func (b *Bot) cdCommand(ctx context.Context, u Update, arg string) string {
	if arg == "" {
		return "Usage: /cd <path>"
	}
	dir, err := session.ChangeDir(ctx, b.config.Sessions, b.config.Policy, u.Principal, arg)
	if err != nil {
		return "❌ " + userError(err, arg)
	}
	return "📁 Changed directory to:\n" + dir
}

func (b *Bot) statusCommand(ctx context.Context, u Update) string {
	s := quota.FormatStatus(b.config.Quota.Status(u.Principal))

	sess, err := b.config.Sessions.Get(ctx, u.Principal)
	if err != nil {
		b.logger.Error("bot: loading session failed", "principal", u.Principal, "error", err)
		return s
	}
	return fmt.Sprintf("%s\n\n💬 Session\nDirectory: %s\nMessages in history: %d\nModel: %s",
		s, sess.WorkingDir, len(sess.History), b.config.Agent.ModelName())
}

// formatListing shows directories first, then files, each sorted by name.
func formatListing(entries []os.DirEntry) string {
	if len(entries) == 0 {
		return "(empty directory)"
	}

	var dirs, files []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, "📁 "+e.Name()+"/")
		} else {
			files = append(files, "📄 "+e.Name())
		}
	}
	slices.Sort(dirs)
	slices.Sort(files)

	lines := append(dirs, files...)
	if len(lines) > maxListing {
		extra := len(lines) - maxListing
		lines = append(lines[:maxListing], fmt.Sprintf("… and %d more", extra))
	}
	return strings.Join(lines, "\n")
}

// userError turns a filesystem or sandbox error into a message that does
// not leak more than the principal already knows.
func userError(err error, target string) string {
	var denied *sandbox.DeniedError
	switch {
	case errors.As(err, &denied):
		return "Access denied: " + denied.Reason
	case errors.Is(err, session.ErrNotDirectory):
		return "Not a directory: " + target
	case errors.Is(err, fs.ErrNotExist):
		return "Directory not found: " + target
	case errors.Is(err, fs.ErrPermission):
		return "Permission denied: " + target
	default:
		return "Could not read " + target
	}
}
