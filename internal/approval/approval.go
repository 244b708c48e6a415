// Package approval brokers human confirmation for privileged tool calls.
//
// A Gate correlates a prompt shown to the principal with the asynchronous
// decision that comes back through the chat transport. Every request is
// resolved exactly once: by the principal, by its timer, by the waiter's
// context, or by Close at shutdown. State lives in memory only, so a restart
// behaves like a timeout.
package approval

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/deskclaw/internal/security"
)

// DefaultTimeout bounds how long a request waits for the principal.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by Request after Close.
var ErrClosed = errors.New("approval gate closed")

// Outcome is how a request was resolved.
type Outcome string

// Outcomes of a confirmation request.
const (
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
)

// Decision is delivered to the waiter of a request.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Approved reports whether the call may proceed. Anything but an explicit
// approval counts as a denial.
func (d Decision) Approved() bool { return d.Outcome == OutcomeApproved }

// Approve is the decision sent when the principal taps approve.
func Approve() Decision { return Decision{Outcome: OutcomeApproved} }

// Reject is the decision sent when the principal taps reject.
func Reject(reason string) Decision { return Decision{Outcome: OutcomeRejected, Reason: reason} }

// Prompt is what the transport shows to the principal.
type Prompt struct {
	ID           string
	Principal    string
	ToolName     string
	Arguments    json.RawMessage
	ApproveToken string
	RejectToken  string
	ExpiresAt    time.Time
}

// Prompter delivers confirmation prompts to the principal.
type Prompter interface {
	SendApprovalPrompt(ctx context.Context, p Prompt) error
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, p Prompt) error

// SendApprovalPrompt implements Prompter.
func (f PrompterFunc) SendApprovalPrompt(ctx context.Context, p Prompt) error { return f(ctx, p) }

// Config configures a Gate.
type Config struct {
	Prompter Prompter
	Timeout  time.Duration
	Logger   *slog.Logger
	Audit    *security.AuditLogger

	// OnDecision, if set, is called once per resolved request.
	OnDecision func(toolName string, outcome Outcome)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// Gate is the process-wide confirmation broker. It is safe for concurrent use.
type Gate struct {
	prompter   Prompter
	timeout    time.Duration
	logger     *slog.Logger
	audit      *security.AuditLogger
	onDecision func(string, Outcome)
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]*Pending
	closed  bool
}

// NewGate creates a Gate.
func NewGate(cfg Config) *Gate {
	g := &Gate{
		prompter:   cfg.Prompter,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
		audit:      cfg.Audit,
		onDecision: cfg.OnDecision,
		now:        cfg.Now,
		pending:    make(map[string]*Pending),
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Timeout returns the default request timeout.
func (g *Gate) Timeout() time.Duration { return g.timeout }

// Pending is a live confirmation request.
type Pending struct {
	ID        string
	Principal string
	ToolName  string
	CreatedAt time.Time

	gate     *Gate
	timer    *time.Timer
	done     chan struct{}
	decision Decision
}

// Request registers a confirmation request, starts its timer and asks the
// Prompter to show it. A timeout <= 0 uses the gate default. If the prompt
// cannot be delivered the request is already resolved as rejected when
// Request returns.
func (g *Gate) Request(ctx context.Context, principal, toolName string, args json.RawMessage, timeout time.Duration) (*Pending, error) {
	if timeout <= 0 {
		timeout = g.timeout
	}
	created := g.now()
	p := &Pending{
		ID:        newID(principal, toolName, created),
		Principal: principal,
		ToolName:  toolName,
		CreatedAt: created,
		gate:      g,
		done:      make(chan struct{}),
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	g.pending[p.ID] = p
	p.timer = time.AfterFunc(timeout, func() {
		g.finish(p.ID, Decision{Outcome: OutcomeTimedOut, Reason: "approval timed out"})
	})
	g.mu.Unlock()

	g.logger.Info("approval: request created", "id", p.ID, "principal", principal, "tool", toolName, "timeout", timeout)
	g.audit.Log(security.AuditEvent{
		Type:          security.EventApprovalRequest,
		Principal:     principal,
		ToolName:      toolName,
		CorrelationID: p.ID,
		Detail:        string(args),
	})

	prompt := Prompt{
		ID:           p.ID,
		Principal:    principal,
		ToolName:     toolName,
		Arguments:    args,
		ApproveToken: ApproveToken(p.ID),
		RejectToken:  RejectToken(p.ID),
		ExpiresAt:    created.Add(timeout),
	}
	if g.prompter == nil {
		g.finish(p.ID, Reject("approval prompt could not be delivered"))
		return p, nil
	}
	if err := g.prompter.SendApprovalPrompt(ctx, prompt); err != nil {
		g.logger.Warn("approval: prompt delivery failed", "id", p.ID, "error", err)
		g.finish(p.ID, Reject("approval prompt could not be delivered"))
	}
	return p, nil
}

// Wait blocks until the request is resolved. If ctx ends first the request
// is resolved as cancelled. Wait may be called more than once.
func (p *Pending) Wait(ctx context.Context) Decision {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.gate.finish(p.ID, Decision{Outcome: OutcomeCancelled, Reason: "request cancelled"})
		<-p.done
	}
	return p.decision
}

// Done is closed once the request is resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Await requests confirmation and waits for the decision.
func (g *Gate) Await(ctx context.Context, principal, toolName string, args json.RawMessage, timeout time.Duration) Decision {
	p, err := g.Request(ctx, principal, toolName, args, timeout)
	if err != nil {
		return Decision{Outcome: OutcomeCancelled, Reason: err.Error()}
	}
	return p.Wait(ctx)
}

// Resolve delivers the principal's decision. It returns false when the id is
// unknown or the request was already resolved.
func (g *Gate) Resolve(id string, d Decision) bool {
	return g.finish(id, d)
}

// Len returns the number of live requests.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Close resolves every live request as cancelled and refuses new ones.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for _, id := range ids {
		g.finish(id, Decision{Outcome: OutcomeCancelled, Reason: "shutting down"})
	}
}

// finish removes the entry before delivering d, so each request is
// resolved at most once.
func (g *Gate) finish(id string, d Decision) bool {
	g.mu.Lock()
	p, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}

	p.timer.Stop()
	p.decision = d
	close(p.done)

	g.logger.Info("approval: resolved", "id", id, "tool", p.ToolName, "outcome", string(d.Outcome),
		"waited", g.now().Sub(p.CreatedAt))
	g.audit.Log(security.AuditEvent{
		Type:          security.EventApproval,
		Principal:     p.Principal,
		ToolName:      p.ToolName,
		CorrelationID: id,
		Detail:        string(d.Outcome),
	})
	if g.onDecision != nil {
		g.onDecision(p.ToolName, d.Outcome)
	}
	return true
}

// Token prefixes carried by the prompt's action buttons.
const (
	approvePrefix = "approve:"
	rejectPrefix  = "reject:"
)

// ApproveToken returns the opaque action token for approving id.
func ApproveToken(id string) string { return approvePrefix + id }

// RejectToken returns the opaque action token for rejecting id.
func RejectToken(id string) string { return rejectPrefix + id }

// ParseToken splits an action token. ok is false for anything that is not
// an approval token.
func ParseToken(token string) (id string, approve bool, ok bool) {
	switch {
	case strings.HasPrefix(token, approvePrefix):
		id, approve = strings.TrimPrefix(token, approvePrefix), true
	case strings.HasPrefix(token, rejectPrefix):
		id = strings.TrimPrefix(token, rejectPrefix)
	default:
		return "", false, false
	}
	if id == "" {
		return "", false, false
	}
	return id, approve, true
}

// maxIDToolLen keeps "approve:<id>" inside Telegram's 64-byte callback_data.
const maxIDToolLen = 12

// newID builds principal_tool_<base36 nanos>_<suffix>.
func newID(principal, toolName string, at time.Time) string {
	name := toolName
	if len(name) > maxIDToolLen {
		name = name[:maxIDToolLen]
	}
	return principal + "_" + name + "_" + strconv.FormatInt(at.UnixNano(), 36) + "_" + idSuffix(rand.Reader)
}

// idSeq keeps ids distinct when no random bytes can be read.
var idSeq atomic.Uint32

// idSuffix returns 8 hex characters read from rnd, or a process-wide
// sequence number when rnd fails.
func idSuffix(rnd io.Reader) string {
	var b [4]byte
	if _, err := io.ReadFull(rnd, b[:]); err != nil {
		binary.BigEndian.PutUint32(b[:], idSeq.Add(1))
	}
	return hex.EncodeToString(b[:])
}
