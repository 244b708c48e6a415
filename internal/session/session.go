// Package session holds per-principal conversation state: the working
// directory, the allowed roots and the model history. Sessions are created
// lazily on first access and never expire on their own.
package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/sandbox"
)

// ErrNotDirectory is returned by ChangeDir when the target is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Session is the state kept for one principal.
type Session struct {
	Principal    string
	WorkingDir   string
	AllowedRoots []string
	History      []provider.LLMMessage
	LastActivity time.Time
	CreatedAt    time.Time
}

// Scope returns the sandbox view of the session.
func (s Session) Scope() sandbox.Scope {
	return sandbox.Scope{WorkingDir: s.WorkingDir, AllowedRoots: slices.Clone(s.AllowedRoots)}
}

// clone returns a deep copy so callers never share slices with a store.
func (s Session) clone() Session {
	s.AllowedRoots = slices.Clone(s.AllowedRoots)
	s.History = slices.Clone(s.History)
	return s
}

// Defaults seed a session on first access.
type Defaults struct {
	WorkingDir   string
	AllowedRoots []string
}

// New returns a fresh session for principal.
func (d Defaults) New(principal string, now time.Time) Session {
	return Session{
		Principal:    principal,
		WorkingDir:   d.WorkingDir,
		AllowedRoots: slices.Clone(d.AllowedRoots),
		LastActivity: now,
		CreatedAt:    now,
	}
}

// Patch lists the fields Update replaces. Nil fields are left untouched.
type Patch struct {
	WorkingDir   *string
	AllowedRoots *[]string
	History      *[]provider.LLMMessage
}

// Apply writes the non-nil fields of p into s.
func (p Patch) Apply(s *Session) {
	if p.WorkingDir != nil {
		s.WorkingDir = *p.WorkingDir
	}
	if p.AllowedRoots != nil {
		s.AllowedRoots = slices.Clone(*p.AllowedRoots)
	}
	if p.History != nil {
		s.History = slices.Clone(*p.History)
	}
}

// Store persists sessions. Implementations must be safe for concurrent use;
// Update is read-modify-persist with last-writer-wins semantics.
type Store interface {
	// Get returns the session for principal, creating it from the store's
	// defaults when it does not exist yet.
	Get(ctx context.Context, principal string) (Session, error)

	// Update applies patch, touches LastActivity and returns the result.
	Update(ctx context.Context, principal string, patch Patch) (Session, error)

	// ClearHistory drops the conversation history.
	ClearHistory(ctx context.Context, principal string) error

	// List returns every session ordered by principal.
	List(ctx context.Context) ([]Session, error)

	// Len returns the number of sessions.
	Len(ctx context.Context) (int, error)
}

// StringPtr is a helper for building a Patch.
func StringPtr(s string) *string { return &s }
