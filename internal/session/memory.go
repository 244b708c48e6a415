package session

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/deskclaw/internal/provider"
)

// MemoryStore is a concurrency-safe, in-memory Store. The now function is
// injectable for deterministic tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults Defaults

	// OnCreate, if set, is called after a session is created.
	OnCreate func(principal string)

	now func() time.Time
}

// NewMemoryStore creates an empty store that seeds new sessions from d.
func NewMemoryStore(d Defaults) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		defaults: d,
		now:      time.Now,
	}
}

// SetNow overrides the clock. Intended for tests.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, principal string) (Session, error) {
	m.mu.RLock()
	if s, ok := m.sessions[principal]; ok {
		out := s.clone()
		m.mu.RUnlock()
		return out, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	s, created := m.getOrCreateLocked(principal)
	out := s.clone()
	m.mu.Unlock()

	if created && m.OnCreate != nil {
		m.OnCreate(principal)
	}
	return out, nil
}

func (m *MemoryStore) getOrCreateLocked(principal string) (*Session, bool) {
	if s, ok := m.sessions[principal]; ok {
		return s, false
	}
	s := m.defaults.New(principal, m.now())
	m.sessions[principal] = &s
	return &s, true
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, principal string, patch Patch) (Session, error) {
	m.mu.Lock()
	s, created := m.getOrCreateLocked(principal)
	patch.Apply(s)
	s.LastActivity = m.now()
	out := s.clone()
	m.mu.Unlock()

	if created && m.OnCreate != nil {
		m.OnCreate(principal)
	}
	return out, nil
}

// ClearHistory implements Store.
func (m *MemoryStore) ClearHistory(ctx context.Context, principal string) error {
	empty := []provider.LLMMessage{}
	_, err := m.Update(ctx, principal, Patch{History: &empty})
	return err
}

// List implements Store.
func (m *MemoryStore) List(context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	slices.SortFunc(out, func(a, b Session) int { return cmp.Compare(a.Principal, b.Principal) })
	return out, nil
}

// Len implements Store.
func (m *MemoryStore) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// Interface guard.
var _ Store = (*MemoryStore)(nil)
