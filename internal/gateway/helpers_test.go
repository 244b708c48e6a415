package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/session"
)

const testToken = "secret-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pending int

func (p pending) Len() int { return int(p) }

// seededStore returns a memory store holding sessions for the given
// principals, each with one history message.
func seededStore(t *testing.T, principals ...string) *session.MemoryStore {
	t.Helper()
	store := session.NewMemoryStore(session.Defaults{WorkingDir: "/home/u", AllowedRoots: []string{"/home/u"}})
	for _, p := range principals {
		history := []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hi"}}
		if _, err := store.Update(context.Background(), p, session.Patch{History: &history}); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}
	return store
}

// brokenStore fails every read.
type brokenStore struct{ session.Store }

var errBroken = errors.New("store offline")

func (brokenStore) Len(context.Context) (int, error)                { return 0, errBroken }
func (brokenStore) List(context.Context) ([]session.Session, error) { return nil, errBroken }
