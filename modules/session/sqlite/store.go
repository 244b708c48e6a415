package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/session"
)

// Interface guard.
var _ session.Store = (*Store)(nil)

// Store implements session.Store on top of a SQLite database.
type Store struct {
	db       *sql.DB
	defaults session.Defaults

	// OnCreate, if set, is called after a session row is created.
	OnCreate func(principal string)

	mu  sync.RWMutex
	now func() time.Time
}

// SetNow overrides the clock. Intended for tests.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, principal string) (session.Session, error) {
	row := s.db.QueryRowContext(ctx, selectSession+" WHERE principal = ?", principal)
	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, err
	}

	var out session.Session
	created, err := s.inTx(ctx, func(tx *sql.Tx) (bool, error) {
		created, err := s.insertIfMissing(ctx, tx, principal)
		if err != nil {
			return false, err
		}
		out, err = scanSession(tx.QueryRowContext(ctx, selectSession+" WHERE principal = ?", principal))
		return created, err
	})
	if err != nil {
		return session.Session{}, err
	}
	s.notifyCreated(created, principal)
	return out, nil
}

// Update implements session.Store.
func (s *Store) Update(ctx context.Context, principal string, patch session.Patch) (session.Session, error) {
	var out session.Session
	created, err := s.inTx(ctx, func(tx *sql.Tx) (bool, error) {
		created, err := s.insertIfMissing(ctx, tx, principal)
		if err != nil {
			return false, err
		}
		current, err := scanSession(tx.QueryRowContext(ctx, selectSession+" WHERE principal = ?", principal))
		if err != nil {
			return false, err
		}

		patch.Apply(&current)
		current.LastActivity = s.clock()

		if err := writeSession(ctx, tx, current); err != nil {
			return false, err
		}
		out = current
		return created, nil
	})
	if err != nil {
		return session.Session{}, err
	}
	s.notifyCreated(created, principal)
	return out, nil
}

// ClearHistory implements session.Store.
func (s *Store) ClearHistory(ctx context.Context, principal string) error {
	empty := []provider.LLMMessage{}
	_, err := s.Update(ctx, principal, session.Patch{History: &empty})
	return err
}

// List implements session.Store.
func (s *Store) List(ctx context.Context) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectSession+" ORDER BY principal")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate sessions: %w", err)
	}
	return out, nil
}

// Len implements session.Store.
func (s *Store) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: count sessions: %w", err)
	}
	return count, nil
}

// Optimize runs the SQLite planner maintenance and truncates the WAL.
func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("sqlite: optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("sqlite: wal checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) notifyCreated(created bool, principal string) {
	if created && s.OnCreate != nil {
		s.OnCreate(principal)
	}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) (bool, error)) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := fn(tx)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: commit: %w", err)
	}
	return created, nil
}

// insertIfMissing seeds a row from the defaults and reports whether it did.
func (s *Store) insertIfMissing(ctx context.Context, tx *sql.Tx, principal string) (bool, error) {
	fresh := s.defaults.New(principal, s.clock())
	roots, err := encodeJSON(fresh.AllowedRoots)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (principal, working_dir, allowed_roots, history, last_activity, created_at)
		 VALUES (?, ?, ?, '[]', ?, ?)`,
		principal, fresh.WorkingDir, roots, formatTime(fresh.LastActivity), formatTime(fresh.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: create session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: create session: %w", err)
	}
	return n > 0, nil
}

const selectSession = "SELECT principal, working_dir, allowed_roots, history, last_activity, created_at FROM sessions"

func writeSession(ctx context.Context, tx *sql.Tx, sess session.Session) error {
	roots, err := encodeJSON(sess.AllowedRoots)
	if err != nil {
		return err
	}
	history, err := encodeJSON(sess.History)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET working_dir = ?, allowed_roots = ?, history = ?, last_activity = ?
		 WHERE principal = ?`,
		sess.WorkingDir, roots, history, formatTime(sess.LastActivity), sess.Principal,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update session: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (session.Session, error) {
	var (
		sess         session.Session
		rootsJSON    string
		historyJSON  string
		lastActivity string
		createdAt    string
	)

	if err := sc.Scan(&sess.Principal, &sess.WorkingDir, &rootsJSON, &historyJSON, &lastActivity, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sess, err
		}
		return sess, fmt.Errorf("sqlite: scan session: %w", err)
	}

	if err := json.Unmarshal([]byte(rootsJSON), &sess.AllowedRoots); err != nil {
		return sess, fmt.Errorf("sqlite: unmarshal allowed_roots: %w", err)
	}
	if historyJSON != "" && historyJSON != "[]" {
		if err := json.Unmarshal([]byte(historyJSON), &sess.History); err != nil {
			return sess, fmt.Errorf("sqlite: unmarshal history: %w", err)
		}
	}

	var err error
	if sess.LastActivity, err = parseTime(lastActivity); err != nil {
		return sess, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return sess, err
	}
	return sess, nil
}

func encodeJSON[T any](v []T) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("sqlite: marshal: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
