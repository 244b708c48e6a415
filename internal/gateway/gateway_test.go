package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/telemetry"
)

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	t.Parallel()

	g := New(Config{}, Deps{
		Sessions:  seededStore(t, "1", "2"),
		Approvals: pending(3),
		Logger:    discardLogger(),
	})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.startedAt = start
	g.now = func() time.Time { return start.Add(90 * time.Second) }

	rr := do(t, g.Handler(), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := HealthResponse{Status: "ok", Sessions: 2, PendingApprovals: 3, Uptime: 90}
	if resp != want {
		t.Errorf("health = %+v, want %+v", resp, want)
	}
}

func TestHealth_Degraded(t *testing.T) {
	t.Parallel()

	g := New(Config{}, Deps{Sessions: brokenStore{}, Logger: discardLogger()})
	rr := do(t, g.Handler(), http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m := telemetry.NewMetrics()
	m.ObserveQuotaDenial()
	g := New(Config{}, Deps{Metrics: m, Logger: discardLogger()})

	rr := do(t, g.Handler(), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "deskclaw_quota_denials_total 1") {
		t.Errorf("metrics output missing quota denial counter:\n%s", rr.Body.String())
	}
}

func TestAPI_Auth(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var events []security.AuditEvent
	audit := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: func(e security.AuditEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}})

	g := New(Config{BearerToken: testToken}, Deps{Sessions: seededStore(t), Audit: audit, Logger: discardLogger()})
	h := g.Handler()

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		if rr := do(t, h, http.MethodGet, "/api/sessions", tt.token); rr.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rr.Code, tt.want)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("audit events = %d, want 2", len(events))
	}
	for _, e := range events {
		if e.Type != security.EventAuthFailure {
			t.Errorf("event type = %q, want auth_failure", e.Type)
		}
	}
}

func TestAPI_NotMountedWithoutToken(t *testing.T) {
	t.Parallel()

	g := New(Config{}, Deps{Sessions: seededStore(t, "1"), Logger: discardLogger()})
	if rr := do(t, g.Handler(), http.MethodGet, "/api/sessions", ""); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestAPI_ListSessions(t *testing.T) {
	t.Parallel()

	g := New(Config{BearerToken: testToken}, Deps{Sessions: seededStore(t, "200", "100"), Logger: discardLogger()})
	rr := do(t, g.Handler(), http.MethodGet, "/api/sessions", testToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var sessions []sessionJSON
	if err := json.NewDecoder(rr.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].Principal != "100" || sessions[0].WorkingDir != "/home/u" || sessions[0].HistoryLen != 1 {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
}

func TestAPI_ListSessions_StoreError(t *testing.T) {
	t.Parallel()

	g := New(Config{BearerToken: testToken}, Deps{Sessions: brokenStore{}, Logger: discardLogger()})
	if rr := do(t, g.Handler(), http.MethodGet, "/api/sessions", testToken); rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestAPI_ClearHistory(t *testing.T) {
	t.Parallel()

	store := seededStore(t, "100")
	var events []security.AuditEvent
	audit := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: func(e security.AuditEvent) {
		events = append(events, e)
	}})
	g := New(Config{BearerToken: testToken}, Deps{Sessions: store, Audit: audit, Logger: discardLogger()})
	h := g.Handler()

	if rr := do(t, h, http.MethodDelete, "/api/sessions/100/history", testToken); rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	sess, err := store.Get(context.Background(), "100")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.History) != 0 {
		t.Errorf("history = %d messages, want 0", len(sess.History))
	}
	if len(events) != 1 || events[0].Type != security.EventSessionReset || events[0].Principal != "100" {
		t.Errorf("audit events = %+v", events)
	}

	if rr := do(t, h, http.MethodDelete, "/api/sessions/999/history", testToken); rr.Code != http.StatusNotFound {
		t.Errorf("unknown principal status = %d, want 404", rr.Code)
	}
	if n, _ := store.Len(context.Background()); n != 1 {
		t.Errorf("store len = %d, want 1 (no session created)", n)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	g := New(Config{Bind: "127.0.0.1:0"}, Deps{Logger: discardLogger()})
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestStart_ServesHealth(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	g := New(Config{Bind: addr}, Deps{Logger: discardLogger()})
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() { _ = g.Stop(context.Background()) }()

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("GET /health = %d %s", resp.StatusCode, body)
	}
}

func TestStart_RequiresBind(t *testing.T) {
	t.Parallel()

	if err := New(Config{}, Deps{}).Start(context.Background()); err == nil {
		t.Error("expected error for empty bind")
	}
}
