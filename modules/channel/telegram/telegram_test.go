package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/deskclaw/internal/approval"
	"github.com/flemzord/deskclaw/internal/bot"
	"github.com/flemzord/deskclaw/internal/tool"
)

// fakeAPI records every Bot API call by method name.
type fakeAPI struct {
	t       *testing.T
	mu      sync.Mutex
	calls   map[string][][]byte
	updates []Update
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{t: t, calls: make(map[string][][]byte)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], body)
	var pending []Update
	if method == "getUpdates" {
		pending, f.updates = f.updates, nil
	}
	f.mu.Unlock()

	switch method {
	case "getMe":
		writeJSON(f.t, w, APIResponse[User]{OK: true, Result: User{ID: 1, IsBot: true, Username: "desk_bot"}})
	case "getUpdates":
		if len(pending) == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		if pending == nil {
			pending = []Update{}
		}
		writeJSON(f.t, w, APIResponse[[]Update]{OK: true, Result: pending})
	case "sendMessage", "sendPhoto", "editMessageReplyMarkup":
		writeJSON(f.t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 9}})
	default:
		writeJSON(f.t, w, APIResponse[bool]{OK: true, Result: true})
	}
}

func (f *fakeAPI) bodies(method string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.calls[method]...)
}

func newTestChannel(srv *httptest.Server, maxLen int) *Channel {
	return New(Config{Token: "1:TOKEN", APIURL: srv.URL, PollingTimeout: 0, MaxMessageLength: maxLen}, discardLogger())
}

func TestChannelStartPublishesCommandsAndPolls(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t)
	api.updates = []Update{{
		UpdateID: 1,
		Message:  &Message{MessageID: 3, From: &User{ID: 77}, Chat: Chat{ID: 88}, Text: "hi"},
	}}
	ch := newTestChannel(srv, 0)

	got := make(chan bot.Update, 1)
	if err := ch.Start(context.Background(), func(_ context.Context, u bot.Update) error {
		got <- u
		return nil
	}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() { _ = ch.Stop(context.Background()) }()

	if ch.BotUsername() != "desk_bot" {
		t.Errorf("BotUsername() = %q", ch.BotUsername())
	}

	select {
	case u := <-got:
		if u.Principal != "77" || u.ChatID != "88" || u.Text != "hi" {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("update not delivered")
	}

	cmds := api.bodies("setMyCommands")
	if len(cmds) != 1 {
		t.Fatalf("setMyCommands calls = %d, want 1", len(cmds))
	}
	var req setMyCommandsRequest
	if err := json.Unmarshal(cmds[0], &req); err != nil {
		t.Fatal(err)
	}
	if len(req.Commands) != len(bot.Commands) {
		t.Errorf("commands = %d, want %d", len(req.Commands), len(bot.Commands))
	}

	if id, err := ch.chatFor("77"); err != nil || id != 88 {
		t.Errorf("chatFor(77) = %d, %v; want 88", id, err)
	}
}

func TestChannelStopWithoutStart(t *testing.T) {
	t.Parallel()

	_, srv := newFakeAPI(t)
	if err := newTestChannel(srv, 0).Stop(context.Background()); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestChannelSendTextSplits(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t)
	ch := newTestChannel(srv, 10)

	if err := ch.SendText(context.Background(), "42", "aaaa\nbbbb\ncccc"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	if n := len(api.bodies("sendMessage")); n != 2 {
		t.Errorf("sendMessage calls = %d, want 2", n)
	}

	if err := ch.SendText(context.Background(), "not-a-chat", "x"); err == nil {
		t.Error("expected error for invalid chat id")
	}
}

func TestChannelSendImageAndButtons(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t)
	ch := newTestChannel(srv, 0)
	ctx := context.Background()

	if err := ch.SendImage(ctx, "42", tool.Attachment{MIMEType: "image/png", Data: []byte("PNG")}); err != nil {
		t.Fatalf("SendImage() error: %v", err)
	}
	if err := ch.Typing(ctx, "42"); err != nil {
		t.Fatalf("Typing() error: %v", err)
	}
	if err := ch.AnswerCallback(ctx, "cb", "ok"); err != nil {
		t.Fatalf("AnswerCallback() error: %v", err)
	}
	if err := ch.ClearButtons(ctx, "42", 9); err != nil {
		t.Fatalf("ClearButtons() error: %v", err)
	}

	for _, m := range []string{"sendPhoto", "sendChatAction", "answerCallbackQuery", "editMessageReplyMarkup"} {
		if len(api.bodies(m)) != 1 {
			t.Errorf("%s calls = %d, want 1", m, len(api.bodies(m)))
		}
	}

	var edit EditMessageReplyMarkupRequest
	if err := json.Unmarshal(api.bodies("editMessageReplyMarkup")[0], &edit); err != nil {
		t.Fatal(err)
	}
	if edit.MessageID != 9 || edit.ReplyMarkup != nil {
		t.Errorf("edit = %+v, want keyboard removed from message 9", edit)
	}
}

func TestChannelSendApprovalPrompt(t *testing.T) {
	t.Parallel()

	api, srv := newFakeAPI(t)
	ch := newTestChannel(srv, 0)

	p := approval.Prompt{
		ID:           "55_write_file_abc_01",
		Principal:    "55",
		ToolName:     "write_file",
		Arguments:    json.RawMessage(`{"path":"/tmp/a.txt"}`),
		ApproveToken: approval.ApproveToken("55_write_file_abc_01"),
		RejectToken:  approval.RejectToken("55_write_file_abc_01"),
		ExpiresAt:    time.Now().Add(30 * time.Second),
	}
	if err := ch.SendApprovalPrompt(context.Background(), p); err != nil {
		t.Fatalf("SendApprovalPrompt() error: %v", err)
	}

	bodies := api.bodies("sendMessage")
	if len(bodies) != 1 {
		t.Fatalf("sendMessage calls = %d, want 1", len(bodies))
	}
	var req SendMessageRequest
	if err := json.Unmarshal(bodies[0], &req); err != nil {
		t.Fatal(err)
	}
	if req.ChatID != 55 {
		t.Errorf("ChatID = %d, want principal fallback 55", req.ChatID)
	}
	if !strings.Contains(req.Text, "write_file") || !strings.Contains(req.Text, "/tmp/a.txt") {
		t.Errorf("prompt text = %q", req.Text)
	}
	row := req.ReplyMarkup.InlineKeyboard[0]
	if row[0].CallbackData != p.ApproveToken || row[1].CallbackData != p.RejectToken {
		t.Errorf("buttons = %+v", row)
	}
	for _, b := range row {
		if len(b.CallbackData) > 64 {
			t.Errorf("callback data %q exceeds 64 bytes", b.CallbackData)
		}
	}
}
