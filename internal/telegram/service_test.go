package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/taskbot/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123:abc"

// botAPIEmulator stands in for api.telegram.org.
type botAPIEmulator struct {
	t *testing.T

	mu       sync.Mutex
	updates  []Update
	offsets  []string
	sent     []SendMessageRequest
	failPoll int
	sendOK   bool
}

func (e *botAPIEmulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/getUpdates") {
		// A real long poll blocks; keep the empty-poll loop from spinning.
		time.Sleep(5 * time.Millisecond)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch r.URL.Path {
	case "/bot" + testToken + "/getUpdates":
		e.offsets = append(e.offsets, r.URL.Query().Get("offset"))
		if e.failPoll > 0 {
			e.failPoll--
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`)
			return
		}
		updates := e.updates
		e.updates = nil
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": updates})
	case "/bot" + testToken + "/sendMessage":
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			e.t.Errorf("bad sendMessage body: %v", err)
		}
		e.sent = append(e.sent, req)
		if !e.sendOK {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
	case "/bot" + testToken + "/getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":123,"is_bot":true,"first_name":"Tasks","username":"MyTaskBot"}}`)
	default:
		e.t.Errorf("unexpected path %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newEmulatedService(t *testing.T, emu *botAPIEmulator, handler UpdateHandler) *Service {
	t.Helper()
	srv := httptest.NewServer(emu)
	t.Cleanup(srv.Close)

	return NewService(Config{
		Token:       testToken,
		BaseURL:     srv.URL,
		PollTimeout: time.Second,
		RetryDelay:  10 * time.Millisecond,
	}, handler, logger.Discard())
}

func textUpdate(id int, chatID int64, text string) Update {
	return Update{UpdateID: id, Message: &Message{MessageID: id, Chat: Chat{ID: chatID, Type: "private"}, Text: text}}
}

func TestSendMessage(t *testing.T) {
	emu := &botAPIEmulator{t: t, sendOK: true}
	s := newEmulatedService(t, emu, nil)

	require.NoError(t, s.SendMessage(context.Background(), 42, "🔔 Reminder: Walk dog"))

	require.Len(t, emu.sent, 1)
	assert.Equal(t, int64(42), emu.sent[0].ChatID)
	assert.Equal(t, "🔔 Reminder: Walk dog", emu.sent[0].Text)
}

func TestGetMe(t *testing.T) {
	s := newEmulatedService(t, &botAPIEmulator{t: t}, nil)

	me, err := s.GetMe(context.Background())
	require.NoError(t, err)
	assert.True(t, me.IsBot)
	assert.Equal(t, "MyTaskBot", me.Username)
}

func TestSendMessageAPIError(t *testing.T) {
	emu := &botAPIEmulator{t: t, sendOK: false}
	s := newEmulatedService(t, emu, nil)

	err := s.SendMessage(context.Background(), 42, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot was blocked")
}

func TestStartPollsAndDispatchesInOrder(t *testing.T) {
	emu := &botAPIEmulator{
		t:        t,
		failPoll: 1,
		updates: []Update{
			textUpdate(10, 1, "/start"),
			{UpdateID: 11},
			textUpdate(12, 1, "/listtasks"),
		},
	}

	var mu sync.Mutex
	var got []string
	var chatIDs []int64
	handler := UpdateHandlerFunc(func(ctx context.Context, u Update) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, u.Message.Text)
		id, _ := logger.ChatIDFromContext(ctx)
		chatIDs = append(chatIDs, id)
	})

	s := newEmulatedService(t, emu, handler)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		emu.mu.Lock()
		defer emu.mu.Unlock()
		for _, offset := range emu.offsets {
			if offset == "13" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "the next poll acknowledges handled updates")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/start", "/listtasks"}, got)
	assert.Equal(t, []int64{1, 1}, chatIDs)
	assert.Equal(t, "1", emu.offsets[0])
}

func TestStartWithoutToken(t *testing.T) {
	s := NewService(Config{}, nil, logger.Discard())
	assert.ErrorIs(t, s.Start(context.Background()), ErrTokenMissing)
}

func TestDispatchSkipsRedeliveredUpdates(t *testing.T) {
	count := 0
	s := NewService(Config{Token: testToken}, UpdateHandlerFunc(func(context.Context, Update) { count++ }), logger.Discard())

	s.Dispatch(context.Background(), textUpdate(5, 1, "a"))
	s.Dispatch(context.Background(), textUpdate(5, 1, "a"))
	s.Dispatch(context.Background(), textUpdate(4, 1, "old"))
	s.Dispatch(context.Background(), textUpdate(6, 1, "b"))

	assert.Equal(t, 2, count)
	assert.Equal(t, int64(6), s.Status()["last_update_id"])
}

func TestWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got []Update
	s := NewService(Config{Token: testToken}, UpdateHandlerFunc(func(_ context.Context, u Update) { got = append(got, u) }), logger.Discard())
	router := gin.New()
	router.POST("/telegram/webhook", NewHandler(s, "s3cret").Webhook)

	tests := []struct {
		name   string
		secret string
		body   string
		want   int
	}{
		{name: "missing secret", body: `{"update_id":1,"message":{"message_id":1,"chat":{"id":9},"text":"/help"}}`, want: http.StatusUnauthorized},
		{name: "wrong secret", secret: "nope", body: `{"update_id":1}`, want: http.StatusUnauthorized},
		{name: "malformed body", secret: "s3cret", body: `{`, want: http.StatusBadRequest},
		{name: "accepted", secret: "s3cret", body: `{"update_id":1,"message":{"message_id":1,"chat":{"id":9},"text":"/help"}}`, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.secret != "" {
				req.Header.Set(SecretTokenHeader, tt.secret)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0].Message.Chat.ID)
	assert.Equal(t, "/help", got[0].Message.Text)
}
