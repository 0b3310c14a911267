package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/viberbot/welcome-bot/internal/bot"
	"github.com/viberbot/welcome-bot/internal/store"
	"github.com/viberbot/welcome-bot/internal/viber"
)

// memStore is an in-memory bot.Store for exercising the full HTTP path
// without Redis.
type memStore struct {
	users      map[string]viber.User
	failUpsert bool
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]viber.User)}
}

func (m *memStore) Upsert(ctx context.Context, key string, user viber.User) error {
	if m.failUpsert {
		return &store.StorageError{Op: "upsert", Err: errors.New("backend down")}
	}
	m.users[key] = user
	return nil
}

func (m *memStore) Unsubscribe(ctx context.Context, key string) error {
	return nil
}

func newTestServer(st bot.Store) *Server {
	dispatcher := bot.NewDispatcher(st, nil, nil, 0, zerolog.Nop())
	return New(":0", dispatcher, zerolog.Nop())
}

func postEvent(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/viber/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Test: conversation_started answers the scripted welcome and stores the user
// ---------------------------------------------------------------------------

func TestEvents_ConversationStarted(t *testing.T) {
	st := newMemStore()
	srv := newTestServer(st)

	rec := postEvent(t, srv, `{"event":"conversation_started","timestamp":1457764197627,"message_token":4912661846655238145,"type":"open","context":"ctx","user":{"id":"01234567890A=","name":"John McClane"},"subscribed":false}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"type":"picture","text":"Welcome","media":"https://a-picture"}` {
		t.Errorf("unexpected body: %s", got)
	}

	stored, ok := st.users["id:01234567890A="]
	if !ok {
		t.Fatal("expected user stored before the reply was sent")
	}
	if stored.Name != "John McClane" {
		t.Errorf("stored name: expected %q, got %q", "John McClane", stored.Name)
	}
}

// ---------------------------------------------------------------------------
// Test: unrelated events answer 200 {} with no storage mutation
// ---------------------------------------------------------------------------

func TestEvents_Unrelated(t *testing.T) {
	st := newMemStore()
	srv := newTestServer(st)

	rec := postEvent(t, srv, `{"event":"unrelated"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{}` {
		t.Errorf("expected empty object body, got %s", got)
	}
	if len(st.users) != 0 {
		t.Error("expected no storage mutation for unrelated events")
	}
}

// ---------------------------------------------------------------------------
// Test: malformed recognized payloads answer 400
// ---------------------------------------------------------------------------

func TestEvents_BadPayload(t *testing.T) {
	srv := newTestServer(newMemStore())

	rec := postEvent(t, srv, `{"event":"conversation_started","user":{"name":"no id"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = postEvent(t, srv, `this is not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Test: a failed required write answers 500, not the scripted reply
// ---------------------------------------------------------------------------

func TestEvents_StorageFailure(t *testing.T) {
	st := newMemStore()
	st.failUpsert = true
	srv := newTestServer(st)

	rec := postEvent(t, srv, `{"event":"conversation_started","user":{"id":"abc=","name":"John"}}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Welcome") {
		t.Error("must not send the scripted reply when the write failed")
	}
}

// ---------------------------------------------------------------------------
// Test: only POST is accepted on the events endpoint
// ---------------------------------------------------------------------------

func TestEvents_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/viber/events", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Test: health endpoint
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	srv := newTestServer(newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("health body is not JSON: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
}
