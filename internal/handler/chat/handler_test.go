package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
	chatservice "github.com/zhouzirui/agentdesk/frontend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/frontend/internal/store/token"
)

type blockingSender struct {
	release chan struct{}
}

func (s *blockingSender) SendChat(context.Context, string, token.Token) (chat.Reply, error) {
	<-s.release
	return chat.Reply{Answer: "done"}, nil
}

func setupRouter(tok token.Token) (*chi.Mux, *chatservice.Controller, *blockingSender) {
	store := token.NewLocalStore(nil)
	if tok != "" {
		store.Write(tok)
	}
	sender := &blockingSender{release: make(chan struct{})}
	ctrl := chatservice.NewController(sender, store)
	handler := New(ctrl, "http://backend")

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	r.Route("/api", handler.RegisterAPIRoutes)
	return r, ctrl, sender
}

func TestChatPageRedirectsWithoutToken(t *testing.T) {
	r, _, _ := setupRouter("")

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.Code)
	}
	if loc := resp.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
}

func TestChatPageRendersForLoggedInUser(t *testing.T) {
	r, _, _ := setupRouter("tok")

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Ask a question to get started.") {
		t.Fatal("expected empty-log placeholder")
	}
}

func TestSubmitAPIRejectsSecondSendWhileInFlight(t *testing.T) {
	r, ctrl, sender := setupRouter("tok")

	post := func(message string) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(map[string]string{"message": message})
		req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	if resp := post("first"); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if resp := post("second"); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	close(sender.release)
	ctrl.Wait()

	if got := len(ctrl.Snapshot().Messages); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
}

func TestSubmitAPIRejectsBlankMessage(t *testing.T) {
	r, ctrl, _ := setupRouter("tok")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"   "}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if len(ctrl.Snapshot().Messages) != 0 {
		t.Fatal("blank message must not be logged")
	}
}

func TestSubmitAPIRequiresLogin(t *testing.T) {
	r, _, _ := setupRouter("")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestFormSubmitRedirectsBackToChat(t *testing.T) {
	r, ctrl, sender := setupRouter("tok")
	close(sender.release)

	form := url.Values{"message": {"hello"}}
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	ctrl.Wait()

	if resp.Code != http.StatusSeeOther || resp.Header().Get("Location") != "/chat" {
		t.Fatalf("expected 303 to /chat, got %d %q", resp.Code, resp.Header().Get("Location"))
	}
	if got := len(ctrl.Snapshot().Messages); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
}

func TestSnapshotAPI(t *testing.T) {
	r, _, _ := setupRouter("tok")

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var snap chat.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != chat.StateIdle {
		t.Fatalf("expected idle state, got %s", snap.State)
	}
}
