package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
)

func TestRenderChatDeduplicatesTools(t *testing.T) {
	rec := httptest.NewRecorder()
	Render(rec, http.StatusOK, "chat", ChatPage{
		Title: "Chat",
		Snapshot: chat.Snapshot{
			State: chat.StateIdle,
			Messages: []chat.Message{
				{Role: chat.RoleUser, Content: "question"},
				{Role: chat.RoleAssistant, Content: "answer", Tools: []string{"a", "b", "a", "c"}},
			},
		},
	})

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "Tools used: a, b, c")
	assert.Less(t, strings.Index(body, "question"), strings.Index(body, "answer"))
}

func TestRenderChatDisablesInputWhileSending(t *testing.T) {
	rec := httptest.NewRecorder()
	Render(rec, http.StatusOK, "chat", ChatPage{Title: "Chat", Snapshot: chat.Snapshot{State: chat.StateSending}})

	assert.Contains(t, rec.Body.String(), `placeholder="Type your question" disabled>`)

	rec = httptest.NewRecorder()
	Render(rec, http.StatusOK, "chat", ChatPage{Title: "Chat", Snapshot: chat.Snapshot{State: chat.StateIdle}})
	assert.NotContains(t, rec.Body.String(), `placeholder="Type your question" disabled>`)
}

func TestRenderEscapesContent(t *testing.T) {
	rec := httptest.NewRecorder()
	Render(rec, http.StatusOK, "chat", ChatPage{Snapshot: chat.Snapshot{Messages: []chat.Message{{Role: chat.RoleUser, Content: "<script>x</script>"}}}})

	assert.NotContains(t, rec.Body.String(), "<script>x</script>")
}

func TestRenderLoginShowsError(t *testing.T) {
	rec := httptest.NewRecorder()
	Render(rec, http.StatusUnauthorized, "login", AuthPage{Title: "Sign in", Email: "alice@example.com", Error: "Incorrect email or password"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect email or password")
	assert.Contains(t, rec.Body.String(), `value="alice@example.com"`)
}

func TestRenderUnknownPage(t *testing.T) {
	rec := httptest.NewRecorder()
	Render(rec, http.StatusOK, "missing", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
