package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestLoginReturnsToken(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice@example.com", body["email"])
		assert.Equal(t, "password123", body["password"])

		writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok123", "token_type": "bearer"})
	})

	tok, err := c.Login(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "tok123", string(tok))
}

func TestLoginRejected(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
	})

	_, err := c.Login(context.Background(), "alice@example.com", "wrong")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, "Incorrect email or password", authErr.Message)
	assert.Equal(t, "Incorrect email or password", DisplayMessage(err))
}

func TestLoginMissingTokenIsMalformed(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"token_type": "bearer"})
	})

	_, err := c.Login(context.Background(), "alice@example.com", "password123")
	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "access_token", malformed.Field)
}

func TestRegisterAcceptsEmptyBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob", body["name"])
		w.WriteHeader(http.StatusCreated)
	})

	_, err := c.Register(context.Background(), "", "bob@example.com", "secret")
	require.NoError(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Email already registered"})
	})

	_, err := c.Register(context.Background(), "Bob", "bob@example.com", "secret")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusBadRequest, authErr.Status)
	assert.Equal(t, "Email already registered", authErr.Message)
}

func TestSendChatWithToken(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))

		var body struct {
			Query   string `json:"query"`
			Verbose bool   `json:"verbose"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "I forgot my login credentials. what do i do?", body.Query)
		assert.True(t, body.Verbose)

		writeJSON(w, http.StatusOK, map[string]any{
			"answer": "Reset via settings.",
			"reasoning_steps": []map[string]any{
				{"tool": "search_documents", "input": map[string]string{"q": "login"}, "output": "..."},
				{"tool": "lookup_user"},
				{"tool": "search_documents"},
			},
			"success": true,
		})
	})

	reply, err := c.SendChat(context.Background(), "I forgot my login credentials. what do i do?", "tok123")
	require.NoError(t, err)
	assert.Equal(t, "Reset via settings.", reply.Answer)
	assert.Equal(t, []string{"search_documents", "lookup_user"}, reply.ToolsUsed)
	assert.True(t, reply.Success)
}

func TestSendChatWithoutTokenIsUnauthenticated(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["Authorization"]
		assert.False(t, present)
		writeJSON(w, http.StatusOK, map[string]any{"answer": "hi"})
	})

	reply, err := c.SendChat(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Answer)
	assert.Empty(t, reply.ToolsUsed)
}

func TestSendChatMissingAnswerUsesPlaceholder(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
	})

	reply, err := c.SendChat(context.Background(), "hello", "tok")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderAnswer, reply.Answer)
	assert.False(t, reply.Success)
}

func TestSendChatUnauthorized(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
	})

	_, err := c.SendChat(context.Background(), "hello", "expired")
	var chatErr *ChatRequestError
	require.True(t, errors.As(err, &chatErr))
	assert.Equal(t, "Could not validate credentials", chatErr.Message)
	assert.True(t, IsUnauthorized(err))
}

func TestSendChatErrorMessageFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field", http.StatusInternalServerError, `{"error":"Internal server error"}`, "Internal server error"},
		{"validation list", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","query"],"msg":"field required"}]}`, "field required"},
		{"plain text", http.StatusBadGateway, `upstream down`, "502 Bad Gateway"},
		{"empty body", http.StatusServiceUnavailable, ``, "503 Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.SendChat(context.Background(), "hello", "tok")
			var chatErr *ChatRequestError
			require.True(t, errors.As(err, &chatErr))
			assert.Equal(t, tt.status, chatErr.Status)
			assert.Equal(t, tt.want, chatErr.Message)
			assert.False(t, IsUnauthorized(err))
		})
	}
}

func TestSendChatNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second)
	_, err := c.SendChat(context.Background(), "hello", "tok")
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "chat", netErr.Op)
	assert.Contains(t, DisplayMessage(err), "Unable to reach the server")
}

func TestSendChatNonJSONSuccessIsMalformed(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	})

	_, err := c.SendChat(context.Background(), "hello", "tok")
	var malformed *MalformedResponseError
	assert.True(t, errors.As(err, &malformed))
}

func TestHealthAndProfile(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			writeJSON(w, http.StatusOK, map[string]any{"status": "degraded", "database_connected": true})
		case "/profile":
			if r.Header.Get("Authorization") != "Bearer tok" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"user_id": "u1", "email": "alice@example.com"})
		default:
			http.NotFound(w, r)
		}
	})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", health.Status)
	assert.True(t, health.DatabaseConnected)

	profile, err := c.Profile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", profile.Email)

	_, err = c.Profile(context.Background(), "")
	assert.True(t, IsUnauthorized(err))
}
