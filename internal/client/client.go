package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
	"github.com/zhouzirui/agentdesk/frontend/internal/store/token"
)

// PlaceholderAnswer is used when a successful chat response carries no answer.
const PlaceholderAnswer = "(no answer returned)"

// maxErrorBody caps how much of an error body is read for message extraction.
const maxErrorBody = 64 << 10

// Client calls the agent backend. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	verbose    bool
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, e.g. for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithVerbose controls the verbose flag sent with chat queries. Tools used
// are only reported by the backend when it is set.
func WithVerbose(verbose bool) Option {
	return func(c *Client) {
		c.verbose = verbose
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		verbose:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Registration is the backend's acknowledgement of a new account. Every
// field is optional.
type Registration struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

type chatRequest struct {
	Query   string `json:"query"`
	Verbose bool   `json:"verbose"`
}

type reasoningStep struct {
	Tool   string          `json:"tool"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

type chatResponse struct {
	Answer         *string         `json:"answer"`
	ReasoningSteps []reasoningStep `json:"reasoning_steps"`
	Success        *bool           `json:"success"`
}

// Health mirrors the backend health report.
type Health struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	DatabaseConnected bool   `json:"database_connected"`
	PineconeConnected bool   `json:"pinecone_connected"`
}

// Profile is the signed-in user's account summary.
type Profile struct {
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	CompanyFAQCount int    `json:"company_faq_count"`
	CreatedAt       string `json:"created_at"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (token.Token, error) {
	resp, body, err := c.do(ctx, "login", http.MethodPost, "/login", "", credentials{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	if !isSuccess(resp.StatusCode) {
		return "", &AuthError{Status: resp.StatusCode, Message: extractMessage(resp, body)}
	}

	var parsed loginResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		return "", &MalformedResponseError{Op: "login", Field: "access_token"}
	}
	if parsed.TokenType != "" && !strings.EqualFold(parsed.TokenType, "bearer") {
		log.Warn().Str("token_type", parsed.TokenType).Msg("[client] unexpected token type, using it as bearer")
	}
	return token.Token(parsed.AccessToken), nil
}

// Register creates an account. Any 2xx is success; the body is optional.
func (c *Client) Register(ctx context.Context, name, email, password string) (Registration, error) {
	if strings.TrimSpace(name) == "" {
		name = defaultName(email)
	}

	resp, body, err := c.do(ctx, "register", http.MethodPost, "/register", "", credentials{Name: name, Email: email, Password: password})
	if err != nil {
		return Registration{}, err
	}
	if !isSuccess(resp.StatusCode) {
		return Registration{}, &AuthError{Status: resp.StatusCode, Message: extractMessage(resp, body)}
	}

	var reg Registration
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &reg); err != nil {
			log.Debug().Err(err).Msg("[client] ignoring unparsable register body")
		}
	}
	return reg, nil
}

// SendChat submits query. The bearer header is attached iff tok is non-empty.
func (c *Client) SendChat(ctx context.Context, query string, tok token.Token) (chat.Reply, error) {
	resp, body, err := c.do(ctx, "chat", http.MethodPost, "/chat", tok, chatRequest{Query: query, Verbose: c.verbose})
	if err != nil {
		return chat.Reply{}, err
	}
	if !isSuccess(resp.StatusCode) {
		return chat.Reply{}, &ChatRequestError{Status: resp.StatusCode, Message: extractMessage(resp, body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return chat.Reply{}, &MalformedResponseError{Op: "chat", Field: "json body"}
	}

	reply := chat.Reply{Answer: PlaceholderAnswer, Success: true}
	if parsed.Answer != nil && *parsed.Answer != "" {
		reply.Answer = *parsed.Answer
	}
	if parsed.Success != nil {
		reply.Success = *parsed.Success
	}

	tools := make([]string, 0, len(parsed.ReasoningSteps))
	for _, step := range parsed.ReasoningSteps {
		tools = append(tools, step.Tool)
	}
	reply.ToolsUsed = chat.UniqueTools(tools)

	return reply, nil
}

// Health fetches the backend health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	resp, body, err := c.do(ctx, "health", http.MethodGet, "/health", "", nil)
	if err != nil {
		return Health{}, err
	}
	if !isSuccess(resp.StatusCode) {
		return Health{}, &ChatRequestError{Status: resp.StatusCode, Message: extractMessage(resp, body)}
	}

	var health Health
	if err := json.Unmarshal(body, &health); err != nil || health.Status == "" {
		return Health{}, &MalformedResponseError{Op: "health", Field: "status"}
	}
	return health, nil
}

// Profile fetches the account behind tok.
func (c *Client) Profile(ctx context.Context, tok token.Token) (Profile, error) {
	resp, body, err := c.do(ctx, "profile", http.MethodGet, "/profile", tok, nil)
	if err != nil {
		return Profile{}, err
	}
	if !isSuccess(resp.StatusCode) {
		return Profile{}, &ChatRequestError{Status: resp.StatusCode, Message: extractMessage(resp, body)}
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil || profile.UserID == "" {
		return Profile{}, &MalformedResponseError{Op: "profile", Field: "user_id"}
	}
	return profile, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, tok token.Token, payload any) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "marshal %s request", op)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "build %s request", op)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+string(tok))
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("op", op).Msg("[client] request failed")
		return nil, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	limit := int64(-1)
	if !isSuccess(resp.StatusCode) {
		limit = maxErrorBody
	}
	body, err := readBody(resp.Body, limit)
	if err != nil {
		return nil, nil, &NetworkError{Op: op, Err: err}
	}

	log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Bool("authenticated", tok != "").
		Dur("elapsed", time.Since(started)).
		Msg("[client] request completed")
	return resp, body, nil
}

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	return io.ReadAll(r)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// extractMessage prefers a structured detail/error field and falls back to
// the status line.
func extractMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, raw := range []json.RawMessage{payload.Detail, payload.Error, payload.Message} {
			if msg := messageFromRaw(raw); msg != "" {
				return msg
			}
		}
	}

	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}

func messageFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}

	// Validation failures arrive as a list of {loc, msg, type} objects.
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				parts = append(parts, item.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}

	var obj struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Msg
	}
	return ""
}

func defaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return email
	}
	return local
}
