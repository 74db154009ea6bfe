package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/zhouzirui/agentdesk/frontend/internal/client"
	"github.com/zhouzirui/agentdesk/frontend/internal/event"
	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
	"github.com/zhouzirui/agentdesk/frontend/internal/store/token"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrSendInFlight  = errors.New("a message is already being sent")
	ErrLoginRequired = errors.New("login required")
)

// LoginPath is where views send the user when the session has no valid token.
const LoginPath = "/login"

// Sender is the part of the API client the controller needs.
type Sender interface {
	SendChat(ctx context.Context, query string, tok token.Token) (chat.Reply, error)
}

// Controller owns one chat session: its message log, its send state and the
// single in-flight request.
type Controller struct {
	sender     Sender
	tokens     token.Store
	bus        *event.Bus
	allowGuest bool

	log     *chat.Log
	pending sync.WaitGroup

	// mu guards the fields below. inflight and generation are replaced on
	// Reset so a send from an earlier session cannot touch the current one.
	mu              sync.RWMutex
	inflight        *semaphore.Weighted
	generation      uint64
	state           chat.State
	lastErr         string
	lastFailure     error
	unauthenticated bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithBus publishes session events on bus.
func WithBus(bus *event.Bus) Option {
	return func(c *Controller) {
		c.bus = bus
	}
}

// WithGuestMode sends chats without a token instead of requiring a login.
func WithGuestMode(allow bool) Option {
	return func(c *Controller) {
		c.allowGuest = allow
	}
}

// NewController creates an idle controller with an empty log.
func NewController(sender Sender, tokens token.Store, opts ...Option) *Controller {
	c := &Controller{
		sender:   sender,
		tokens:   tokens,
		log:      chat.NewLog(),
		inflight: semaphore.NewWeighted(1),
		state:    chat.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticated reports whether a token is held, or guest mode is on.
func (c *Controller) Authenticated() bool {
	if c.allowGuest {
		return true
	}
	_, ok := c.tokens.Read()
	return ok
}

// Submit appends text as a user message and sends it in the background.
// It is rejected without side effects when text is blank or a send is
// already in flight. The user message is never rolled back.
func (c *Controller) Submit(ctx context.Context, text string) error {
	query := strings.TrimSpace(text)
	if query == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if !c.inflight.TryAcquire(1) {
		c.mu.Unlock()
		log.Debug().Msg("[chat] submit rejected, send in flight")
		return ErrSendInFlight
	}
	c.pending.Add(1)

	userMsg := chat.Message{
		ID:        uuid.NewString(),
		Role:      chat.RoleUser,
		Content:   query,
		CreatedAt: time.Now().UTC(),
	}
	c.log.Append(userMsg)

	sent := inflightSend{query: query, generation: c.generation, slot: c.inflight}
	c.state = chat.StateSending
	c.lastErr = ""
	c.lastFailure = nil
	c.mu.Unlock()

	c.publish(event.KindMessage, &userMsg, "")
	c.publish(event.KindState, nil, "")

	// The request outlives the caller: there is no cancellation, a view that
	// goes away just stops listening.
	go c.dispatch(context.WithoutCancel(ctx), sent)
	return nil
}

// Wait blocks until no send is in flight.
func (c *Controller) Wait() {
	c.pending.Wait()
}

// Send submits text and waits for the outcome, returning the send failure.
func (c *Controller) Send(ctx context.Context, text string) error {
	if err := c.Submit(ctx, text); err != nil {
		return err
	}
	c.Wait()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFailure
}

type inflightSend struct {
	query      string
	generation uint64
	slot       *semaphore.Weighted
}

func (c *Controller) dispatch(ctx context.Context, sent inflightSend) {
	defer c.pending.Done()

	started := time.Now()
	tok, reply, err := c.request(ctx, sent.query)

	c.mu.Lock()
	// The slot is freed in the same step that returns the session to idle.
	sent.slot.Release(1)
	if sent.generation != c.generation {
		c.mu.Unlock()
		log.Debug().Dur("elapsed", time.Since(started)).Msg("[chat] session reset during send, result dropped")
		return
	}

	if err != nil {
		unauthorized := (errors.Is(err, ErrLoginRequired) || client.IsUnauthorized(err)) && c.dropToken(tok)
		if unauthorized {
			c.unauthenticated = true
		}
		c.lastFailure = err
		c.lastErr = displayMessage(err)
		c.state = chat.StateIdle
		c.mu.Unlock()

		log.Warn().Err(err).Bool("unauthorized", unauthorized).Dur("elapsed", time.Since(started)).Msg("[chat] send failed")
		c.publish(event.KindError, nil, "")
		if unauthorized {
			c.publish(event.KindRedirect, nil, LoginPath)
		}
		c.publish(event.KindState, nil, "")
		return
	}

	assistantMsg := chat.Message{
		ID:        uuid.NewString(),
		Role:      chat.RoleAssistant,
		Content:   reply.Answer,
		Tools:     reply.ToolsUsed,
		CreatedAt: time.Now().UTC(),
	}
	c.log.Append(assistantMsg)
	c.state = chat.StateIdle
	c.mu.Unlock()

	log.Info().Int("tools", len(reply.ToolsUsed)).Bool("success", reply.Success).Dur("elapsed", time.Since(started)).Msg("[chat] reply received")
	c.publish(event.KindMessage, &assistantMsg, "")
	c.publish(event.KindState, nil, "")
}

// dropToken forgets the token the rejected request was sent with and reports
// whether the session is now logged out. A token written since then belongs
// to a newer login and is kept.
func (c *Controller) dropToken(sent token.Token) bool {
	current, ok := c.tokens.Read()
	if !ok {
		return true
	}
	if current != sent {
		return false
	}
	c.tokens.Clear()
	return true
}

func (c *Controller) request(ctx context.Context, query string) (token.Token, chat.Reply, error) {
	tok, ok := c.tokens.Read()
	if !ok && !c.allowGuest {
		return "", chat.Reply{}, ErrLoginRequired
	}
	reply, err := c.sender.SendChat(ctx, query, tok)
	return tok, reply, err
}

// Snapshot returns a copy of the session for rendering.
func (c *Controller) Snapshot() chat.Snapshot {
	c.mu.RLock()
	snap := chat.Snapshot{
		State:           c.state,
		Error:           c.lastErr,
		Unauthenticated: c.unauthenticated,
	}
	c.mu.RUnlock()

	snap.Messages = c.log.Messages()
	return snap
}

// Reset starts a fresh session: empty log, idle, no error, authenticated
// again. The outcome of a send still in flight is discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.log.Reset()
	c.generation++
	c.inflight = semaphore.NewWeighted(1)
	c.state = chat.StateIdle
	c.lastErr = ""
	c.lastFailure = nil
	c.unauthenticated = false
	c.mu.Unlock()

	c.publish(event.KindReset, nil, "")
}

func (c *Controller) publish(kind event.Kind, msg *chat.Message, redirect string) {
	if c.bus == nil {
		return
	}
	ev := event.Event{
		Kind:     kind,
		Message:  msg,
		Redirect: redirect,
		Snapshot: c.Snapshot(),
	}
	if err := c.bus.Publish(ev); err != nil {
		log.Warn().Err(err).Str("event", string(kind)).Msg("[chat] failed to publish event")
	}
}

func displayMessage(err error) string {
	if errors.Is(err, ErrLoginRequired) {
		return "Please log in to continue."
	}
	return client.DisplayMessage(err)
}
