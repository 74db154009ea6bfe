package chat_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentdesk/frontend/internal/client"
	"github.com/zhouzirui/agentdesk/frontend/internal/event"
	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
	chatservice "github.com/zhouzirui/agentdesk/frontend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/frontend/internal/store/token"
)

type fakeSender struct {
	mu      sync.Mutex
	calls   int32
	queries []string
	tokens  []token.Token
	gate    chan struct{}
	reply   chat.Reply
	err     error
}

func (f *fakeSender) SendChat(_ context.Context, query string, tok token.Token) (chat.Reply, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.tokens = append(f.tokens, tok)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	return f.reply, f.err
}

func newStore(t *testing.T, tok token.Token) token.Store {
	t.Helper()
	store := token.NewLocalStore(token.NewMemoryMedium())
	if tok != "" {
		store.Write(tok)
	}
	return store
}

func TestSubmitAppendsAssistantReply(t *testing.T) {
	sender := &fakeSender{reply: chat.Reply{Answer: "Reset via settings.", ToolsUsed: []string{"search_documents"}, Success: true}}
	ctrl := chatservice.NewController(sender, newStore(t, "tok123"))

	require.NoError(t, ctrl.Submit(context.Background(), "I forgot my login credentials. what do i do?"))
	ctrl.Wait()

	snap := ctrl.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, chat.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "I forgot my login credentials. what do i do?", snap.Messages[0].Content)
	assert.Equal(t, chat.RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, "Reset via settings.", snap.Messages[1].Content)
	assert.Equal(t, []string{"search_documents"}, snap.Messages[1].Tools)
	assert.Equal(t, chat.StateIdle, snap.State)
	assert.Empty(t, snap.Error)
	assert.Equal(t, []token.Token{"tok123"}, sender.tokens)
}

func TestSubmitAppendsUserMessageBeforeReply(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{}), reply: chat.Reply{Answer: "ok"}}
	ctrl := chatservice.NewController(sender, newStore(t, "tok"))

	require.NoError(t, ctrl.Submit(context.Background(), "hello"))

	snap := ctrl.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, chat.RoleUser, snap.Messages[0].Role)
	assert.True(t, snap.Sending())

	close(sender.gate)
	ctrl.Wait()
	assert.Len(t, ctrl.Snapshot().Messages, 2)
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	sender := &fakeSender{}
	ctrl := chatservice.NewController(sender, newStore(t, "tok"))

	for _, text := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, ctrl.Submit(context.Background(), text), chatservice.ErrEmptyMessage)
	}
	assert.Empty(t, ctrl.Snapshot().Messages)
	assert.Zero(t, atomic.LoadInt32(&sender.calls))
}

func TestSubmitRejectedWhileSending(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{}), reply: chat.Reply{Answer: "first answer"}}
	ctrl := chatservice.NewController(sender, newStore(t, "tok"))

	require.NoError(t, ctrl.Submit(context.Background(), "first"))
	err := ctrl.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, chatservice.ErrSendInFlight)
	assert.Len(t, ctrl.Snapshot().Messages, 1)

	close(sender.gate)
	ctrl.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.calls))
	assert.Equal(t, []string{"first"}, sender.queries)

	sender.gate = nil
	require.NoError(t, ctrl.Submit(context.Background(), "third"))
	ctrl.Wait()
	assert.Len(t, ctrl.Snapshot().Messages, 4)
}

func TestFailedSendKeepsUserMessage(t *testing.T) {
	sender := &fakeSender{err: &client.ChatRequestError{Status: http.StatusInternalServerError, Message: "Internal server error"}}
	store := newStore(t, "tok")
	ctrl := chatservice.NewController(sender, store)

	err := ctrl.Send(context.Background(), "hello")
	require.Error(t, err)

	snap := ctrl.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, chat.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "Internal server error", snap.Error)
	assert.Equal(t, chat.StateIdle, snap.State)
	assert.False(t, snap.Unauthenticated)

	_, ok := store.Read()
	assert.True(t, ok, "non-401 failures keep the token")
}

func TestNextSubmitClearsPreviousError(t *testing.T) {
	sender := &fakeSender{err: &client.NetworkError{Op: "chat", Err: errors.New("connection refused")}}
	ctrl := chatservice.NewController(sender, newStore(t, "tok"))

	require.Error(t, ctrl.Send(context.Background(), "one"))
	assert.NotEmpty(t, ctrl.Snapshot().Error)

	sender.err = nil
	sender.reply = chat.Reply{Answer: "two"}
	require.NoError(t, ctrl.Send(context.Background(), "two"))

	snap := ctrl.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Messages, 3)
}

func TestUnauthorizedClearsTokenAndRedirects(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, 32)
	require.NoError(t, err)

	sender := &fakeSender{err: &client.ChatRequestError{Status: http.StatusUnauthorized, Message: "Could not validate credentials"}}
	store := newStore(t, "expired")
	ctrl := chatservice.NewController(sender, store, chatservice.WithBus(bus))

	require.Error(t, ctrl.Send(ctx, "hello"))

	_, ok := store.Read()
	assert.False(t, ok)
	assert.False(t, ctrl.Authenticated())

	snap := ctrl.Snapshot()
	assert.True(t, snap.Unauthenticated)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, chat.RoleUser, snap.Messages[0].Role)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == event.KindRedirect {
				assert.Equal(t, chatservice.LoginPath, ev.Redirect)
				return
			}
		case <-deadline:
			t.Fatal("redirect event not published")
		}
	}
}

func TestMissingTokenRequiresLogin(t *testing.T) {
	sender := &fakeSender{reply: chat.Reply{Answer: "unused"}}
	ctrl := chatservice.NewController(sender, newStore(t, ""))

	assert.False(t, ctrl.Authenticated())
	err := ctrl.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, chatservice.ErrLoginRequired)
	assert.Zero(t, atomic.LoadInt32(&sender.calls))
	assert.True(t, ctrl.Snapshot().Unauthenticated)
}

func TestGuestModeSendsWithoutToken(t *testing.T) {
	sender := &fakeSender{reply: chat.Reply{Answer: "hi guest"}}
	ctrl := chatservice.NewController(sender, newStore(t, ""), chatservice.WithGuestMode(true))

	assert.True(t, ctrl.Authenticated())
	require.NoError(t, ctrl.Send(context.Background(), "hello"))
	assert.Equal(t, []token.Token{""}, sender.tokens)
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{}), reply: chat.Reply{Answer: "late"}}
	ctrl := chatservice.NewController(sender, newStore(t, "tok"))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ctrl.Submit(ctx, "hello"))
	cancel()
	close(sender.gate)
	ctrl.Wait()

	assert.Len(t, ctrl.Snapshot().Messages, 2)
}

func TestResetClearsSession(t *testing.T) {
	sender := &fakeSender{err: &client.ChatRequestError{Status: http.StatusUnauthorized, Message: "expired"}}
	ctrl := chatservice.NewController(sender, newStore(t, "tok"))
	require.Error(t, ctrl.Send(context.Background(), "hello"))

	ctrl.Reset()
	snap := ctrl.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Error)
	assert.False(t, snap.Unauthenticated)
}

func TestResetDiscardsInFlightReply(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{}), reply: chat.Reply{Answer: "alice's private answer"}}
	store := newStore(t, "alice-token")
	ctrl := chatservice.NewController(sender, store)

	require.NoError(t, ctrl.Submit(context.Background(), "alice asks"))

	store.Clear()
	ctrl.Reset()
	store.Write("bob-token")
	ctrl.Reset()

	snap := ctrl.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, chat.StateIdle, snap.State)

	close(sender.gate)
	ctrl.Wait()

	snap = ctrl.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Error)
	assert.Equal(t, chat.StateIdle, snap.State)

	sender.reply = chat.Reply{Answer: "bob's answer"}
	require.NoError(t, ctrl.Send(context.Background(), "bob asks"))
	snap = ctrl.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "bob asks", snap.Messages[0].Content)
	assert.Equal(t, "bob's answer", snap.Messages[1].Content)
}

func TestSubmitAllowedRightAfterReset(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{}), reply: chat.Reply{Answer: "ok"}}
	ctrl := chatservice.NewController(sender, newStore(t, "tok"))

	require.NoError(t, ctrl.Submit(context.Background(), "first"))
	ctrl.Reset()
	require.NoError(t, ctrl.Submit(context.Background(), "second"))

	close(sender.gate)
	ctrl.Wait()

	snap := ctrl.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "second", snap.Messages[0].Content)
	assert.Equal(t, "ok", snap.Messages[1].Content)
}

func TestStaleUnauthorizedKeepsNewLogin(t *testing.T) {
	sender := &fakeSender{
		gate: make(chan struct{}),
		err:  &client.ChatRequestError{Status: http.StatusUnauthorized, Message: "Could not validate credentials"},
	}
	store := newStore(t, "alice-token")
	ctrl := chatservice.NewController(sender, store)

	require.NoError(t, ctrl.Submit(context.Background(), "alice asks"))
	store.Write("bob-token")
	ctrl.Reset()

	close(sender.gate)
	ctrl.Wait()

	tok, ok := store.Read()
	require.True(t, ok)
	assert.Equal(t, token.Token("bob-token"), tok)
	snap := ctrl.Snapshot()
	assert.False(t, snap.Unauthenticated)
	assert.Empty(t, snap.Error)
}

func TestUnauthorizedKeepsTokenWrittenDuringSend(t *testing.T) {
	sender := &fakeSender{
		gate: make(chan struct{}),
		err:  &client.ChatRequestError{Status: http.StatusUnauthorized, Message: "Could not validate credentials"},
	}
	store := newStore(t, "old-token")
	ctrl := chatservice.NewController(sender, store)

	require.NoError(t, ctrl.Submit(context.Background(), "hello"))
	store.Write("new-token")
	close(sender.gate)
	ctrl.Wait()

	tok, ok := store.Read()
	require.True(t, ok)
	assert.Equal(t, token.Token("new-token"), tok)
	assert.False(t, ctrl.Snapshot().Unauthenticated)
}

func TestSubmitAcceptedOnceIdleIsPublished(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, 32)
	require.NoError(t, err)

	sender := &fakeSender{reply: chat.Reply{Answer: "ok"}}
	ctrl := chatservice.NewController(sender, newStore(t, "tok"), chatservice.WithBus(bus))

	require.NoError(t, ctrl.Submit(ctx, "first"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind != event.KindState || ev.Snapshot.State != chat.StateIdle {
				continue
			}
			require.NoError(t, ctrl.Submit(ctx, "second"))
			ctrl.Wait()
			assert.Len(t, ctrl.Snapshot().Messages, 4)
			return
		case <-deadline:
			t.Fatal("idle state event not published")
		}
	}
}
