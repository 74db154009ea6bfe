package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/event"
	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
	chatService "github.com/zhouzirui/agentdesk/frontend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/frontend/pkg/utils"
)

// Subscriber yields session events until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, buffer int) (<-chan event.Event, error)
}

// Session is the read side of the chat controller.
type Session interface {
	Snapshot() chat.Snapshot
	Authenticated() bool
}

// Handler streams chat session events to the browser via Server-Sent Events
type Handler struct {
	events    Subscriber
	session   Session
	heartbeat time.Duration
}

// New creates a new stream handler
func New(events Subscriber, session Session) *Handler {
	return &Handler{events: events, session: session, heartbeat: 15 * time.Second}
}

// ServeHTTP opens the event stream. The first event is the current snapshot.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if !h.session.Authenticated() {
		utils.RespondError(w, http.StatusUnauthorized, "login required")
		return
	}

	ctx := r.Context()
	events, err := h.events.Subscribe(ctx, 32)
	if err != nil {
		log.Error().Err(err).Msg("[sse] subscribe failed")
		utils.RespondError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	initial := event.Event{Kind: event.KindState, Snapshot: h.session.Snapshot(), At: time.Now().UTC()}
	if initial.Snapshot.Unauthenticated {
		initial.Kind, initial.Redirect = event.KindRedirect, chatService.LoginPath
	}
	if err := utils.SendSSEEvent(w, flusher, string(initial.Kind), initial); err != nil {
		return
	}

	log.Debug().Msg("[sse] stream opened")
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("[sse] stream closed by client")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Kind), ev); err != nil {
				log.Debug().Err(err).Msg("[sse] write failed")
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
