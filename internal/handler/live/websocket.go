package live

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/event"
	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
	chatService "github.com/zhouzirui/agentdesk/frontend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Controller is the chat session behind the websocket view.
type Controller interface {
	Submit(ctx context.Context, text string) error
	Snapshot() chat.Snapshot
	Authenticated() bool
}

// Subscriber yields session events.
type Subscriber interface {
	Subscribe(ctx context.Context, buffer int) (<-chan event.Event, error)
}

// WebSocketHandler pushes session events and accepts user input over a websocket.
type WebSocketHandler struct {
	ctrl     Controller
	events   Subscriber
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(ctrl Controller, events Subscriber) *WebSocketHandler {
	return &WebSocketHandler{
		ctrl:   ctrl,
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket serves one websocket connection.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.Authenticated() {
		http.Error(w, "login required", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.events.Subscribe(ctx, 32)
	if err != nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}

	log.Debug().Msg("[websocket] new connection")

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.sendEvent(c, event.Event{Kind: event.KindState, Snapshot: h.ctrl.Snapshot(), At: time.Now().UTC()})

	go h.writeLoop(ctx, c, events)

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("[websocket] read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		h.handleMessage(ctx, c, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *conn, msg *inboundMessage) {
	switch msg.Type {
	case "submit":
		err := h.ctrl.Submit(ctx, msg.Text)
		switch {
		case errors.Is(err, chatService.ErrEmptyMessage), errors.Is(err, chatService.ErrSendInFlight):
			h.sendError(c, err.Error())
		case err != nil:
			h.sendError(c, "submit failed")
		default:
			h.send(c, "accepted", nil)
		}
	case "snapshot":
		h.sendEvent(c, event.Event{Kind: event.KindState, Snapshot: h.ctrl.Snapshot(), At: time.Now().UTC()})
	default:
		h.sendError(c, "unsupported message type: "+msg.Type)
	}
}

// writeLoop forwards session events and sends periodic pings.
func (h *WebSocketHandler) writeLoop(ctx context.Context, c *conn, events <-chan event.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.sendEvent(c, ev)
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) sendEvent(c *conn, ev event.Event) {
	h.send(c, "event", ev)
}

func (h *WebSocketHandler) sendError(c *conn, message string) {
	h.send(c, "error", map[string]string{"message": message})
}

func (h *WebSocketHandler) send(c *conn, kind string, data interface{}) {
	msg := outgoingMessage{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		log.Debug().Err(err).Str("type", kind).Msg("[websocket] write failed")
	}
}
