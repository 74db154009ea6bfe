package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
	chatService "github.com/zhouzirui/agentdesk/frontend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/frontend/internal/view/web"
	"github.com/zhouzirui/agentdesk/frontend/pkg/utils"
)

// Controller is the chat session behind the chat views.
type Controller interface {
	Submit(ctx context.Context, text string) error
	Snapshot() chat.Snapshot
	Authenticated() bool
}

// Handler serves the chat page and the chat API.
type Handler struct {
	ctrl    Controller
	backend string
}

// New creates a chat handler.
func New(ctrl Controller, backend string) *Handler {
	return &Handler{ctrl: ctrl, backend: backend}
}

// RegisterRoutes mounts the chat page routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat", h.handlePage)
	r.Post("/chat", h.handleFormSubmit)
}

// RegisterAPIRoutes mounts the JSON chat API.
func (h *Handler) RegisterAPIRoutes(r chi.Router) {
	r.Get("/chat", h.handleSnapshot)
	r.Post("/chat", h.handleSubmit)
}

// handlePage renders the chat page, or redirects to login without a token.
func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.Authenticated() {
		http.Redirect(w, r, chatService.LoginPath, http.StatusSeeOther)
		return
	}

	web.Render(w, http.StatusOK, "chat", web.ChatPage{
		Title:    "Chat",
		Snapshot: h.ctrl.Snapshot(),
		Backend:  h.backend,
	})
}

// handleFormSubmit handles the plain form post used without scripts.
func (h *Handler) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.Authenticated() {
		http.Redirect(w, r, chatService.LoginPath, http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	// Rejected submissions (blank input or a send in flight) leave the page as is.
	_ = h.ctrl.Submit(r.Context(), r.PostForm.Get("message"))
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

// handleSnapshot returns the current session.
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.Authenticated() {
		utils.RespondError(w, http.StatusUnauthorized, "login required")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// handleSubmit submits one user message.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.Authenticated() {
		utils.RespondError(w, http.StatusUnauthorized, "login required")
		return
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.ctrl.Submit(r.Context(), payload.Message)
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrSendInFlight):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		utils.RespondJSON(w, http.StatusAccepted, h.ctrl.Snapshot())
	}
}
