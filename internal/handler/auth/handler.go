package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/agentdesk/frontend/internal/client"
	authService "github.com/zhouzirui/agentdesk/frontend/internal/service/auth"
	"github.com/zhouzirui/agentdesk/frontend/internal/view/web"
)

// Service is the account service behind the login views.
type Service interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, name, email, password string) (client.Registration, error)
	Logout()
	Authenticated() bool
}

// Handler serves login, registration and logout.
type Handler struct {
	svc Service
}

// New creates an account handler.
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the account routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleEntry)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.handleRegisterPage)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
}

// handleEntry redirects according to the login state.
func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request) {
	if h.svc.Authenticated() {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.svc.Authenticated() {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}
	web.Render(w, http.StatusOK, "login", web.AuthPage{Title: "Sign in"})
}

// handleLogin opens the chat page after a successful login.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := r.PostForm.Get("email")

	if err := h.svc.Login(r.Context(), email, r.PostForm.Get("password")); err != nil {
		web.Render(w, failureStatus(err), "login", web.AuthPage{
			Title: "Sign in",
			Email: email,
			Error: authService.DisplayMessage(err),
		})
		return
	}

	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

func (h *Handler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	web.Render(w, http.StatusOK, "register", web.AuthPage{Title: "Create account"})
}

// handleRegister returns to the login page after registering.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	name := r.PostForm.Get("name")
	email := r.PostForm.Get("email")

	if _, err := h.svc.Register(r.Context(), name, email, r.PostForm.Get("password")); err != nil {
		web.Render(w, failureStatus(err), "register", web.AuthPage{
			Title: "Create account",
			Name:  name,
			Email: email,
			Error: authService.DisplayMessage(err),
		})
		return
	}

	web.Render(w, http.StatusOK, "login", web.AuthPage{
		Title:  "Sign in",
		Email:  email,
		Notice: "Account created. Please sign in.",
	})
}

// handleLogout forgets the token and returns to the login page.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.svc.Logout()
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func failureStatus(err error) int {
	var (
		netErr    *client.NetworkError
		malformed *client.MalformedResponseError
	)
	status := client.StatusCode(err)
	switch {
	case errors.As(err, &netErr), errors.As(err, &malformed), status >= 500:
		return http.StatusBadGateway
	case status >= 400:
		return status
	default:
		return http.StatusBadRequest
	}
}
