package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/client"
	"github.com/zhouzirui/agentdesk/frontend/internal/event"
	"github.com/zhouzirui/agentdesk/frontend/internal/handler/auth"
	"github.com/zhouzirui/agentdesk/frontend/internal/handler/chat"
	"github.com/zhouzirui/agentdesk/frontend/internal/handler/live"
	"github.com/zhouzirui/agentdesk/frontend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/agentdesk/frontend/internal/middleware"
	authService "github.com/zhouzirui/agentdesk/frontend/internal/service/auth"
	chatService "github.com/zhouzirui/agentdesk/frontend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/frontend/pkg/utils"
)

// HealthChecker reports the backend's health.
type HealthChecker interface {
	Health(ctx context.Context) (client.Health, error)
}

// NewRouter wires the frontend views to the session services.
func NewRouter(authSvc *authService.Service, chatCtrl *chatService.Controller, bus *event.Bus, health HealthChecker, backendURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middlewarePkg.SameOrigin)

	authHandler := auth.New(authSvc)
	chatHandler := chat.New(chatCtrl, backendURL)
	streamHandler := stream.New(bus, chatCtrl)
	liveHandler := live.NewWebSocketHandler(chatCtrl, bus)

	authHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	liveHandler.RegisterRoutes(r)
	r.Method(http.MethodGet, "/chat/events", streamHandler)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterAPIRoutes(api)

		// Backend health passthrough
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			report, err := health.Health(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("[health] backend check failed")
				utils.RespondError(w, http.StatusBadGateway, client.DisplayMessage(err))
				return
			}
			utils.RespondJSON(w, http.StatusOK, report)
		})
	})

	return r
}
