package cmds

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agentdesk/frontend/internal/app"
	"github.com/zhouzirui/agentdesk/frontend/internal/handler"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web views",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.Server.Addr = addr
			}
			return opts.openApp(cmd.Context(), func(a *app.App) error {
				router := handler.NewRouter(a.Auth, a.Chat, a.Bus, a.Client, a.Config.Backend.BaseURL)
				return startServer(cmd.Context(), a.Config.Server.Addr, a.Config.Backend.BaseURL, router)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides PORT)")
	return cmd
}

func startServer(ctx context.Context, addr, backend string, router http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Str("backend", backend).Msg("agentdesk frontend listening")
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
