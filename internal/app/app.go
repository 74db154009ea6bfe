package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/client"
	"github.com/zhouzirui/agentdesk/frontend/internal/config"
	"github.com/zhouzirui/agentdesk/frontend/internal/event"
	"github.com/zhouzirui/agentdesk/frontend/internal/service/auth"
	chatservice "github.com/zhouzirui/agentdesk/frontend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/frontend/internal/store/token"
)

// App holds one frontend session: its token store, API client, chat
// controller and event bus. Views render from it.
type App struct {
	Config *config.Config
	Tokens *token.LocalStore
	Client *client.Client
	Bus    *event.Bus
	Chat   *chatservice.Controller
	Auth   *auth.Service
}

// New builds the session from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	medium, err := OpenMedium(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	tokens := token.NewLocalStore(medium,
		token.WithKey(cfg.Store.Key),
		token.WithTimeout(cfg.Store.Timeout),
	)

	apiClient := client.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, client.WithVerbose(cfg.Chat.Verbose))
	bus := event.NewBus()
	controller := chatservice.NewController(apiClient, tokens,
		chatservice.WithBus(bus),
		chatservice.WithGuestMode(cfg.Chat.AllowGuest),
	)

	return &App{
		Config: cfg,
		Tokens: tokens,
		Client: apiClient,
		Bus:    bus,
		Chat:   controller,
		Auth:   auth.NewService(apiClient, tokens, controller),
	}, nil
}

// OpenMedium opens the storage medium selected by cfg.Driver. If the medium
// cannot be opened the store runs memory-only, matching the best-effort
// storage policy.
func OpenMedium(ctx context.Context, cfg config.StoreConfig) (token.Medium, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return token.NewMemoryMedium(), nil
	case config.DriverSQLite:
		medium, err := token.OpenSQLite(cfg.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Path).Msg("[app] sqlite storage unavailable, token kept in memory only")
			return nil, nil
		}
		return medium, nil
	case config.DriverRedis:
		medium, err := token.NewRedisMedium(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RedisPrefix)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("[app] redis storage unavailable, token kept in memory only")
			return nil, nil
		}
		return medium, nil
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close waits for an in-flight send and releases the bus and storage.
func (a *App) Close() error {
	a.Chat.Wait()
	busErr := a.Bus.Close()
	storeErr := a.Tokens.Close()
	if storeErr != nil {
		return errors.Wrap(storeErr, "close token store")
	}
	return errors.Wrap(busErr, "close event bus")
}
