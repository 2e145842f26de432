package main

import (
	"context"
	"fmt"

	"tadaa_concierge/internal/config"
	"tadaa_concierge/internal/core"
	"tadaa_concierge/internal/httpserver"
	"tadaa_concierge/internal/llm"
	"tadaa_concierge/internal/logger"
	"tadaa_concierge/internal/registry"
	"tadaa_concierge/internal/storage"
)

// Application holds the wired process components
type Application struct {
	server  *httpserver.HttpServer
	closers []func() error
}

// NewApplication builds the store, locker, model client and HTTP server
func NewApplication(ctx context.Context, cfg config.Config) (*Application, error) {
	app := &Application{}

	store, locker, err := app.buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	chatModel, err := llm.NewChatModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(ctx, chatModel, cfg.Model.MaxRetries)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	processor := core.NewProcessor(client, llm.NewInstructions(reg), reg, store, locker, core.Options{
		HistoryWindow: cfg.Conversation.HistoryWindow,
		ModelTimeout:  cfg.Model.TurnBudget(),
		DefaultUserID: cfg.Conversation.DefaultUserID,
		ListLimit:     cfg.Conversation.ListLimit,
	})

	app.server = httpserver.New(cfg, processor)

	logger.Info().
		Str("provider", cfg.Model.Provider).
		Str("model", cfg.Model.Model).
		Str("store", cfg.Store.Backend).
		Int("history_window", cfg.Conversation.HistoryWindow).
		Msg("Application initialized")

	return app, nil
}

func (a *Application) buildStore(ctx context.Context, cfg config.Config) (core.Store, core.Locker, error) {
	if cfg.Store.Backend == "memory" {
		logger.Warn().Msg("Using in-memory store; data is lost on restart")
		return storage.NewMemoryStore(), storage.NewLocalLocker(), nil
	}

	store, err := storage.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating redis store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	return store, storage.NewRedisLocker(store.Client(), store.Prefix(), cfg.Conversation.LockTTL), nil
}

// Run serves HTTP until ctx is cancelled
func (a *Application) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases the store connection
func (a *Application) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logger.Warn().Err(err).Msg("Error during shutdown")
		}
	}
}
