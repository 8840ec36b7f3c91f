package session

import (
	"context"
	"log/slog"

	"github.com/socialink/realtime-core/config"
	"github.com/socialink/realtime-core/infra/client/rest"
	"github.com/socialink/realtime-core/internal/presence"
	"github.com/socialink/realtime-core/internal/reconcile"
	"github.com/socialink/realtime-core/internal/service"
	"github.com/socialink/realtime-core/internal/store"
	"github.com/socialink/realtime-core/internal/ws"
	"go.uber.org/fx"
)

var Module = fx.Module("session",
	fx.Provide(
		func(cfg *config.Config) *store.MessageStore {
			return store.NewMessageStore(cfg.Store.DuplicateWindow)
		},

		func(
			cfg *config.Config,
			logger *slog.Logger,
			client *rest.Client,
			engine *reconcile.Engine,
			msgStore *store.MessageStore,
			tracker *presence.Tracker,
			dispatcher *ws.Dispatcher,
			directory service.Directory,
		) *Session {
			return New(logger, client, engine, msgStore, tracker, dispatcher, directory, cfg.User.ID)
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, s *Session) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				s.Close()
				return nil
			},
		})
	}),
)
