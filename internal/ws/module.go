package ws

import (
	"context"
	"log/slog"

	"github.com/socialink/realtime-core/config"
	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/presence"
	"go.uber.org/fx"
)

var Module = fx.Module("ws",
	fx.Provide(
		func(t *presence.Tracker) PresenceSink { return t },

		func(logger *slog.Logger, sink PresenceSink) *Dispatcher {
			return NewDispatcher(logger, sink)
		},

		func(cfg *config.Config, logger *slog.Logger) *Manager {
			return NewManager(logger,
				Options{
					URL:               cfg.WS.URL,
					HandshakeTimeout:  cfg.WS.HandshakeTimeout,
					HeartbeatInterval: cfg.WS.HeartbeatInterval,
					Backoff: Backoff{
						Base:        cfg.WS.ReconnectBaseDelay,
						Max:         cfg.WS.ReconnectMaxDelay,
						MaxJitter:   cfg.WS.ReconnectMaxJitter,
						MaxAttempts: cfg.WS.MaxReconnectAttempts,
					},
				},
				Identity{
					UserID: cfg.User.ID,
					Info: event.UserInfo{
						Name:   cfg.User.Name,
						Email:  cfg.User.Email,
						Avatar: cfg.User.Avatar,
					},
				})
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, m *Manager, d *Dispatcher, t *presence.Tracker) {
		// Two-phase binding: dispatcher and manager are constructed
		// independently, then wired to each other here.
		d.BindTransport(m)
		m.BindFrameHandler(d.HandleFrame)
		t.BindEmitter(d)

		// Presence and typing state are scoped to the connection lifetime.
		m.OnStateChange(func(connected bool) {
			if !connected {
				t.Reset()
			}
		})

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// A failed first dial is not fatal; the manager schedules
				// its own retries.
				go func() { _ = m.Connect() }()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				m.Disconnect()
				return nil
			},
		})
	}),
)
