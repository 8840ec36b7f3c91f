package reconcile

import (
	"context"
	"log/slog"

	"github.com/socialink/realtime-core/config"
	"github.com/socialink/realtime-core/internal/domain/event"
	"github.com/socialink/realtime-core/internal/service"
	"github.com/socialink/realtime-core/internal/ws"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger, directory service.Directory) *Engine {
			return NewEngine(logger, directory, cfg.User.ID)
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, e *Engine, d *ws.Dispatcher) {
		unregister := d.OnMessage(func(ev *event.Inbound) {
			e.ApplyMessage(ev.Message)
		})

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				unregister()
				e.Close()
				return nil
			},
		})
	}),
)
