package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/socialink/realtime-core/config"
	"github.com/socialink/realtime-core/infra/client/rest"
	"github.com/socialink/realtime-core/internal/presence"
	"github.com/socialink/realtime-core/internal/reconcile"
	"github.com/socialink/realtime-core/internal/service"
	"github.com/socialink/realtime-core/internal/session"
	"github.com/socialink/realtime-core/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger}
		}),
		rest.Module,
		service.Module,
		presence.Module,
		ws.Module,
		reconcile.Module,
		session.Module,
	}
	opts = append(opts, extra...)
	return fx.New(opts...)
}

// ProvideLogger builds the process logger from the configured level.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
