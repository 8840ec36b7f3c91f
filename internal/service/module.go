package service

import (
	"log/slog"

	"github.com/socialink/realtime-core/config"
	"github.com/socialink/realtime-core/infra/client/rest"
	"go.uber.org/fx"
)

var Module = fx.Module("service",
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, client *rest.Client) *DirectoryService {
				return NewDirectoryService(client,
					cfg.Directory.CacheSize,
					cfg.Directory.Retries,
					cfg.Directory.BackoffStep,
				)
			},
			fx.As(new(Directory)),
		),
	),

	// Cross-cutting observability wraps the resolver without touching it.
	fx.Decorate(func(orig Directory, logger *slog.Logger) Directory {
		return NewDirectoryMiddleware(orig, logger)
	}),
)
