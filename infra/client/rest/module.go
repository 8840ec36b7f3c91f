package rest

import (
	"log/slog"

	"github.com/socialink/realtime-core/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rest_client",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) *Client {
			return New(cfg.API.BaseURL, cfg.User.ID, cfg.API.Timeout, logger)
		},
	),
)
