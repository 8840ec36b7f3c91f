package presence

import (
	"log/slog"

	"github.com/socialink/realtime-core/config"
	"go.uber.org/fx"
)

var Module = fx.Module("presence",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) *Tracker {
			return NewTracker(logger, cfg.User.ID, cfg.Presence.TypingDebounce)
		},
	),
)
