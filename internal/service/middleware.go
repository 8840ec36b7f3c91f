package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/socialink/realtime-core/internal/domain/model"
)

// directoryMiddleware decorates a Directory with timing and outcome
// logging, keeping observability out of the resolution logic itself.
type directoryMiddleware struct {
	next   Directory
	logger *slog.Logger
}

// NewDirectoryMiddleware wraps next with structured logging.
func NewDirectoryMiddleware(next Directory, logger *slog.Logger) Directory {
	return &directoryMiddleware{next: next, logger: logger}
}

func (m *directoryMiddleware) Resolve(ctx context.Context, userID string) (model.User, error) {
	start := time.Now()

	user, err := m.next.Resolve(ctx, userID)
	if err != nil {
		m.logger.Warn("directory lookup degraded to placeholder",
			"user_id", userID,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		m.logger.Debug("directory lookup resolved",
			"user_id", userID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return user, err
}

func (m *directoryMiddleware) Seed(users ...model.User) {
	m.next.Seed(users...)
}

func (m *directoryMiddleware) Prefetch(ctx context.Context, userIDs []string) {
	start := time.Now()
	m.next.Prefetch(ctx, userIDs)
	m.logger.Debug("directory prefetch completed",
		"count", len(userIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
