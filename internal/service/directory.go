// Package service provides display-identity resolution against the user
// directory: LRU-cached lookups with bounded retry, concurrent prefetch,
// and graceful degradation to placeholder identities so message display
// never blocks on a slow directory.
package service

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/socialink/realtime-core/internal/domain/model"
	"github.com/socialink/realtime-core/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Directory defines the contract for participant identity resolution.
type Directory interface {
	// Resolve returns the directory record for userID. On exhausted
	// retries it returns a placeholder identity and the lookup error; the
	// placeholder is always usable.
	Resolve(ctx context.Context, userID string) (model.User, error)
	// Prefetch warms the cache for a batch of user ids concurrently.
	// Individual failures are ignored.
	Prefetch(ctx context.Context, userIDs []string)
	// Seed primes the cache with identities already known from another
	// source, such as a conversation-list snapshot.
	Seed(users ...model.User)
}

// UserFetcher is the slice of the REST client the resolver needs.
type UserFetcher interface {
	User(ctx context.Context, userID string) (model.User, error)
}

// Interface guard
var _ Directory = (*DirectoryService)(nil)

type DirectoryService struct {
	fetcher UserFetcher
	cache   *lru.Cache[string, model.User]

	// retries is the number of retries after the initial attempt; the
	// sleep before retry n is n*backoffStep (linear: 1x, 2x, ...).
	retries     int
	backoffStep time.Duration
}

const (
	defaultRetries     = 2
	defaultBackoffStep = time.Second
	defaultCacheSize   = 4096
)

// NewDirectoryService creates a resolver backed by fetcher with an LRU
// identity cache of cacheSize entries.
func NewDirectoryService(fetcher UserFetcher, cacheSize, retries int, backoffStep time.Duration) *DirectoryService {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if retries < 0 {
		retries = defaultRetries
	}
	if backoffStep <= 0 {
		backoffStep = defaultBackoffStep
	}

	cache, _ := lru.New[string, model.User](cacheSize)

	return &DirectoryService{
		fetcher:     fetcher,
		cache:       cache,
		retries:     retries,
		backoffStep: backoffStep,
	}
}

func (s *DirectoryService) Resolve(ctx context.Context, userID string) (model.User, error) {
	if userID == "" {
		return model.User{}, fmt.Errorf("directory: empty user id")
	}

	if cached, ok := s.cache.Get(userID); ok {
		metrics.DirectoryLookupsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				metrics.DirectoryLookupsTotal.WithLabelValues("fallback").Inc()
				return model.Placeholder(userID), ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoffStep):
			}
		}

		user, err := s.fetcher.User(ctx, userID)
		if err == nil {
			s.cache.Add(userID, user)
			metrics.DirectoryLookupsTotal.WithLabelValues("resolved").Inc()
			return user, nil
		}
		lastErr = err
	}

	metrics.DirectoryLookupsTotal.WithLabelValues("fallback").Inc()
	return model.Placeholder(userID), fmt.Errorf("directory: lookup %s: %w", userID, lastErr)
}

// Prefetch resolves a batch concurrently, bounded to keep the directory
// backend comfortable after a large snapshot fetch.
func (s *DirectoryService) Prefetch(ctx context.Context, userIDs []string) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, id := range userIDs {
		if _, ok := s.cache.Get(id); ok {
			continue
		}
		id := id
		g.Go(func() error {
			_, _ = s.Resolve(gCtx, id)
			return nil
		})
	}

	_ = g.Wait()
}

func (s *DirectoryService) Seed(users ...model.User) {
	for _, u := range users {
		if u.ID != "" {
			s.cache.Add(u.ID, u)
		}
	}
}
