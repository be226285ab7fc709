package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/circleup/backend/internal/auth"
	"github.com/circleup/backend/internal/config"
	"github.com/circleup/backend/internal/db"
	"github.com/circleup/backend/internal/feed"
	"github.com/circleup/backend/internal/handlers"
	"github.com/circleup/backend/internal/images"
	"github.com/circleup/backend/internal/middleware"
	"github.com/circleup/backend/internal/relationships"
	"github.com/circleup/backend/internal/repositories"
	"github.com/circleup/backend/internal/storage"
)

// buildDependencies wires together the concrete implementations used by the
// HTTP handlers. The returned cleanup drains background workers and must be
// called during shutdown.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, middleware.TokenVerifier, func(context.Context) error, error) {
	users := repositories.NewPostgresUserRepository(pool)
	relationshipRepo := repositories.NewPostgresRelationshipRepository(pool)
	posts := repositories.NewPostgresPostRepository(pool)
	sessions := auth.NewManager([]byte(cfg.JWTSigningKey), cfg.AccessTokenTTL, cfg.RefreshTokenTTL, repositories.NewPostgresSessionStore(pool))

	relationshipStore := relationships.NewStore(users, relationshipRepo)

	composer := feed.NewComposer(users, relationshipStore, posts)
	feeds := feed.NewCachingComposer(composer, cfg.DiscoveryCacheTTL)

	limiter := middleware.NewIPRateLimiter(cfg.AuthRateLimit, time.Minute, cfg.AuthRateBurst, 10*time.Minute)

	deps := handlers.Dependencies{
		Users:         users,
		Sessions:      sessions,
		Relationships: relationshipStore,
		Feeds:         feeds,
		Posts:         posts,
		AuthLimiter:   limiter,
	}

	cleanup := func(context.Context) error { return nil }

	if cfg.ObjectStore.Bucket != "" {
		store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, nil, fmt.Errorf("configure object storage: %w", err)
		}

		ingestor := images.NewIngestor(store, posts, images.IngestorConfig{
			QueueSize: cfg.ImageQueueSize,
			Workers:   cfg.ImageWorkers,
		}, slog.Default())

		deps.Images = ingestor
		deps.Avatars = store
		cleanup = ingestor.Shutdown
	}

	return deps, sessions, cleanup, nil
}
