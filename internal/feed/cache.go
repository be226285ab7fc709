package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/circleup/backend/internal/models"
)

// ErrComposerUnavailable indicates the caching layer has no composer behind it.
var ErrComposerUnavailable = errors.New("feed composer unavailable")

// Source produces the two feed views for an account.
type Source interface {
	Timeline(ctx context.Context, accountID string) ([]models.Post, error)
	Discovery(ctx context.Context, accountID string) ([]models.Post, error)
}

type cacheEntry struct {
	posts   []models.Post
	expires time.Time
}

// CachingComposer wraps a Source with a per-account TTL cache for discovery
// results. Timelines pass straight through so a caller always sees its own
// writes; discovery ranking tolerates a short staleness window.
type CachingComposer struct {
	base Source
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingComposer returns a Source that caches discovery feeds for the
// provided TTL.
func NewCachingComposer(base Source, ttl time.Duration) *CachingComposer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingComposer{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cacheEntry),
	}
}

// Timeline delegates directly to the underlying composer.
func (c *CachingComposer) Timeline(ctx context.Context, accountID string) ([]models.Post, error) {
	if c == nil || c.base == nil {
		return nil, ErrComposerUnavailable
	}
	return c.base.Timeline(ctx, accountID)
}

// Discovery returns a cached result when fresh, otherwise it delegates to the
// underlying composer and stores the outcome.
func (c *CachingComposer) Discovery(ctx context.Context, accountID string) ([]models.Post, error) {
	if c == nil || c.base == nil {
		return nil, ErrComposerUnavailable
	}

	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[accountID]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.posts, nil
	}

	posts, err := c.base.Discovery(ctx, accountID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items[accountID] = cacheEntry{posts: posts, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return posts, nil
}
