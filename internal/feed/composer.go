package feed

import (
	"context"
	"fmt"
	"sort"

	"github.com/circleup/backend/internal/logging"
	"github.com/circleup/backend/internal/models"
	"github.com/circleup/backend/internal/relationships"
	"github.com/circleup/backend/internal/repositories"
)

const (
	// maxFriendFanOut bounds how many friends the discovery feed queries
	// against; accounts beyond the first hundred edges are ignored to keep
	// retrieval cost bounded.
	maxFriendFanOut = 100
	// discoveryLimit caps the size of a discovery result set.
	discoveryLimit = 20
)

// AccountDirectory reports whether the requesting account exists.
type AccountDirectory interface {
	Exists(ctx context.Context, accountID string) (bool, error)
}

// FriendSource lists an account's friend ids in edge-insertion order.
type FriendSource interface {
	Friends(ctx context.Context, accountID string) ([]string, error)
}

// PostSource retrieves candidate posts for feed composition. Both methods
// return posts in reverse chronological retrieval order.
type PostSource interface {
	ListByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)
	ListLikedOrByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)
}

// Composer builds read-only, ranked views over posts. It never mutates the
// friend graph or the post records it reads.
type Composer struct {
	accounts AccountDirectory
	friends  FriendSource
	posts    PostSource
}

// NewComposer constructs a Composer over the provided collaborators.
func NewComposer(accounts AccountDirectory, friends FriendSource, posts PostSource) *Composer {
	return &Composer{accounts: accounts, friends: friends, posts: posts}
}

// Timeline returns every post authored by the account or one of its friends,
// newest first. No pagination limit is applied.
func (c *Composer) Timeline(ctx context.Context, accountID string) ([]models.Post, error) {
	ctx, span := logging.StartSpan(ctx, "feed.timeline")
	defer span.End()

	accountID = relationships.NormalizeID(accountID)
	if err := c.ensureExists(ctx, accountID); err != nil {
		return nil, err
	}

	friendIDs, err := c.friends.Friends(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve friend set: %w", err)
	}

	authors := make([]string, 0, len(friendIDs)+1)
	authors = append(authors, accountID)
	authors = append(authors, friendIDs...)

	posts, err := c.posts.ListByAuthors(ctx, authors)
	if err != nil {
		return nil, fmt.Errorf("list timeline posts: %w", err)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	return posts, nil
}

// Discovery returns a ranked blend of friend-authored posts and globally
// liked posts. The friend set is truncated to its first maxFriendFanOut
// members before any membership test; results are ordered by like count
// descending with stable ties and capped at discoveryLimit entries.
func (c *Composer) Discovery(ctx context.Context, accountID string) ([]models.Post, error) {
	ctx, span := logging.StartSpan(ctx, "feed.discovery")
	defer span.End()

	accountID = relationships.NormalizeID(accountID)
	if err := c.ensureExists(ctx, accountID); err != nil {
		return nil, err
	}

	friendIDs, err := c.friends.Friends(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve friend set: %w", err)
	}
	if len(friendIDs) > maxFriendFanOut {
		friendIDs = friendIDs[:maxFriendFanOut]
	}

	candidates, err := c.posts.ListLikedOrByAuthors(ctx, friendIDs)
	if err != nil {
		return nil, fmt.Errorf("list discovery candidates: %w", err)
	}

	friendSet := make(map[string]struct{}, len(friendIDs))
	for _, id := range friendIDs {
		friendSet[id] = struct{}{}
	}

	// A post qualifies when a truncated-set friend authored it, or when it
	// carries at least one like regardless of author. Popular content is
	// allowed to cross the friend boundary.
	posts := make([]models.Post, 0, len(candidates))
	for _, post := range candidates {
		if _, friend := friendSet[post.AuthorID]; friend || len(post.Likes) > 0 {
			posts = append(posts, post)
		}
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return len(posts[i].Likes) > len(posts[j].Likes)
	})

	if len(posts) > discoveryLimit {
		posts = posts[:discoveryLimit]
	}

	return posts, nil
}

func (c *Composer) ensureExists(ctx context.Context, accountID string) error {
	ok, err := c.accounts.Exists(ctx, accountID)
	if err != nil {
		return fmt.Errorf("look up account: %w", err)
	}
	if !ok {
		return repositories.ErrNotFound
	}
	return nil
}
