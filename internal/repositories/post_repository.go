package repositories

import (
	"context"

	"github.com/circleup/backend/internal/models"
)

// PostRepository defines data access for posts, likes, and comments.
type PostRepository interface {
	Create(ctx context.Context, post models.Post) error
	Find(ctx context.Context, id string) (models.Post, error)
	Update(ctx context.Context, post models.Post) error
	Delete(ctx context.Context, id string) error
	AddComment(ctx context.Context, postID string, comment models.Comment) error
	AddLike(ctx context.Context, postID, userID string) error
	RemoveLike(ctx context.Context, postID, userID string) error
	ListByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)
	ListLikedOrByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)
}
