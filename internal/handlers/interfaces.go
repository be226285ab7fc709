package handlers

import (
	"context"
	"io"

	"github.com/circleup/backend/internal/images"
	"github.com/circleup/backend/internal/models"
)

// UserStore captures the persistence operations required by the account handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Update(ctx context.Context, user models.User) error
	Delete(ctx context.Context, id string) error
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
}

// RelationshipService drives the friend-request lifecycle.
type RelationshipService interface {
	SendRequest(ctx context.Context, senderID, recipientID string) (models.FriendRequest, error)
	AcceptRequest(ctx context.Context, accepterID, senderID string) error
	ListPendingRequests(ctx context.Context, accountID string) ([]models.FriendRequest, error)
}

// FeedService assembles timeline and discovery feeds for an account.
type FeedService interface {
	Timeline(ctx context.Context, accountID string) ([]models.Post, error)
	Discovery(ctx context.Context, accountID string) ([]models.Post, error)
}

// PostStore captures persistence for posts, likes, and comments.
type PostStore interface {
	Create(ctx context.Context, post models.Post) error
	Find(ctx context.Context, id string) (models.Post, error)
	Update(ctx context.Context, post models.Post) error
	Delete(ctx context.Context, id string) error
	AddComment(ctx context.Context, postID string, comment models.Comment) error
	AddLike(ctx context.Context, postID, userID string) error
	RemoveLike(ctx context.Context, postID, userID string) error
}

// ImageIngestor schedules background uploads of post images.
type ImageIngestor interface {
	Enqueue(ctx context.Context, job images.UploadJob) error
}

// AvatarStorage persists avatar images and returns their public URL.
type AvatarStorage interface {
	Save(ctx context.Context, name string, body io.Reader) (string, error)
}
