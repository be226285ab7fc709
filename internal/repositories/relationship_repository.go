package repositories

import (
	"context"
	"time"

	"github.com/circleup/backend/internal/models"
)

// RelationshipRepository defines data access for friend requests and the
// symmetric friendship edges they produce. Accept applies the approval flag
// and both reciprocal edges atomically; implementations must never leave one
// side of the edge behind.
type RelationshipRepository interface {
	CreateRequest(ctx context.Context, request models.FriendRequest) error
	Accept(ctx context.Context, recipientID, senderID string, at time.Time) error
	ListRequests(ctx context.Context, recipientID string) ([]models.FriendRequest, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	ListFriendIDs(ctx context.Context, accountID string) ([]string, error)
}
