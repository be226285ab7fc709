package relationships

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/circleup/backend/internal/logging"
	"github.com/circleup/backend/internal/models"
	"github.com/circleup/backend/internal/repositories"
)

// ErrSelfRequest indicates an account tried to send a friend request to itself.
var ErrSelfRequest = errors.New("cannot send a friend request to yourself")

// AccountDirectory reports whether an account id refers to a known account.
type AccountDirectory interface {
	Exists(ctx context.Context, accountID string) (bool, error)
}

// Repository persists the friend graph. Accept must be atomic: either both
// reciprocal edges and the approval flag are written, or nothing is.
type Repository interface {
	CreateRequest(ctx context.Context, request models.FriendRequest) error
	Accept(ctx context.Context, recipientID, senderID string, at time.Time) error
	ListRequests(ctx context.Context, recipientID string) ([]models.FriendRequest, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	ListFriendIDs(ctx context.Context, accountID string) ([]string, error)
}

// Store owns the friend-request lifecycle. A request moves pending → accepted;
// there is no reject or cancel transition, so an unanswered request stays
// pending indefinitely.
type Store struct {
	accounts AccountDirectory
	repo     Repository
	NowFunc  func() time.Time
}

// NewStore constructs a Store over the provided directory and repository.
func NewStore(accounts AccountDirectory, repo Repository) *Store {
	return &Store{accounts: accounts, repo: repo}
}

// NormalizeID canonicalizes an account identifier before any comparison or
// membership check. Identifiers are uuid strings, so folding case and trimming
// whitespace makes equal ids compare equal regardless of representation.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// SendRequest records a pending friend request from sender to recipient.
// It fails with ErrSelfRequest for self-targeted requests, ErrNotFound when
// either account is unknown, and ErrConflict when the two are already friends
// or an identical request is still outstanding.
func (s *Store) SendRequest(ctx context.Context, senderID, recipientID string) (models.FriendRequest, error) {
	ctx, span := logging.StartSpan(ctx, "relationships.send_request")
	defer span.End()

	senderID = NormalizeID(senderID)
	recipientID = NormalizeID(recipientID)

	if senderID == recipientID {
		return models.FriendRequest{}, ErrSelfRequest
	}

	if err := s.ensureExists(ctx, recipientID); err != nil {
		return models.FriendRequest{}, err
	}
	if err := s.ensureExists(ctx, senderID); err != nil {
		return models.FriendRequest{}, err
	}

	friends, err := s.repo.AreFriends(ctx, senderID, recipientID)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("check existing friendship: %w", err)
	}
	if friends {
		return models.FriendRequest{}, repositories.ErrConflict
	}

	request := models.FriendRequest{
		Sender:    senderID,
		Recipient: recipientID,
		CreatedAt: s.now(),
	}

	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return models.FriendRequest{}, fmt.Errorf("create friend request: %w", err)
	}

	return request, nil
}

// AcceptRequest approves the pending request from sender in the accepter's
// list and establishes the reciprocal friend edge. The dual write happens
// atomically in the repository; a half-applied accept is reported as
// ErrUnavailable, never as success.
func (s *Store) AcceptRequest(ctx context.Context, accepterID, senderID string) error {
	ctx, span := logging.StartSpan(ctx, "relationships.accept_request")
	defer span.End()

	accepterID = NormalizeID(accepterID)
	senderID = NormalizeID(senderID)

	if err := s.ensureExists(ctx, accepterID); err != nil {
		return err
	}
	if err := s.ensureExists(ctx, senderID); err != nil {
		return err
	}

	friends, err := s.repo.AreFriends(ctx, accepterID, senderID)
	if err != nil {
		return fmt.Errorf("check existing friendship: %w", err)
	}
	if friends {
		return repositories.ErrConflict
	}

	if err := s.repo.Accept(ctx, accepterID, senderID, s.now()); err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}

	return nil
}

// ListPendingRequests returns the account's not-yet-approved requests in the
// order they were received. An account with no requests gets an empty slice.
func (s *Store) ListPendingRequests(ctx context.Context, accountID string) ([]models.FriendRequest, error) {
	accountID = NormalizeID(accountID)

	if err := s.ensureExists(ctx, accountID); err != nil {
		return nil, err
	}

	requests, err := s.repo.ListRequests(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}

	pending := make([]models.FriendRequest, 0, len(requests))
	for _, request := range requests {
		if !request.Approved {
			pending = append(pending, request)
		}
	}

	return pending, nil
}

// AreFriends reports whether a symmetric friend edge exists between the two
// accounts. Unknown accounts simply have no edges.
func (s *Store) AreFriends(ctx context.Context, a, b string) (bool, error) {
	return s.repo.AreFriends(ctx, NormalizeID(a), NormalizeID(b))
}

// Friends returns the account's friend ids in edge-insertion order.
func (s *Store) Friends(ctx context.Context, accountID string) ([]string, error) {
	accountID = NormalizeID(accountID)

	if err := s.ensureExists(ctx, accountID); err != nil {
		return nil, err
	}

	return s.repo.ListFriendIDs(ctx, accountID)
}

func (s *Store) ensureExists(ctx context.Context, accountID string) error {
	ok, err := s.accounts.Exists(ctx, accountID)
	if err != nil {
		return fmt.Errorf("look up account: %w", err)
	}
	if !ok {
		return repositories.ErrNotFound
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
