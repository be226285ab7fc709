package handlers

import (
	"net/http"
	"time"

	"github.com/circleup/backend/internal/auth"
	"github.com/circleup/backend/internal/logging"
	"github.com/circleup/backend/internal/models"
)

// FriendHandler exposes the friend-request lifecycle over HTTP. The sender of
// a request and the accepter of one are always the authenticated caller.
type FriendHandler struct {
	Relationships RelationshipService
}

// Send handles POST /api/v1/users/{id}/friend-request, where {id} is the
// recipient of the request.
func (h FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Relationships == nil {
		logger.Error("relationship service unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	recipientID := r.PathValue("id")
	request, err := h.Relationships.SendRequest(ctx, callerID, recipientID)
	if err != nil {
		logger.Warn("friend request rejected", "error", err, "sender", callerID, "recipient", recipientID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, friendRequestView(request))
}

// Accept handles POST /api/v1/users/{id}/friend-request/accept, where {id} is
// the account that sent the pending request.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Relationships == nil {
		logger.Error("relationship service unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	senderID := r.PathValue("id")
	if err := h.Relationships.AcceptRequest(ctx, callerID, senderID); err != nil {
		logger.Warn("friend request accept failed", "error", err, "accepter", callerID, "sender", senderID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "friend request accepted"})
}

// ListPending handles GET /api/v1/friend-requests for the caller.
func (h FriendHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Relationships == nil {
		logger.Error("relationship service unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	requests, err := h.Relationships.ListPendingRequests(ctx, callerID)
	if err != nil {
		logger.Error("pending request listing failed", "error", err, "accountId", callerID)
		respondError(ctx, w, err)
		return
	}

	views := make([]friendRequestResponse, 0, len(requests))
	for _, request := range requests {
		views = append(views, friendRequestView(request))
	}

	respondJSON(ctx, w, http.StatusOK, map[string][]friendRequestResponse{"requests": views})
}

type friendRequestResponse struct {
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"createdAt"`
}

func friendRequestView(request models.FriendRequest) friendRequestResponse {
	return friendRequestResponse{
		Sender:    request.Sender,
		Recipient: request.Recipient,
		Approved:  request.Approved,
		CreatedAt: request.CreatedAt,
	}
}
