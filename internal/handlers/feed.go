package handlers

import (
	"context"
	"net/http"

	"github.com/circleup/backend/internal/auth"
	"github.com/circleup/backend/internal/logging"
	"github.com/circleup/backend/internal/models"
)

// FeedHandler serves the caller's timeline and discovery feeds.
type FeedHandler struct {
	Feeds FeedService
}

// Timeline handles GET /api/v1/feed/timeline.
func (h FeedHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "timeline", func(ctx context.Context, accountID string) ([]models.Post, error) {
		return h.Feeds.Timeline(ctx, accountID)
	})
}

// Discovery handles GET /api/v1/feed/discovery.
func (h FeedHandler) Discovery(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "discovery", func(ctx context.Context, accountID string) ([]models.Post, error) {
		return h.Feeds.Discovery(ctx, accountID)
	})
}

func (h FeedHandler) serve(w http.ResponseWriter, r *http.Request, name string, compose func(ctx context.Context, accountID string) ([]models.Post, error)) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Feeds == nil {
		logger.Error("feed composer unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "feed services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	posts, err := compose(ctx, callerID)
	if err != nil {
		logger.Error("feed composition failed", "error", err, "feed", name, "accountId", callerID)
		respondError(ctx, w, err)
		return
	}

	views := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		views = append(views, postView(post))
	}

	respondJSON(ctx, w, http.StatusOK, map[string][]postResponse{"posts": views})
}
