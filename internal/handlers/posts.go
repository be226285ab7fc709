package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/circleup/backend/internal/auth"
	"github.com/circleup/backend/internal/images"
	"github.com/circleup/backend/internal/logging"
	"github.com/circleup/backend/internal/models"
	"github.com/circleup/backend/internal/repositories"
)

// PostHandler serves post creation, reactions, and moderation endpoints.
type PostHandler struct {
	Posts   PostStore
	Images  ImageIngestor
	NowFunc func() time.Time
}

// Create handles POST /api/v1/posts. An optional image is accepted as a
// base64 data URL and uploaded in the background; the post is visible
// immediately with its image status set to pending.
func (h PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Posts == nil {
		logger.Error("post store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "post services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid post payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" && req.Image == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "post needs content or an image"})
		return
	}

	post := models.Post{
		ID:          uuid.NewString(),
		AuthorID:    callerID,
		Content:     req.Content,
		ImageStatus: models.ImageStatusNone,
		CreatedAt:   h.now(),
	}

	var payload images.Payload
	if req.Image != "" {
		if h.Images == nil {
			logger.Error("image ingestor unavailable")
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "image uploads unavailable"})
			return
		}
		decoded, err := images.DecodeDataURL(req.Image)
		if err != nil {
			logger.Warn("invalid post image", "error", err, "userId", callerID)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "image must be a base64 image data URL"})
			return
		}
		payload = decoded
		post.ImageStatus = models.ImageStatusPending
	}

	if err := h.Posts.Create(ctx, post); err != nil {
		logger.Error("post creation failed", "error", err, "userId", callerID)
		respondError(ctx, w, err)
		return
	}

	if post.ImageStatus == models.ImageStatusPending {
		job := images.UploadJob{
			PostID: post.ID,
			Name:   fmt.Sprintf("posts/%s%s", post.ID, payload.Ext),
			Data:   payload.Data,
		}
		if err := h.Images.Enqueue(ctx, job); err != nil {
			logger.Error("image enqueue failed", "error", err, "postId", post.ID)
			post.ImageStatus = models.ImageStatusFailed
			if updateErr := h.Posts.Update(ctx, post); updateErr != nil {
				logger.Error("failed to mark image failed", "error", updateErr, "postId", post.ID)
			}
		}
	}

	respondJSON(ctx, w, http.StatusCreated, postView(post))
}

// Get handles GET /api/v1/posts/{id}.
func (h PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Posts == nil {
		logger.Error("post store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "post services unavailable"})
		return
	}

	post, err := h.Posts.Find(ctx, r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("post lookup failed", "error", err, "postId", r.PathValue("id"))
		}
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, postView(post))
}

// Update handles PUT /api/v1/posts/{id}. Only the author may edit.
func (h PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Posts == nil {
		logger.Error("post store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "post services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	var req updatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid post payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	post, err := h.Posts.Find(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if post.AuthorID != callerID {
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "only the author may edit a post"})
		return
	}

	post.Content = req.Content
	if err := h.Posts.Update(ctx, post); err != nil {
		logger.Error("post update failed", "error", err, "postId", post.ID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, postView(post))
}

// Delete handles DELETE /api/v1/posts/{id}. Only the author may delete.
func (h PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Posts == nil {
		logger.Error("post store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "post services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	post, err := h.Posts.Find(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if post.AuthorID != callerID {
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "only the author may delete a post"})
		return
	}

	if err := h.Posts.Delete(ctx, post.ID); err != nil {
		logger.Error("post deletion failed", "error", err, "postId", post.ID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "post deleted"})
}

// Comment handles POST /api/v1/posts/{id}/comments.
func (h PostHandler) Comment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Posts == nil {
		logger.Error("post store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "post services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid comment payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	comment := models.Comment{
		ID:        uuid.NewString(),
		AuthorID:  callerID,
		Content:   req.Content,
		CreatedAt: h.now(),
	}

	if err := h.Posts.AddComment(ctx, r.PathValue("id"), comment); err != nil {
		logger.Warn("comment rejected", "error", err, "postId", r.PathValue("id"))
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, commentView(comment))
}

// Like handles POST /api/v1/posts/{id}/likes. Liking twice is a no-op.
func (h PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, "liked", func(ctx context.Context, postID, userID string) error {
		return h.Posts.AddLike(ctx, postID, userID)
	})
}

// Unlike handles DELETE /api/v1/posts/{id}/likes. Removing an absent like is a no-op.
func (h PostHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, "unliked", func(ctx context.Context, postID, userID string) error {
		return h.Posts.RemoveLike(ctx, postID, userID)
	})
}

func (h PostHandler) react(w http.ResponseWriter, r *http.Request, verb string, apply func(ctx context.Context, postID, userID string) error) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Posts == nil {
		logger.Error("post store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "post services unavailable"})
		return
	}

	callerID, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	postID := r.PathValue("id")
	if _, err := h.Posts.Find(ctx, postID); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := apply(ctx, postID, callerID); err != nil {
		logger.Error("reaction failed", "error", err, "postId", postID, "userId", callerID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "post " + verb})
}

func (h PostHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type createPostRequest struct {
	Content string `json:"content"`
	Image   string `json:"image"`
}

type updatePostRequest struct {
	Content string `json:"content"`
}

type commentRequest struct {
	Content string `json:"content"`
}

type postResponse struct {
	ID          string            `json:"id"`
	AuthorID    string            `json:"authorId"`
	Content     string            `json:"content"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	ImageStatus string            `json:"imageStatus"`
	Likes       []string          `json:"likes"`
	Comments    []commentResponse `json:"comments"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func postView(post models.Post) postResponse {
	likes := post.Likes
	if likes == nil {
		likes = []string{}
	}
	comments := make([]commentResponse, 0, len(post.Comments))
	for _, comment := range post.Comments {
		comments = append(comments, commentView(comment))
	}
	return postResponse{
		ID:          post.ID,
		AuthorID:    post.AuthorID,
		Content:     post.Content,
		ImageURL:    post.ImageURL,
		ImageStatus: post.ImageStatus,
		Likes:       likes,
		Comments:    comments,
		CreatedAt:   post.CreatedAt,
	}
}

func commentView(comment models.Comment) commentResponse {
	return commentResponse{
		ID:        comment.ID,
		AuthorID:  comment.AuthorID,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	}
}
