package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/circleup/backend/internal/auth"
	"github.com/circleup/backend/internal/images"
	"github.com/circleup/backend/internal/logging"
	"github.com/circleup/backend/internal/repositories"
)

// UserHandler serves profile endpoints. Mutating operations are restricted to
// the authenticated owner of the profile.
type UserHandler struct {
	Users   UserStore
	Avatars AvatarStorage
	NowFunc func() time.Time
}

// Get handles GET /api/v1/users/{id}.
func (h UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "user services unavailable"})
		return
	}

	user, err := h.Users.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		logger.Error("user lookup failed", "error", err, "userId", r.PathValue("id"))
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, profileResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Bio:       user.Bio,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
	})
}

// Update handles PUT /api/v1/users/{id}. Only bio and avatar may change.
func (h UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "user services unavailable"})
		return
	}

	targetID := r.PathValue("id")
	if !callerOwns(ctx, targetID) {
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "cannot modify another user"})
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid profile payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user, err := h.Users.FindByID(ctx, targetID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if req.Bio != nil {
		user.Bio = strings.TrimSpace(*req.Bio)
	}

	if req.Avatar != "" {
		if h.Avatars == nil {
			logger.Error("avatar storage unavailable")
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "avatar storage unavailable"})
			return
		}
		payload, err := images.DecodeDataURL(req.Avatar)
		if err != nil {
			logger.Warn("invalid avatar payload", "error", err, "userId", targetID)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "avatar must be a base64 image data URL"})
			return
		}
		name := fmt.Sprintf("avatars/%s-%s%s", targetID, uuid.NewString(), payload.Ext)
		url, err := h.Avatars.Save(ctx, name, bytes.NewReader(payload.Data))
		if err != nil {
			logger.Error("avatar upload failed", "error", err, "userId", targetID)
			respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "failed to store avatar"})
			return
		}
		user.AvatarURL = url
	}

	user.UpdatedAt = h.now()
	if err := h.Users.Update(ctx, user); err != nil {
		logger.Error("profile update failed", "error", err, "userId", targetID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, profileResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Bio:       user.Bio,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
	})
}

// UpdatePassword handles PUT /api/v1/users/{id}/password.
func (h UserHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "user services unavailable"})
		return
	}

	targetID := r.PathValue("id")
	if !callerOwns(ctx, targetID) {
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "cannot modify another user"})
		return
	}

	var req updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid password payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if len(req.NewPassword) < 8 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
		return
	}

	user, err := h.Users.FindByID(ctx, targetID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		logger.Warn("password change rejected", "userId", targetID)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "current password is incorrect"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	user.Password = string(hashed)
	user.UpdatedAt = h.now()
	if err := h.Users.Update(ctx, user); err != nil {
		logger.Error("password update failed", "error", err, "userId", targetID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Delete handles DELETE /api/v1/users/{id}.
func (h UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "user services unavailable"})
		return
	}

	targetID := r.PathValue("id")
	if !callerOwns(ctx, targetID) {
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "cannot delete another user"})
		return
	}

	if err := h.Users.Delete(ctx, targetID); err != nil {
		logger.Error("user deletion failed", "error", err, "userId", targetID)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "account deleted"})
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func callerOwns(ctx context.Context, targetID string) bool {
	callerID, ok := auth.IdentityFromContext(ctx)
	return ok && callerID == targetID
}

type updateProfileRequest struct {
	Bio    *string `json:"bio"`
	Avatar string  `json:"avatar"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type profileResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
}
