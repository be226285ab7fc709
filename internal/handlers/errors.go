package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/circleup/backend/internal/relationships"
	"github.com/circleup/backend/internal/repositories"
)

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, relationships.ErrSelfRequest):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, repositories.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a JSON error body derived from the domain error.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusForError(err)
	respondJSON(ctx, w, status, map[string]string{"error": errorMessage(status)})
}

func errorMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "temporarily unavailable, retry later"
	default:
		return "internal error"
	}
}
