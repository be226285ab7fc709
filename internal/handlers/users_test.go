package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/circleup/backend/internal/auth"
	"github.com/circleup/backend/internal/models"
)

type avatarStorageStub struct {
	savedName string
	saved     []byte
	url       string
	err       error
}

func (s *avatarStorageStub) Save(_ context.Context, name string, body io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.savedName = name
	s.saved = data
	return s.url, nil
}

func authenticatedRequest(method, target, userID string, body []byte) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(auth.WithIdentity(req.Context(), userID))
}

func TestUserHandlerGetOmitsPassword(t *testing.T) {
	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1", Username: "ada", Email: "ada@example.com", Password: "hashed", Bio: "hello"}
	handler := UserHandler{Users: store}

	req := authenticatedRequest(http.MethodGet, "/api/v1/users/user-1", "user-2", nil)
	req.SetPathValue("id", "user-1")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp["username"] != "ada" {
		t.Fatalf("expected username ada got %v", resp["username"])
	}
	for key := range resp {
		if key == "password" || key == "Password" {
			t.Fatal("profile response leaked the password hash")
		}
	}
}

func TestUserHandlerGetUnknown(t *testing.T) {
	handler := UserHandler{Users: newInMemoryUserStore()}

	req := authenticatedRequest(http.MethodGet, "/api/v1/users/ghost", "user-1", nil)
	req.SetPathValue("id", "ghost")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}

func TestUserHandlerUpdateBio(t *testing.T) {
	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1", Username: "ada", Email: "ada@example.com"}
	handler := UserHandler{Users: store}

	bio := "building things"
	body, err := json.Marshal(updateProfileRequest{Bio: &bio})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPut, "/api/v1/users/user-1", "user-1", body)
	req.SetPathValue("id", "user-1")
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	if store.users["user-1"].Bio != "building things" {
		t.Fatalf("expected bio to be stored, got %q", store.users["user-1"].Bio)
	}
}

func TestUserHandlerUpdateForbiddenForOtherUsers(t *testing.T) {
	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1"}
	handler := UserHandler{Users: store}

	bio := "hijacked"
	body, err := json.Marshal(updateProfileRequest{Bio: &bio})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPut, "/api/v1/users/user-1", "user-2", body)
	req.SetPathValue("id", "user-1")
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d got %d", http.StatusForbidden, rec.Code)
	}
}

func TestUserHandlerUpdateAvatar(t *testing.T) {
	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1"}
	avatars := &avatarStorageStub{url: "https://cdn.example.com/avatars/user-1.png"}
	handler := UserHandler{Users: store, Avatars: avatars}

	body, err := json.Marshal(updateProfileRequest{Avatar: "data:image/png;base64,aGVsbG8="})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPut, "/api/v1/users/user-1", "user-1", body)
	req.SetPathValue("id", "user-1")
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	if string(avatars.saved) != "hello" {
		t.Fatalf("expected decoded avatar bytes, got %q", avatars.saved)
	}
	if store.users["user-1"].AvatarURL != avatars.url {
		t.Fatalf("expected avatar url to be stored, got %q", store.users["user-1"].AvatarURL)
	}
}

func TestUserHandlerUpdateAvatarRejectsGarbage(t *testing.T) {
	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1"}
	handler := UserHandler{Users: store, Avatars: &avatarStorageStub{}}

	body, err := json.Marshal(updateProfileRequest{Avatar: "not-a-data-url"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPut, "/api/v1/users/user-1", "user-1", body)
	req.SetPathValue("id", "user-1")
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestUserHandlerUpdatePassword(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1", Password: string(hashed)}
	handler := UserHandler{Users: store}

	body, err := json.Marshal(updatePasswordRequest{CurrentPassword: "old-password", NewPassword: "new-password"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPut, "/api/v1/users/user-1/password", "user-1", body)
	req.SetPathValue("id", "user-1")
	rec := httptest.NewRecorder()

	handler.UpdatePassword(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	if bcrypt.CompareHashAndPassword([]byte(store.users["user-1"].Password), []byte("new-password")) != nil {
		t.Fatal("expected new password to be stored hashed")
	}
}

func TestUserHandlerUpdatePasswordWrongCurrent(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1", Password: string(hashed)}
	handler := UserHandler{Users: store}

	body, err := json.Marshal(updatePasswordRequest{CurrentPassword: "guess", NewPassword: "new-password"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPut, "/api/v1/users/user-1/password", "user-1", body)
	req.SetPathValue("id", "user-1")
	rec := httptest.NewRecorder()

	handler.UpdatePassword(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestUserHandlerDelete(t *testing.T) {
	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1"}
	handler := UserHandler{Users: store}

	req := authenticatedRequest(http.MethodDelete, "/api/v1/users/user-1", "user-1", nil)
	req.SetPathValue("id", "user-1")
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if _, ok := store.users["user-1"]; ok {
		t.Fatal("expected user to be removed")
	}
}
