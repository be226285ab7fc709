package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/circleup/backend/internal/images"
	"github.com/circleup/backend/internal/models"
	"github.com/circleup/backend/internal/repositories"
)

type inMemoryPostStore struct {
	posts map[string]models.Post
}

func newInMemoryPostStore() *inMemoryPostStore {
	return &inMemoryPostStore{posts: make(map[string]models.Post)}
}

func (s *inMemoryPostStore) Create(_ context.Context, post models.Post) error {
	if _, exists := s.posts[post.ID]; exists {
		return repositories.ErrConflict
	}
	s.posts[post.ID] = post
	return nil
}

func (s *inMemoryPostStore) Find(_ context.Context, id string) (models.Post, error) {
	post, ok := s.posts[id]
	if !ok {
		return models.Post{}, repositories.ErrNotFound
	}
	return post, nil
}

func (s *inMemoryPostStore) Update(_ context.Context, post models.Post) error {
	if _, ok := s.posts[post.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.posts[post.ID] = post
	return nil
}

func (s *inMemoryPostStore) Delete(_ context.Context, id string) error {
	if _, ok := s.posts[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *inMemoryPostStore) AddComment(_ context.Context, postID string, comment models.Comment) error {
	post, ok := s.posts[postID]
	if !ok {
		return repositories.ErrNotFound
	}
	post.Comments = append(post.Comments, comment)
	s.posts[postID] = post
	return nil
}

func (s *inMemoryPostStore) AddLike(_ context.Context, postID, userID string) error {
	post, ok := s.posts[postID]
	if !ok {
		return repositories.ErrNotFound
	}
	if !slices.Contains(post.Likes, userID) {
		post.Likes = append(post.Likes, userID)
	}
	s.posts[postID] = post
	return nil
}

func (s *inMemoryPostStore) RemoveLike(_ context.Context, postID, userID string) error {
	post, ok := s.posts[postID]
	if !ok {
		return repositories.ErrNotFound
	}
	post.Likes = slices.DeleteFunc(post.Likes, func(id string) bool { return id == userID })
	s.posts[postID] = post
	return nil
}

type ingestorStub struct {
	jobs []images.UploadJob
	err  error
}

func (s *ingestorStub) Enqueue(_ context.Context, job images.UploadJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func TestPostHandlerCreate(t *testing.T) {
	store := newInMemoryPostStore()
	handler := PostHandler{Posts: store}

	body, err := json.Marshal(createPostRequest{Content: "first post"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPost, "/api/v1/posts", "user-1", body)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp postResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AuthorID != "user-1" || resp.Content != "first post" {
		t.Fatalf("unexpected post view %+v", resp)
	}
	if resp.ImageStatus != models.ImageStatusNone {
		t.Fatalf("expected image status none got %q", resp.ImageStatus)
	}
	if resp.Likes == nil || resp.Comments == nil {
		t.Fatal("expected likes and comments to be arrays, not null")
	}
	if _, ok := store.posts[resp.ID]; !ok {
		t.Fatal("expected post to be stored")
	}
}

func TestPostHandlerCreateWithImage(t *testing.T) {
	store := newInMemoryPostStore()
	ingestor := &ingestorStub{}
	handler := PostHandler{Posts: store, Images: ingestor}

	body, err := json.Marshal(createPostRequest{Content: "with picture", Image: "data:image/png;base64,aGVsbG8="})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPost, "/api/v1/posts", "user-1", body)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp postResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ImageStatus != models.ImageStatusPending {
		t.Fatalf("expected image status pending got %q", resp.ImageStatus)
	}

	if len(ingestor.jobs) != 1 {
		t.Fatalf("expected 1 upload job got %d", len(ingestor.jobs))
	}
	job := ingestor.jobs[0]
	if job.PostID != resp.ID {
		t.Fatalf("expected job for post %s got %s", resp.ID, job.PostID)
	}
	if string(job.Data) != "hello" {
		t.Fatalf("expected decoded image bytes, got %q", job.Data)
	}
}

func TestPostHandlerCreateRejectsInvalidImage(t *testing.T) {
	handler := PostHandler{Posts: newInMemoryPostStore(), Images: &ingestorStub{}}

	body, err := json.Marshal(createPostRequest{Content: "bad", Image: "data:text/plain;base64,aGVsbG8="})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPost, "/api/v1/posts", "user-1", body)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestPostHandlerCreateRequiresContentOrImage(t *testing.T) {
	handler := PostHandler{Posts: newInMemoryPostStore()}

	body, err := json.Marshal(createPostRequest{Content: "   "})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPost, "/api/v1/posts", "user-1", body)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestPostHandlerGetUnknown(t *testing.T) {
	handler := PostHandler{Posts: newInMemoryPostStore()}

	req := authenticatedRequest(http.MethodGet, "/api/v1/posts/ghost", "user-1", nil)
	req.SetPathValue("id", "ghost")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}

func TestPostHandlerUpdateAuthorOnly(t *testing.T) {
	store := newInMemoryPostStore()
	store.posts["post-1"] = models.Post{ID: "post-1", AuthorID: "user-1", Content: "original"}
	handler := PostHandler{Posts: store}

	body, err := json.Marshal(updatePostRequest{Content: "edited"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPut, "/api/v1/posts/post-1", "user-2", body)
	req.SetPathValue("id", "post-1")
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d got %d", http.StatusForbidden, rec.Code)
	}
	if store.posts["post-1"].Content != "original" {
		t.Fatal("expected post to be untouched")
	}
}

func TestPostHandlerUpdate(t *testing.T) {
	store := newInMemoryPostStore()
	store.posts["post-1"] = models.Post{ID: "post-1", AuthorID: "user-1", Content: "original"}
	handler := PostHandler{Posts: store}

	body, err := json.Marshal(updatePostRequest{Content: "edited"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPut, "/api/v1/posts/post-1", "user-1", body)
	req.SetPathValue("id", "post-1")
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if store.posts["post-1"].Content != "edited" {
		t.Fatalf("expected content to change, got %q", store.posts["post-1"].Content)
	}
}

func TestPostHandlerDeleteAuthorOnly(t *testing.T) {
	store := newInMemoryPostStore()
	store.posts["post-1"] = models.Post{ID: "post-1", AuthorID: "user-1"}
	handler := PostHandler{Posts: store}

	req := authenticatedRequest(http.MethodDelete, "/api/v1/posts/post-1", "user-2", nil)
	req.SetPathValue("id", "post-1")
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d got %d", http.StatusForbidden, rec.Code)
	}
	if _, ok := store.posts["post-1"]; !ok {
		t.Fatal("expected post to remain")
	}
}

func TestPostHandlerComment(t *testing.T) {
	store := newInMemoryPostStore()
	store.posts["post-1"] = models.Post{ID: "post-1", AuthorID: "user-1"}
	handler := PostHandler{Posts: store}

	body, err := json.Marshal(commentRequest{Content: "nice one"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := authenticatedRequest(http.MethodPost, "/api/v1/posts/post-1/comments", "user-2", body)
	req.SetPathValue("id", "post-1")
	rec := httptest.NewRecorder()

	handler.Comment(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	comments := store.posts["post-1"].Comments
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment got %d", len(comments))
	}
	if comments[0].AuthorID != "user-2" || comments[0].Content != "nice one" {
		t.Fatalf("unexpected comment %+v", comments[0])
	}
}

func TestPostHandlerLikeIdempotent(t *testing.T) {
	store := newInMemoryPostStore()
	store.posts["post-1"] = models.Post{ID: "post-1", AuthorID: "user-1"}
	handler := PostHandler{Posts: store}

	for range 2 {
		req := authenticatedRequest(http.MethodPost, "/api/v1/posts/post-1/likes", "user-2", nil)
		req.SetPathValue("id", "post-1")
		rec := httptest.NewRecorder()

		handler.Like(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
		}
	}

	if likes := store.posts["post-1"].Likes; len(likes) != 1 || likes[0] != "user-2" {
		t.Fatalf("expected a single like from user-2, got %v", likes)
	}
}

func TestPostHandlerUnlikeAbsentIsNoOp(t *testing.T) {
	store := newInMemoryPostStore()
	store.posts["post-1"] = models.Post{ID: "post-1", AuthorID: "user-1"}
	handler := PostHandler{Posts: store}

	req := authenticatedRequest(http.MethodDelete, "/api/v1/posts/post-1/likes", "user-2", nil)
	req.SetPathValue("id", "post-1")
	rec := httptest.NewRecorder()

	handler.Unlike(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if likes := store.posts["post-1"].Likes; len(likes) != 0 {
		t.Fatalf("expected no likes, got %v", likes)
	}
}
