package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/circleup/backend/internal/auth"
	"github.com/circleup/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		ID:        uuid.NewString(),
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "secret-hash",
		Bio:       "hello",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := models.User{
		ID:        uuid.NewString(),
		Username:  "alice2",
		Email:     user.Email,
		Password:  "another-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.Email != user.Email || fetched.Username != user.Username || fetched.Bio != user.Bio {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	exists, err := repo.Exists(ctx, user.ID)
	if err != nil || !exists {
		t.Fatalf("expected user to exist, got exists=%v err=%v", exists, err)
	}
	exists, err = repo.Exists(ctx, "no-such-user")
	if err != nil || exists {
		t.Fatalf("expected missing user, got exists=%v err=%v", exists, err)
	}

	updated := user
	updated.Bio = "updated bio"
	updated.Password = "rotated-hash"
	updated.UpdatedAt = time.Now().UTC().Add(time.Minute)

	if err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("update user: %v", err)
	}

	fetched, err = repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.Bio != updated.Bio || fetched.Password != updated.Password {
		t.Fatalf("expected updated fields to persist, got %+v", fetched)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := repo.FindByID(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after deletion, got %v", err)
	}
	if err := repo.Delete(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPostgresRelationshipRepository_RequestLifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	sender := createTestUser(t, userRepo, "sender@example.com")
	recipient := createTestUser(t, userRepo, "recipient@example.com")

	repo := NewPostgresRelationshipRepository(testPool)

	request := models.FriendRequest{
		Sender:    sender.ID,
		Recipient: recipient.ID,
		CreatedAt: time.Now().UTC(),
	}

	if err := repo.CreateRequest(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := repo.CreateRequest(ctx, request); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate request, got %v", err)
	}

	ghost := models.FriendRequest{Sender: "no-such-user", Recipient: recipient.ID, CreatedAt: time.Now().UTC()}
	if err := repo.CreateRequest(ctx, ghost); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown sender, got %v", err)
	}

	pending, err := repo.ListRequests(ctx, recipient.ID)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(pending) != 1 || pending[0].Sender != sender.ID || pending[0].Approved {
		t.Fatalf("unexpected pending requests: %+v", pending)
	}
	if pending[0].RespondedAt != nil {
		t.Fatalf("expected no response time on a pending request, got %v", pending[0].RespondedAt)
	}

	if err := repo.Accept(ctx, recipient.ID, sender.ID, time.Now().UTC()); err != nil {
		t.Fatalf("accept request: %v", err)
	}

	for _, pair := range [][2]string{{sender.ID, recipient.ID}, {recipient.ID, sender.ID}} {
		friends, err := repo.AreFriends(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("are friends: %v", err)
		}
		if !friends {
			t.Fatalf("expected %s and %s to be friends", pair[0], pair[1])
		}
	}

	accepted, err := repo.ListRequests(ctx, recipient.ID)
	if err != nil {
		t.Fatalf("list requests after accept: %v", err)
	}
	if len(accepted) != 1 || !accepted[0].Approved || accepted[0].RespondedAt == nil {
		t.Fatalf("expected request to be approved with a response time, got %+v", accepted)
	}

	if err := repo.Accept(ctx, recipient.ID, sender.ID, time.Now().UTC()); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict accepting twice, got %v", err)
	}

	ids, err := repo.ListFriendIDs(ctx, recipient.ID)
	if err != nil {
		t.Fatalf("list friend ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != sender.ID {
		t.Fatalf("unexpected friend ids: %v", ids)
	}
}

func TestPostgresRelationshipRepository_ConcurrentAccept(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	sender := createTestUser(t, userRepo, "racer-sender@example.com")
	recipient := createTestUser(t, userRepo, "racer-recipient@example.com")

	repo := NewPostgresRelationshipRepository(testPool)

	request := models.FriendRequest{Sender: sender.ID, Recipient: recipient.ID, CreatedAt: time.Now().UTC()}
	if err := repo.CreateRequest(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	const attempts = 8
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot] = repo.Accept(ctx, recipient.ID, sender.ID, time.Now().UTC())
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable):
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful accept, got %d", successes)
	}

	ids, err := repo.ListFriendIDs(ctx, sender.ID)
	if err != nil {
		t.Fatalf("list friend ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != recipient.ID {
		t.Fatalf("expected a single reciprocal edge, got %v", ids)
	}
}

func TestPostgresPostRepository_ReactionsAndFeedQueries(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	author := createTestUser(t, userRepo, "author@example.com")
	reader := createTestUser(t, userRepo, "reader@example.com")

	repo := NewPostgresPostRepository(testPool)

	first := models.Post{
		ID:          uuid.NewString(),
		AuthorID:    author.ID,
		Content:     "first",
		ImageStatus: models.ImageStatusNone,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	second := models.Post{
		ID:          uuid.NewString(),
		AuthorID:    author.ID,
		Content:     "second",
		ImageStatus: models.ImageStatusNone,
		CreatedAt:   time.Now().UTC(),
	}
	unrelated := models.Post{
		ID:          uuid.NewString(),
		AuthorID:    reader.ID,
		Content:     "unrelated",
		ImageStatus: models.ImageStatusNone,
		CreatedAt:   time.Now().UTC(),
	}

	for _, post := range []models.Post{first, second, unrelated} {
		if err := repo.Create(ctx, post); err != nil {
			t.Fatalf("create post: %v", err)
		}
	}

	// Likes are a set: repeated likes collapse, removal is idempotent.
	for i := 0; i < 2; i++ {
		if err := repo.AddLike(ctx, first.ID, reader.ID); err != nil {
			t.Fatalf("add like: %v", err)
		}
	}
	fetched, err := repo.Find(ctx, first.ID)
	if err != nil {
		t.Fatalf("find post: %v", err)
	}
	if len(fetched.Likes) != 1 || fetched.Likes[0] != reader.ID {
		t.Fatalf("expected one like from reader, got %v", fetched.Likes)
	}

	if err := repo.RemoveLike(ctx, first.ID, "never-liked"); err != nil {
		t.Fatalf("remove absent like should be a no-op: %v", err)
	}

	comment := models.Comment{ID: uuid.NewString(), AuthorID: reader.ID, Content: "nice", CreatedAt: time.Now().UTC()}
	if err := repo.AddComment(ctx, first.ID, comment); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if err := repo.AddComment(ctx, "no-such-post", comment); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound commenting on missing post, got %v", err)
	}

	fetched, err = repo.Find(ctx, first.ID)
	if err != nil {
		t.Fatalf("find post with comment: %v", err)
	}
	if len(fetched.Comments) != 1 || fetched.Comments[0].Content != "nice" {
		t.Fatalf("unexpected comments: %+v", fetched.Comments)
	}

	byAuthor, err := repo.ListByAuthors(ctx, []string{author.ID})
	if err != nil {
		t.Fatalf("list by authors: %v", err)
	}
	if len(byAuthor) != 2 {
		t.Fatalf("expected 2 posts by author, got %d", len(byAuthor))
	}

	// Discovery candidates: authored by the given set or carrying likes.
	candidates, err := repo.ListLikedOrByAuthors(ctx, []string{reader.ID})
	if err != nil {
		t.Fatalf("list discovery candidates: %v", err)
	}
	found := map[string]bool{}
	for _, post := range candidates {
		found[post.ID] = true
	}
	if !found[unrelated.ID] {
		t.Fatal("expected reader's own post among candidates")
	}
	if !found[first.ID] {
		t.Fatal("expected liked post among candidates")
	}
	if found[second.ID] {
		t.Fatal("did not expect unliked stranger post among candidates")
	}

	if err := repo.MarkImageReady(ctx, second.ID, "https://cdn.example.com/x.png"); err != nil {
		t.Fatalf("mark image ready: %v", err)
	}
	fetched, err = repo.Find(ctx, second.ID)
	if err != nil {
		t.Fatalf("find post: %v", err)
	}
	if fetched.ImageStatus != models.ImageStatusReady || fetched.ImageURL == "" {
		t.Fatalf("expected ready image, got status=%q url=%q", fetched.ImageStatus, fetched.ImageURL)
	}
}

func TestPostgresSessionStore_SaveFindDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, userRepo, "sessions@example.com")

	store := NewPostgresSessionStore(testPool)

	session := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		ExpiresAt:    time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond),
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	fetched, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if fetched.UserID != user.ID {
		t.Fatalf("unexpected session user %q", fetched.UserID)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE post_comments, post_likes, posts, friendships, friend_requests, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.NewString(),
		Username:  email,
		Email:     email,
		Password:  "password-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}
