package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/circleup/backend/internal/db"
	"github.com/circleup/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for accounts.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new account record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, email, password_hash, bio, avatar_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, user.ID, user.Username, user.Email, user.Password, user.Bio, user.AvatarURL, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches an account by its identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, username, email, password_hash, bio, avatar_url, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)

	return scanUser(row)
}

// FindByEmail fetches an account by its email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, username, email, password_hash, bio, avatar_url, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	return scanUser(row)
}

// Update modifies an existing account record.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET username = $2, email = $3, password_hash = $4, bio = $5, avatar_url = $6, updated_at = $7
        WHERE id = $1
    `, user.ID, user.Username, user.Email, user.Password, user.Bio, user.AvatarURL, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes an account and, through cascades, everything it owns.
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Exists reports whether an account id is known.
func (r *PostgresUserRepository) Exists(ctx context.Context, id string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}

	return exists, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.Bio, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// PostgresRelationshipRepository provides PostgreSQL-backed persistence for
// the friend graph.
type PostgresRelationshipRepository struct {
	pool db.Pool
}

// NewPostgresRelationshipRepository constructs a relationship repository
// backed by PostgreSQL.
func NewPostgresRelationshipRepository(pool db.Pool) *PostgresRelationshipRepository {
	return &PostgresRelationshipRepository{pool: pool}
}

// CreateRequest persists a new pending friend request. The (sender,
// recipient) pair is the primary key, so a duplicate surfaces as ErrConflict.
func (r *PostgresRelationshipRepository) CreateRequest(ctx context.Context, request models.FriendRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO friend_requests (sender_id, recipient_id, approved, created_at)
        VALUES ($1, $2, FALSE, $3)
    `, request.Sender, request.Recipient, request.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert friend request: %w", err)
	}

	return nil
}

const (
	acceptMaxRetries  = 3
	acceptBaseBackoff = 50 * time.Millisecond
)

var retryableTxCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

func retryableTxError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryableTxCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}

// Accept flips the pending request and inserts both reciprocal friendship
// edges inside one serializable transaction. Serialization failures are
// retried a bounded number of times; exhausting the retries reports
// ErrUnavailable so the caller knows nothing was applied.
func (r *PostgresRelationshipRepository) Accept(ctx context.Context, recipientID, senderID string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	for attempt := 0; attempt < acceptMaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * acceptBaseBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("accept friend request: %w", ErrUnavailable)
			case <-timer.C:
			}
		}

		err := acceptOnce(ctx, conn, recipientID, senderID, at)
		if err == nil {
			return nil
		}
		if !retryableTxError(err) {
			return err
		}
	}

	return fmt.Errorf("accept friend request: %w", ErrUnavailable)
}

func acceptOnce(ctx context.Context, conn *pgxpool.Conn, recipientID, senderID string, at time.Time) error {
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin accept transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
        UPDATE friend_requests
        SET approved = TRUE, responded_at = $3
        WHERE recipient_id = $1 AND sender_id = $2 AND approved = FALSE
    `, recipientID, senderID, at)
	if err != nil {
		return fmt.Errorf("approve friend request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO friendships (account_id, friend_id, created_at)
        VALUES ($1, $2, $3), ($2, $1, $3)
    `, recipientID, senderID, at); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert friendship edges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit accept transaction: %w", err)
	}

	return nil
}

// ListRequests returns every request addressed to the recipient in the order
// they were received.
func (r *PostgresRelationshipRepository) ListRequests(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT sender_id, recipient_id, approved, created_at, responded_at
        FROM friend_requests
        WHERE recipient_id = $1
        ORDER BY created_at, sender_id
    `, recipientID)
	if err != nil {
		return nil, fmt.Errorf("query friend requests: %w", err)
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		var (
			request     models.FriendRequest
			respondedAt sql.NullTime
		)

		if err := rows.Scan(&request.Sender, &request.Recipient, &request.Approved, &request.CreatedAt, &respondedAt); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}

		if respondedAt.Valid {
			t := respondedAt.Time.UTC()
			request.RespondedAt = &t
		}

		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}

	return requests, nil
}

// AreFriends reports whether a friend edge exists from a to b. Edges are
// written in reciprocal pairs, so one direction answers for both.
func (r *PostgresRelationshipRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM friendships WHERE account_id = $1 AND friend_id = $2)
    `, a, b).Scan(&exists); err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}

	return exists, nil
}

// ListFriendIDs returns the account's friends in edge-insertion order.
func (r *PostgresRelationshipRepository) ListFriendIDs(ctx context.Context, accountID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT friend_id
        FROM friendships
        WHERE account_id = $1
        ORDER BY created_at, friend_id
    `, accountID)
	if err != nil {
		return nil, fmt.Errorf("query friendships: %w", err)
	}
	defer rows.Close()

	var friendIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		friendIDs = append(friendIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friendships: %w", err)
	}

	return friendIDs, nil
}

// PostgresPostRepository provides PostgreSQL-backed persistence for posts.
type PostgresPostRepository struct {
	pool db.Pool
}

// NewPostgresPostRepository constructs a post repository backed by PostgreSQL.
func NewPostgresPostRepository(pool db.Pool) *PostgresPostRepository {
	return &PostgresPostRepository{pool: pool}
}

// Create stores a new post record.
func (r *PostgresPostRepository) Create(ctx context.Context, post models.Post) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := post.ImageStatus
	if status == "" {
		status = models.ImageStatusNone
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO posts (id, author_id, content, image_url, image_status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, post.ID, post.AuthorID, post.Content, post.ImageURL, status, post.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert post: %w", err)
	}

	return nil
}

// Find loads a single post along with its likes and comments.
func (r *PostgresPostRepository) Find(ctx context.Context, id string) (models.Post, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Post{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT p.id, p.author_id, p.content, p.image_url, p.image_status, p.created_at,
               COALESCE(ARRAY_AGG(pl.user_id ORDER BY pl.created_at) FILTER (WHERE pl.user_id IS NOT NULL), '{}')
        FROM posts p
        LEFT JOIN post_likes pl ON pl.post_id = p.id
        WHERE p.id = $1
        GROUP BY p.id, p.author_id, p.content, p.image_url, p.image_status, p.created_at
    `, id)

	var post models.Post
	if err := row.Scan(&post.ID, &post.AuthorID, &post.Content, &post.ImageURL, &post.ImageStatus, &post.CreatedAt, &post.Likes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("select post: %w", err)
	}

	comments, err := r.listComments(ctx, conn, id)
	if err != nil {
		return models.Post{}, err
	}
	post.Comments = comments

	return post, nil
}

func (r *PostgresPostRepository) listComments(ctx context.Context, conn *pgxpool.Conn, postID string) ([]models.Comment, error) {
	rows, err := conn.Query(ctx, `
        SELECT id, author_id, content, created_at
        FROM post_comments
        WHERE post_id = $1
        ORDER BY created_at, id
    `, postID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var comment models.Comment
		if err := rows.Scan(&comment.ID, &comment.AuthorID, &comment.Content, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

// Update modifies a post's content and image fields.
func (r *PostgresPostRepository) Update(ctx context.Context, post models.Post) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE posts
        SET content = $2, image_url = $3, image_status = $4
        WHERE id = $1
    `, post.ID, post.Content, post.ImageURL, post.ImageStatus)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a post along with its likes and comments.
func (r *PostgresPostRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AddComment appends a comment to the post.
func (r *PostgresPostRepository) AddComment(ctx context.Context, postID string, comment models.Comment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO post_comments (id, post_id, author_id, content, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, comment.ID, postID, comment.AuthorID, comment.Content, comment.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert comment: %w", err)
	}

	return nil
}

// AddLike records a like. Liking a post twice is a no-op.
func (r *PostgresPostRepository) AddLike(ctx context.Context, postID, userID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO post_likes (post_id, user_id, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (post_id, user_id) DO NOTHING
    `, postID, userID, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert like: %w", err)
	}

	return nil
}

// RemoveLike withdraws a like. Removing an absent like is a no-op.
func (r *PostgresPostRepository) RemoveLike(ctx context.Context, postID, userID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM post_likes
        WHERE post_id = $1 AND user_id = $2
    `, postID, userID); err != nil {
		return fmt.Errorf("delete like: %w", err)
	}

	return nil
}

// ListByAuthors returns all posts by the given authors, newest first, with
// their like sets attached.
func (r *PostgresPostRepository) ListByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	if authorIDs == nil {
		authorIDs = []string{}
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT p.id, p.author_id, p.content, p.image_url, p.image_status, p.created_at,
               COALESCE(ARRAY_AGG(pl.user_id ORDER BY pl.created_at) FILTER (WHERE pl.user_id IS NOT NULL), '{}')
        FROM posts p
        LEFT JOIN post_likes pl ON pl.post_id = p.id
        WHERE p.author_id = ANY($1)
        GROUP BY p.id, p.author_id, p.content, p.image_url, p.image_status, p.created_at
        ORDER BY p.created_at DESC, p.id
    `, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("query posts by authors: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ListLikedOrByAuthors returns posts authored by any of the given accounts or
// carrying at least one like, ordered by like count descending with newer
// posts breaking ties.
func (r *PostgresPostRepository) ListLikedOrByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	if authorIDs == nil {
		authorIDs = []string{}
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT p.id, p.author_id, p.content, p.image_url, p.image_status, p.created_at,
               COALESCE(ARRAY_AGG(pl.user_id ORDER BY pl.created_at) FILTER (WHERE pl.user_id IS NOT NULL), '{}')
        FROM posts p
        LEFT JOIN post_likes pl ON pl.post_id = p.id
        GROUP BY p.id, p.author_id, p.content, p.image_url, p.image_status, p.created_at
        HAVING p.author_id = ANY($1) OR COUNT(pl.user_id) > 0
        ORDER BY COUNT(pl.user_id) DESC, p.created_at DESC, p.id
    `, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("query discovery candidates: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

func collectPosts(rows pgx.Rows) ([]models.Post, error) {
	var posts []models.Post
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.Content, &post.ImageURL, &post.ImageStatus, &post.CreatedAt, &post.Likes); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

// MarkImageReady records the stored location for a post's image once the
// upload finishes.
func (r *PostgresPostRepository) MarkImageReady(ctx context.Context, postID, location string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE posts
        SET image_status = $2, image_url = $3
        WHERE id = $1
    `, postID, models.ImageStatusReady, location)
	if err != nil {
		return fmt.Errorf("update post image ready: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkImageFailed records a failed upload attempt for the post's image.
func (r *PostgresPostRepository) MarkImageFailed(ctx context.Context, postID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE posts
        SET image_status = $2, image_url = ''
        WHERE id = $1
    `, postID, models.ImageStatusFailed)
	if err != nil {
		return fmt.Errorf("update post image failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ RelationshipRepository = (*PostgresRelationshipRepository)(nil)
var _ PostRepository = (*PostgresPostRepository)(nil)
