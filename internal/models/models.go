package models

import "time"

// User represents an account within CircleUp.
type User struct {
	ID        string
	Username  string
	Email     string
	Password  string
	Bio       string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FriendRequest is a directed invitation from one account to another. It is
// stored against the recipient, keyed by the sender, and only ever moves from
// pending to approved.
type FriendRequest struct {
	Sender      string
	Recipient   string
	Approved    bool
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// Post is authored content with social reactions attached. Likes behave as a
// set of account ids; Comments are append-only.
type Post struct {
	ID          string
	AuthorID    string
	Content     string
	ImageURL    string
	ImageStatus string
	Likes       []string
	Comments    []Comment
	CreatedAt   time.Time
}

// Comment is a single reaction appended to a post.
type Comment struct {
	ID        string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

const (
	ImageStatusNone    = "none"
	ImageStatusPending = "pending"
	ImageStatusReady   = "ready"
	ImageStatusFailed  = "failed"
)

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
