package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrSelfTarget          = errors.New("cannot target your own account")
	ErrValidationFailed    = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// upstream marks an infrastructure failure as retryable for the caller.
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

// User is a user identity keyed by the identity provider's subject id.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Username       string    `json:"username"`
	ProfilePicture string    `json:"profile_picture"`
	CoverPhoto     string    `json:"cover_photo"`
	Bio            string    `json:"bio"`
	Location       string    `json:"location"`
	Followers      []string  `json:"followers"`
	Following      []string  `json:"following"`
	Connections    []string  `json:"connections"`
	Provisional    bool      `json:"is_provisional"`
	IsActive       bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserSummary is the public card of a user used in relationship lists
type UserSummary struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	Bio            string `json:"bio,omitempty"`
	Location       string `json:"location,omitempty"`
}

// ToSummary converts a User to a UserSummary
func (u *User) ToSummary() *UserSummary {
	return &UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName,
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		Location:       u.Location,
	}
}

// DisplayName returns the full name, falling back to the username
func (u *User) DisplayName() string {
	if u.FullName != "" && u.FullName != DefaultFullName {
		return u.FullName
	}
	return u.Username
}

// Post is read-only context for profile queries
type Post struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	ImageURLs []string  `json:"image_urls"`
	PostType  string    `json:"post_type"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserParams holds parameters for user creation
type CreateUserParams struct {
	ID             string
	Email          string
	FullName       string
	Username       string
	ProfilePicture string
	Provisional    bool
}

// UserUpdate holds a partial update; nil fields are left untouched.
type UserUpdate struct {
	Email          *string
	FullName       *string
	Username       *string
	ProfilePicture *string
	CoverPhoto     *string
	Bio            *string
	Location       *string
	Provisional    *bool
}

// IsEmpty reports whether the update would change nothing
func (u UserUpdate) IsEmpty() bool {
	return u.Email == nil && u.FullName == nil && u.Username == nil &&
		u.ProfilePicture == nil && u.CoverPhoto == nil && u.Bio == nil &&
		u.Location == nil && u.Provisional == nil
}

// UserRepository is the identity record access shared by all services
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	UserExists(ctx context.Context, id string) (bool, error)
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
	UsernameExists(ctx context.Context, username, excludeID string) (bool, error)
}

// requireUser checks that id names an active user
func requireUser(ctx context.Context, repo interface {
	UserExists(ctx context.Context, id string) (bool, error)
}, id string) error {
	exists, err := repo.UserExists(ctx, id)
	if err != nil {
		return upstream("lookup user", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
