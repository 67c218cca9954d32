package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConnectionRequestNotFound = errors.New("connection request not found")
	ErrConnectionRequestExists   = errors.New("connection request already exists")
	ErrAlreadyConnected          = errors.New("already connected with this user")
	ErrRateLimited               = errors.New("too many connection requests in the last 24 hours")
)

type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
)

type ConnectionRequest struct {
	ID               uuid.UUID        `json:"id"`
	FromUserID       string           `json:"from_user_id"`
	ToUserID         string           `json:"to_user_id"`
	Status           ConnectionStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	AcceptedAt       *time.Time       `json:"accepted_at,omitempty"`
	EventPublishedAt *time.Time       `json:"-"`

	// Sender is populated by incoming-request listings
	Sender *UserSummary `json:"sender,omitempty"`
}

// PairKey is the canonical key of the unordered pair {a, b}. A request in
// either direction between the same two users shares one key.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

type CreateConnectionRequestParams struct {
	ID         uuid.UUID
	FromUserID string
	ToUserID   string
	CreatedAt  time.Time
}

type ConnectionRepository interface {
	UserExists(ctx context.Context, id string) (bool, error)
	CountRequestsSince(ctx context.Context, fromUserID string, since time.Time) (int, error)
	GetRequestByPair(ctx context.Context, pairKey string) (*ConnectionRequest, error)
	GetRequest(ctx context.Context, fromUserID, toUserID string) (*ConnectionRequest, error)
	// CreateConnectionRequest returns ErrConnectionRequestExists when a request
	// for the same pair already exists in either direction.
	CreateConnectionRequest(ctx context.Context, params CreateConnectionRequestParams) (*ConnectionRequest, error)
	// AcceptConnectionRequest marks a pending request accepted and writes both
	// connection edges as one unit.
	AcceptConnectionRequest(ctx context.Context, requestID uuid.UUID, acceptedAt time.Time) (*ConnectionRequest, error)
	MarkRequestPublished(ctx context.Context, requestID uuid.UUID, at time.Time) error
	ListUnpublishedRequests(ctx context.Context, createdBefore time.Time, limit int) ([]*ConnectionRequest, error)

	ListConnections(ctx context.Context, userID string) ([]*UserSummary, error)
	ListFollowers(ctx context.Context, userID string) ([]*UserSummary, error)
	ListFollowing(ctx context.Context, userID string) ([]*UserSummary, error)
	// ListPendingIncoming omits requests whose sender no longer resolves.
	ListPendingIncoming(ctx context.Context, userID string) ([]*ConnectionRequest, error)
}

// ConnectionsView is everything ListConnections returns for one user
type ConnectionsView struct {
	Connections     []*UserSummary `json:"connections"`
	Followers       []*UserSummary `json:"followers"`
	Following       []*UserSummary `json:"following"`
	PendingIncoming []*UserSummary `json:"pending_connections"`
}
