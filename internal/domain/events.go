package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TopicConnectionRequested carries one message per newly created connection request.
const TopicConnectionRequested = "connection.request.created"

// ConnectionRequestedEvent is published at-least-once; consumers dedupe on RequestID.
type ConnectionRequestedEvent struct {
	RequestID  uuid.UUID `json:"request_id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func newConnectionRequestedEvent(req *ConnectionRequest) ConnectionRequestedEvent {
	return ConnectionRequestedEvent{
		RequestID:  req.ID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		CreatedAt:  req.CreatedAt,
	}
}

type EventPublisher interface {
	PublishConnectionRequested(ctx context.Context, event ConnectionRequestedEvent) error
}

// ConnectionRequestHandler consumes connection request events
type ConnectionRequestHandler interface {
	HandleConnectionRequested(ctx context.Context, event ConnectionRequestedEvent) error
}
