package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const notificationTypeConnectionRequest = "connection_request"

type NotificationRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	// ClaimNotificationDelivery records requestID as delivered and reports
	// false when it was claimed before.
	ClaimNotificationDelivery(ctx context.Context, requestID uuid.UUID) (bool, error)
	ReleaseNotificationDelivery(ctx context.Context, requestID uuid.UUID) error
}

// PushSender delivers a push message to every device subscribed to topic
type PushSender interface {
	SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error
}

// UserTopic is the push topic a user's devices subscribe to. Characters FCM
// rejects in topic names are replaced with '_'.
func UserTopic(userID string) string {
	return "user_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.', r == '~', r == '%':
			return r
		}
		return '_'
	}, userID)
}

type NotificationService struct {
	repo   NotificationRepository
	push   PushSender
	logger *zap.Logger
}

func NewNotificationService(repo NotificationRepository, push PushSender, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:   repo,
		push:   push,
		logger: logger,
	}
}

// HandleConnectionRequested notifies the receiver of a new connection request.
// Redelivered events are dropped once a delivery has been claimed.
func (s *NotificationService) HandleConnectionRequested(ctx context.Context, event ConnectionRequestedEvent) error {
	claimed, err := s.repo.ClaimNotificationDelivery(ctx, event.RequestID)
	if err != nil {
		return upstream("claim notification", err)
	}
	if !claimed {
		s.logger.Debug("duplicate connection request event", zap.String("request_id", event.RequestID.String()))
		return nil
	}

	if err := s.deliver(ctx, event); err != nil {
		if rerr := s.repo.ReleaseNotificationDelivery(ctx, event.RequestID); rerr != nil {
			s.logger.Error("failed to release notification claim",
				zap.String("request_id", event.RequestID.String()), zap.Error(rerr))
		}
		return err
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, event ConnectionRequestedEvent) error {
	sender, err := s.repo.GetUserByID(ctx, event.FromUserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// sender deleted since; nothing meaningful to show
			s.logger.Info("skipping notification for missing sender",
				zap.String("request_id", event.RequestID.String()))
			return nil
		}
		return upstream("load sender", err)
	}

	if s.push == nil {
		s.logger.Debug("push disabled, connection request notification dropped",
			zap.String("request_id", event.RequestID.String()))
		return nil
	}

	data := map[string]string{
		"type":         notificationTypeConnectionRequest,
		"request_id":   event.RequestID.String(),
		"from_user_id": event.FromUserID,
	}
	body := fmt.Sprintf("%s wants to connect with you", sender.DisplayName())
	if err := s.push.SendToTopic(ctx, UserTopic(event.ToUserID), "New connection request", body, data); err != nil {
		return upstream("send push", err)
	}
	s.logger.Info("connection request notification sent",
		zap.String("request_id", event.RequestID.String()),
		zap.String("to_user_id", event.ToUserID),
	)
	return nil
}
