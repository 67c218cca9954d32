package domain

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/metrics"
)

var ErrAlreadyFollowing = errors.New("already following this user")

// FollowRepository stores follow edges. A single edge row backs both the
// follower's following set and the target's followers set, so adding or
// removing it is one atomic write.
type FollowRepository interface {
	UserExists(ctx context.Context, id string) (bool, error)
	AddFollow(ctx context.Context, followerID, followeeID string) (bool, error)
	RemoveFollow(ctx context.Context, followerID, followeeID string) error
}

type FollowService struct {
	repo   FollowRepository
	logger *zap.Logger
}

func NewFollowService(repo FollowRepository, logger *zap.Logger) *FollowService {
	return &FollowService{
		repo:   repo,
		logger: logger,
	}
}

// Follow adds target to actor's following set and actor to target's followers.
func (s *FollowService) Follow(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return ErrSelfTarget
	}
	if err := requireUser(ctx, s.repo, targetID); err != nil {
		return err
	}

	added, err := s.repo.AddFollow(ctx, actorID, targetID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return upstream("add follow", err)
	}
	if !added {
		metrics.RecordFollow("already_following")
		return ErrAlreadyFollowing
	}

	metrics.RecordFollow("followed")
	s.logger.Debug("follow added", zap.String("follower_id", actorID), zap.String("followee_id", targetID))
	return nil
}

// Unfollow removes the edge. Removing an absent edge is not an error.
func (s *FollowService) Unfollow(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return ErrSelfTarget
	}
	if err := s.repo.RemoveFollow(ctx, actorID, targetID); err != nil {
		return upstream("remove follow", err)
	}
	metrics.RecordFollow("unfollowed")
	return nil
}
