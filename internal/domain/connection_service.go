package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/metrics"
)

const (
	DefaultRequestLimit  = 20
	DefaultRequestWindow = 24 * time.Hour

	relayBatchSize = 100
)

type SendStatus string

const (
	// SendCreated means a new pending request was stored
	SendCreated SendStatus = "created"
	// SendPending means a request between the pair is already in flight
	SendPending SendStatus = "pending"
)

type SendResult struct {
	Status  SendStatus         `json:"status"`
	Request *ConnectionRequest `json:"request,omitempty"`
}

type ConnectionService struct {
	repo   ConnectionRepository
	events EventPublisher
	logger *zap.Logger
	limit  int
	window time.Duration
	now    func() time.Time
}

type ConnectionOption func(*ConnectionService)

// WithRequestLimit overrides how many requests a sender may create per window
func WithRequestLimit(limit int, window time.Duration) ConnectionOption {
	return func(s *ConnectionService) {
		if limit > 0 {
			s.limit = limit
		}
		if window > 0 {
			s.window = window
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) ConnectionOption {
	return func(s *ConnectionService) {
		s.now = now
	}
}

func NewConnectionService(repo ConnectionRepository, events EventPublisher, logger *zap.Logger, opts ...ConnectionOption) *ConnectionService {
	s := &ConnectionService{
		repo:   repo,
		events: events,
		logger: logger,
		limit:  DefaultRequestLimit,
		window: DefaultRequestWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendRequest creates a pending request from sender to receiver, or reports
// the state of the request that already exists between them.
func (s *ConnectionService) SendRequest(ctx context.Context, senderID, receiverID string) (*SendResult, error) {
	if senderID == receiverID {
		return nil, ErrSelfTarget
	}
	if err := requireUser(ctx, s.repo, receiverID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sent, err := s.repo.CountRequestsSince(ctx, senderID, now.Add(-s.window))
	if err != nil {
		return nil, upstream("count connection requests", err)
	}
	if sent >= s.limit {
		metrics.RecordConnectionRequest("rate_limited")
		return nil, ErrRateLimited
	}

	pairKey := PairKey(senderID, receiverID)
	existing, err := s.repo.GetRequestByPair(ctx, pairKey)
	switch {
	case err == nil:
		return s.existingOutcome(existing)
	case !errors.Is(err, ErrConnectionRequestNotFound):
		return nil, upstream("lookup connection request", err)
	}

	req, err := s.repo.CreateConnectionRequest(ctx, CreateConnectionRequestParams{
		ID:         uuid.New(),
		FromUserID: senderID,
		ToUserID:   receiverID,
		CreatedAt:  now,
	})
	if errors.Is(err, ErrConnectionRequestExists) {
		// lost a race with a concurrent send for the same pair
		existing, err = s.repo.GetRequestByPair(ctx, pairKey)
		if err != nil {
			return nil, upstream("lookup connection request", err)
		}
		return s.existingOutcome(existing)
	}
	if err != nil {
		return nil, upstream("create connection request", err)
	}

	metrics.RecordConnectionRequest("created")
	s.logger.Info("connection request created",
		zap.String("request_id", req.ID.String()),
		zap.String("from_user_id", senderID),
		zap.String("to_user_id", receiverID),
	)
	s.publish(ctx, req)

	return &SendResult{Status: SendCreated, Request: req}, nil
}

func (s *ConnectionService) existingOutcome(req *ConnectionRequest) (*SendResult, error) {
	if req.Status == ConnectionStatusAccepted {
		metrics.RecordConnectionRequest("already_connected")
		return nil, ErrAlreadyConnected
	}
	metrics.RecordConnectionRequest("pending")
	return &SendResult{Status: SendPending, Request: req}, nil
}

// publish is fire-and-forget. A failed publish leaves the request unmarked
// so the relay picks it up.
func (s *ConnectionService) publish(ctx context.Context, req *ConnectionRequest) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishConnectionRequested(ctx, newConnectionRequestedEvent(req)); err != nil {
		s.logger.Warn("failed to publish connection request event",
			zap.String("request_id", req.ID.String()), zap.Error(err))
		return
	}
	if err := s.repo.MarkRequestPublished(ctx, req.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to mark connection request published",
			zap.String("request_id", req.ID.String()), zap.Error(err))
	}
}

// AcceptRequest accepts the pending request sent by requester to accepter.
// Only the receiver may accept; a request in the opposite direction is not found.
func (s *ConnectionService) AcceptRequest(ctx context.Context, accepterID, requesterID string) (*ConnectionRequest, error) {
	req, err := s.repo.GetRequest(ctx, requesterID, accepterID)
	if err != nil {
		if errors.Is(err, ErrConnectionRequestNotFound) {
			return nil, err
		}
		return nil, upstream("lookup connection request", err)
	}
	if req.Status != ConnectionStatusPending {
		return nil, ErrConnectionRequestNotFound
	}

	accepted, err := s.repo.AcceptConnectionRequest(ctx, req.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrConnectionRequestNotFound) {
			return nil, err
		}
		return nil, upstream("accept connection request", err)
	}

	metrics.RecordConnectionRequest("accepted")
	s.logger.Info("connection request accepted",
		zap.String("request_id", accepted.ID.String()),
		zap.String("from_user_id", requesterID),
		zap.String("to_user_id", accepterID),
	)
	return accepted, nil
}

// ListConnections returns the user's relationship sets and the senders of
// pending incoming requests.
func (s *ConnectionService) ListConnections(ctx context.Context, userID string) (*ConnectionsView, error) {
	if err := requireUser(ctx, s.repo, userID); err != nil {
		return nil, err
	}

	view := &ConnectionsView{}
	var err error
	if view.Connections, err = s.repo.ListConnections(ctx, userID); err != nil {
		return nil, upstream("list connections", err)
	}
	if view.Followers, err = s.repo.ListFollowers(ctx, userID); err != nil {
		return nil, upstream("list followers", err)
	}
	if view.Following, err = s.repo.ListFollowing(ctx, userID); err != nil {
		return nil, upstream("list following", err)
	}

	pending, err := s.repo.ListPendingIncoming(ctx, userID)
	if err != nil {
		return nil, upstream("list pending requests", err)
	}
	view.PendingIncoming = make([]*UserSummary, 0, len(pending))
	for _, req := range pending {
		if req.Sender == nil {
			continue
		}
		view.PendingIncoming = append(view.PendingIncoming, req.Sender)
	}
	return view, nil
}

// RelayUnpublished republishes events for requests older than grace whose
// publish was never confirmed.
func (s *ConnectionService) RelayUnpublished(ctx context.Context, grace time.Duration) (int, error) {
	if s.events == nil {
		return 0, nil
	}
	reqs, err := s.repo.ListUnpublishedRequests(ctx, s.now().UTC().Add(-grace), relayBatchSize)
	if err != nil {
		return 0, upstream("list unpublished requests", err)
	}

	relayed := 0
	for _, req := range reqs {
		if err := s.events.PublishConnectionRequested(ctx, newConnectionRequestedEvent(req)); err != nil {
			return relayed, upstream("relay connection request event", err)
		}
		if err := s.repo.MarkRequestPublished(ctx, req.ID, s.now().UTC()); err != nil {
			return relayed, upstream("mark connection request published", err)
		}
		relayed++
	}
	return relayed, nil
}

// StartEventRelay runs RelayUnpublished every interval until ctx is done
func (s *ConnectionService) StartEventRelay(ctx context.Context, interval, grace time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.RelayUnpublished(ctx, grace)
				if err != nil {
					s.logger.Warn("connection request relay failed", zap.Int("relayed", n), zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("relayed connection request events", zap.Int("count", n))
				}
			}
		}
	}()
}
