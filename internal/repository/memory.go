package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/locolive/socialgraph/internal/domain"
)

type edge struct {
	from, to  string
	createdAt time.Time
}

// MemoryRepository is an in-process implementation of the domain
// repositories. All methods are safe for concurrent use.
type MemoryRepository struct {
	mu          sync.RWMutex
	now         func() time.Time
	users       map[string]*domain.User
	follows     map[[2]string]time.Time
	connections map[[2]string]time.Time
	requests    map[uuid.UUID]*domain.ConnectionRequest
	pairs       map[string]uuid.UUID
	posts       map[string][]*domain.Post
	deliveries  map[uuid.UUID]time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:         time.Now,
		users:       make(map[string]*domain.User),
		follows:     make(map[[2]string]time.Time),
		connections: make(map[[2]string]time.Time),
		requests:    make(map[uuid.UUID]*domain.ConnectionRequest),
		pairs:       make(map[string]uuid.UUID),
		posts:       make(map[string][]*domain.Post),
		deliveries:  make(map[uuid.UUID]time.Time),
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) CreateUser(ctx context.Context, params domain.CreateUserParams) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[params.ID]; ok {
		return nil, domain.ErrUserAlreadyExists
	}
	if r.usernameHeld(params.Username, params.ID) {
		return nil, domain.ErrUsernameTaken
	}

	now := r.now().UTC()
	r.users[params.ID] = &domain.User{
		ID:             params.ID,
		Email:          params.Email,
		FullName:       params.FullName,
		Username:       params.Username,
		ProfilePicture: params.ProfilePicture,
		Provisional:    params.Provisional,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return r.project(params.ID), nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.active(id) {
		return nil, domain.ErrUserNotFound
	}
	return r.project(id), nil
}

func (r *MemoryRepository) UserExists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active(id), nil
}

func (r *MemoryRepository) UsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usernameHeld(username, excludeID), nil
}

func (r *MemoryRepository) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active(id) {
		return nil, domain.ErrUserNotFound
	}
	if update.Username != nil && r.usernameHeld(*update.Username, id) {
		return nil, domain.ErrUsernameTaken
	}

	u := r.users[id]
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&u.Email, update.Email)
	set(&u.FullName, update.FullName)
	set(&u.Username, update.Username)
	set(&u.ProfilePicture, update.ProfilePicture)
	set(&u.CoverPhoto, update.CoverPhoto)
	set(&u.Bio, update.Bio)
	set(&u.Location, update.Location)
	if update.Provisional != nil {
		u.Provisional = *update.Provisional
	}
	u.UpdatedAt = r.now().UTC()
	return r.project(id), nil
}

// DeactivateUser tombstones a user
func (r *MemoryRepository) DeactivateUser(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.IsActive = false
	}
}

func (r *MemoryRepository) SearchUsers(ctx context.Context, query, excludeID string) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	users := []*domain.User{}
	for id, u := range r.users {
		if !u.IsActive || id == excludeID {
			continue
		}
		for _, field := range []string{u.Username, u.Email, u.FullName, u.Location} {
			if strings.Contains(strings.ToLower(field), q) {
				users = append(users, r.project(id))
				break
			}
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// AddPost stores a post for profile queries
func (r *MemoryRepository) AddPost(post domain.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = r.now().UTC()
	}
	r.posts[post.UserID] = append(r.posts[post.UserID], &post)
}

func (r *MemoryRepository) ListPostsByUser(ctx context.Context, userID string) ([]*domain.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	posts := make([]*domain.Post, 0, len(r.posts[userID]))
	for _, p := range r.posts[userID] {
		cp := *p
		posts = append(posts, &cp)
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts, nil
}

func (r *MemoryRepository) AddFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[followerID]; !ok {
		return false, domain.ErrUserNotFound
	}
	if _, ok := r.users[followeeID]; !ok {
		return false, domain.ErrUserNotFound
	}
	key := [2]string{followerID, followeeID}
	if _, ok := r.follows[key]; ok {
		return false, nil
	}
	r.follows[key] = r.now().UTC()
	return true, nil
}

func (r *MemoryRepository) RemoveFollow(ctx context.Context, followerID, followeeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.follows, [2]string{followerID, followeeID})
	return nil
}

func (r *MemoryRepository) CountRequestsSince(ctx context.Context, fromUserID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, req := range r.requests {
		if req.FromUserID == fromUserID && req.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) GetRequestByPair(ctx context.Context, pairKey string) (*domain.ConnectionRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.pairs[pairKey]
	if !ok {
		return nil, domain.ErrConnectionRequestNotFound
	}
	return copyRequest(r.requests[id]), nil
}

func (r *MemoryRepository) GetRequest(ctx context.Context, fromUserID, toUserID string) (*domain.ConnectionRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.pairs[domain.PairKey(fromUserID, toUserID)]
	if !ok {
		return nil, domain.ErrConnectionRequestNotFound
	}
	req := r.requests[id]
	if req.FromUserID != fromUserID {
		return nil, domain.ErrConnectionRequestNotFound
	}
	return copyRequest(req), nil
}

func (r *MemoryRepository) CreateConnectionRequest(ctx context.Context, params domain.CreateConnectionRequestParams) (*domain.ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[params.FromUserID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	if _, ok := r.users[params.ToUserID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	key := domain.PairKey(params.FromUserID, params.ToUserID)
	if _, ok := r.pairs[key]; ok {
		return nil, domain.ErrConnectionRequestExists
	}

	req := &domain.ConnectionRequest{
		ID:         params.ID,
		FromUserID: params.FromUserID,
		ToUserID:   params.ToUserID,
		Status:     domain.ConnectionStatusPending,
		CreatedAt:  params.CreatedAt,
	}
	r.requests[req.ID] = req
	r.pairs[key] = req.ID
	return copyRequest(req), nil
}

func (r *MemoryRepository) AcceptConnectionRequest(ctx context.Context, requestID uuid.UUID, acceptedAt time.Time) (*domain.ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok || req.Status != domain.ConnectionStatusPending {
		return nil, domain.ErrConnectionRequestNotFound
	}
	req.Status = domain.ConnectionStatusAccepted
	req.AcceptedAt = &acceptedAt
	for _, key := range [][2]string{{req.FromUserID, req.ToUserID}, {req.ToUserID, req.FromUserID}} {
		if _, exists := r.connections[key]; !exists {
			r.connections[key] = acceptedAt
		}
	}
	return copyRequest(req), nil
}

func (r *MemoryRepository) MarkRequestPublished(ctx context.Context, requestID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[requestID]; ok && req.EventPublishedAt == nil {
		req.EventPublishedAt = &at
	}
	return nil
}

func (r *MemoryRepository) ListUnpublishedRequests(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.ConnectionRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reqs := []*domain.ConnectionRequest{}
	for _, req := range r.requests {
		if req.EventPublishedAt == nil && req.CreatedAt.Before(createdBefore) {
			reqs = append(reqs, copyRequest(req))
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	return reqs, nil
}

func (r *MemoryRepository) ListConnections(ctx context.Context, userID string) ([]*domain.UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summaries(r.outgoing(r.connections, userID)), nil
}

func (r *MemoryRepository) ListFollowers(ctx context.Context, userID string) ([]*domain.UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summaries(r.incoming(r.follows, userID)), nil
}

func (r *MemoryRepository) ListFollowing(ctx context.Context, userID string) ([]*domain.UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summaries(r.outgoing(r.follows, userID)), nil
}

func (r *MemoryRepository) ListPendingIncoming(ctx context.Context, userID string) ([]*domain.ConnectionRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reqs := []*domain.ConnectionRequest{}
	for _, req := range r.requests {
		if req.ToUserID != userID || req.Status != domain.ConnectionStatusPending || !r.active(req.FromUserID) {
			continue
		}
		cp := copyRequest(req)
		cp.Sender = r.users[req.FromUserID].ToSummary()
		reqs = append(reqs, cp)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

func (r *MemoryRepository) ClaimNotificationDelivery(ctx context.Context, requestID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deliveries[requestID]; ok {
		return false, nil
	}
	r.deliveries[requestID] = r.now().UTC()
	return true, nil
}

func (r *MemoryRepository) ReleaseNotificationDelivery(ctx context.Context, requestID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deliveries, requestID)
	return nil
}

// project builds the API view of a stored user. Caller holds the lock.
func (r *MemoryRepository) project(id string) *domain.User {
	cp := *r.users[id]
	cp.Followers = ids(r.incoming(r.follows, id))
	cp.Following = ids(r.outgoing(r.follows, id))
	cp.Connections = ids(r.outgoing(r.connections, id))
	return &cp
}

func (r *MemoryRepository) active(id string) bool {
	u, ok := r.users[id]
	return ok && u.IsActive
}

func (r *MemoryRepository) usernameHeld(username, excludeID string) bool {
	for id, u := range r.users {
		if id != excludeID && u.Username == username {
			return true
		}
	}
	return false
}

// outgoing returns active targets of edges from id, oldest edge first
func (r *MemoryRepository) outgoing(edges map[[2]string]time.Time, id string) []edge {
	var out []edge
	for key, at := range edges {
		if key[0] == id && r.active(key[1]) {
			out = append(out, edge{from: key[0], to: key[1], createdAt: at})
		}
	}
	sortEdges(out)
	return out
}

// incoming returns active sources of edges into id, oldest edge first
func (r *MemoryRepository) incoming(edges map[[2]string]time.Time, id string) []edge {
	var in []edge
	for key, at := range edges {
		if key[1] == id && r.active(key[0]) {
			// report the peer as "to" so callers read one field
			in = append(in, edge{from: key[1], to: key[0], createdAt: at})
		}
	}
	sortEdges(in)
	return in
}

func (r *MemoryRepository) summaries(edges []edge) []*domain.UserSummary {
	out := make([]*domain.UserSummary, 0, len(edges))
	for _, e := range edges {
		out = append(out, r.users[e.to].ToSummary())
	}
	return out
}

func sortEdges(edges []edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].createdAt.Equal(edges[j].createdAt) {
			return edges[i].to < edges[j].to
		}
		return edges[i].createdAt.Before(edges[j].createdAt)
	})
}

func ids(edges []edge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.to)
	}
	return out
}

func copyRequest(req *domain.ConnectionRequest) *domain.ConnectionRequest {
	cp := *req
	return &cp
}
