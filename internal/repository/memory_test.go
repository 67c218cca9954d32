package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locolive/socialgraph/internal/domain"
)

func seedUser(t *testing.T, repo *MemoryRepository, id, username string) {
	t.Helper()
	_, err := repo.CreateUser(context.Background(), domain.CreateUserParams{
		ID:       id,
		Email:    username + "@example.com",
		FullName: username,
		Username: username,
	})
	require.NoError(t, err)
}

func TestMemoryRepository_CreateUserConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedUser(t, repo, "u1", "alice")

	_, err := repo.CreateUser(ctx, domain.CreateUserParams{ID: "u1", Username: "other"})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	_, err = repo.CreateUser(ctx, domain.CreateUserParams{ID: "u2", Username: "alice"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	taken, err := repo.UsernameExists(ctx, "alice", "u1")
	require.NoError(t, err)
	assert.False(t, taken, "a user's own username does not count as taken")
}

func TestMemoryRepository_FollowEdgesAppearOnBothSides(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedUser(t, repo, "a", "alice")
	seedUser(t, repo, "b", "bob")

	added, err := repo.AddFollow(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddFollow(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, added)

	a, err := repo.GetUserByID(ctx, "a")
	require.NoError(t, err)
	b, err := repo.GetUserByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, a.Following)
	assert.Empty(t, a.Followers)
	assert.Equal(t, []string{"a"}, b.Followers)

	require.NoError(t, repo.RemoveFollow(ctx, "a", "b"))
	b, err = repo.GetUserByID(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, b.Followers)
}

func TestMemoryRepository_PairKeyBlocksEitherDirection(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedUser(t, repo, "a", "alice")
	seedUser(t, repo, "b", "bob")

	_, err := repo.CreateConnectionRequest(ctx, domain.CreateConnectionRequestParams{
		ID: uuid.New(), FromUserID: "a", ToUserID: "b", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = repo.CreateConnectionRequest(ctx, domain.CreateConnectionRequestParams{
		ID: uuid.New(), FromUserID: "b", ToUserID: "a", CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrConnectionRequestExists)

	_, err = repo.GetRequest(ctx, "b", "a")
	assert.ErrorIs(t, err, domain.ErrConnectionRequestNotFound)
}

func TestMemoryRepository_AcceptWritesBothEdges(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedUser(t, repo, "a", "alice")
	seedUser(t, repo, "b", "bob")

	req, err := repo.CreateConnectionRequest(ctx, domain.CreateConnectionRequestParams{
		ID: uuid.New(), FromUserID: "a", ToUserID: "b", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	accepted, err := repo.AcceptConnectionRequest(ctx, req.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusAccepted, accepted.Status)
	assert.NotNil(t, accepted.AcceptedAt)

	_, err = repo.AcceptConnectionRequest(ctx, req.ID, time.Now())
	assert.ErrorIs(t, err, domain.ErrConnectionRequestNotFound)

	a, _ := repo.GetUserByID(ctx, "a")
	b, _ := repo.GetUserByID(ctx, "b")
	assert.Equal(t, []string{"b"}, a.Connections)
	assert.Equal(t, []string{"a"}, b.Connections)
}

func TestMemoryRepository_TombstonedUsersAreHidden(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedUser(t, repo, "a", "alice")
	seedUser(t, repo, "b", "bob")

	_, err := repo.AddFollow(ctx, "b", "a")
	require.NoError(t, err)
	_, err = repo.CreateConnectionRequest(ctx, domain.CreateConnectionRequestParams{
		ID: uuid.New(), FromUserID: "b", ToUserID: "a", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	repo.DeactivateUser("b")

	exists, err := repo.UserExists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, exists)

	followers, err := repo.ListFollowers(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, followers)

	pending, err := repo.ListPendingIncoming(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, pending)

	results, err := repo.SearchUsers(ctx, "bob", "a")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryRepository_NotificationClaims(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	id := uuid.New()

	claimed, err := repo.ClaimNotificationDelivery(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimNotificationDelivery(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repo.ReleaseNotificationDelivery(ctx, id))
	claimed, err = repo.ClaimNotificationDelivery(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryRepository_UnpublishedRequests(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedUser(t, repo, "a", "alice")
	seedUser(t, repo, "b", "bob")
	seedUser(t, repo, "c", "carol")

	old := time.Now().Add(-time.Hour)
	first, err := repo.CreateConnectionRequest(ctx, domain.CreateConnectionRequestParams{
		ID: uuid.New(), FromUserID: "a", ToUserID: "b", CreatedAt: old,
	})
	require.NoError(t, err)
	second, err := repo.CreateConnectionRequest(ctx, domain.CreateConnectionRequestParams{
		ID: uuid.New(), FromUserID: "a", ToUserID: "c", CreatedAt: old.Add(time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, repo.MarkRequestPublished(ctx, second.ID, time.Now()))

	reqs, err := repo.ListUnpublishedRequests(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, first.ID, reqs[0].ID)
}
