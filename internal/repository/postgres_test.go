package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locolive/socialgraph/internal/domain"
)

// newTestPostgres connects to TEST_DATABASE_URL and resets the schema.
// Tests are skipped when it is unset.
func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS notification_deliveries, posts, connection_requests, connections, follows, users CASCADE`)
	require.NoError(t, err)

	repo := NewPostgresRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func pgUser(t *testing.T, repo *PostgresRepository, id, username string) {
	t.Helper()
	_, err := repo.CreateUser(context.Background(), domain.CreateUserParams{
		ID:       id,
		Email:    username + "@example.com",
		FullName: username,
		Username: username,
	})
	require.NoError(t, err)
}

func TestPostgresRepository_UserConstraints(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	pgUser(t, repo, "u1", "alice")

	_, err := repo.CreateUser(ctx, domain.CreateUserParams{ID: "u1", Username: "someone"})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	_, err = repo.CreateUser(ctx, domain.CreateUserParams{ID: "u2", Username: "alice"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	bio := "hello"
	updated, err := repo.UpdateUser(ctx, "u1", domain.UserUpdate{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.Bio)
	assert.Equal(t, "alice", updated.Username)
	assert.Empty(t, updated.Followers)
}

func TestPostgresRepository_GraphRoundTrip(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	pgUser(t, repo, "a", "alice")
	pgUser(t, repo, "b", "bob")

	added, err := repo.AddFollow(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.AddFollow(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, added)

	req, err := repo.CreateConnectionRequest(ctx, domain.CreateConnectionRequestParams{
		ID: uuid.New(), FromUserID: "a", ToUserID: "b", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = repo.CreateConnectionRequest(ctx, domain.CreateConnectionRequestParams{
		ID: uuid.New(), FromUserID: "b", ToUserID: "a", CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrConnectionRequestExists)

	pending, err := repo.ListPendingIncoming(ctx, "b")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].Sender.Username)

	_, err = repo.AcceptConnectionRequest(ctx, req.ID, time.Now())
	require.NoError(t, err)

	a, err := repo.GetUserByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, a.Following)
	assert.Equal(t, []string{"b"}, a.Connections)

	b, err := repo.GetUserByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, b.Followers)
	assert.Equal(t, []string{"a"}, b.Connections)
}

func TestPostgresRepository_SearchEscapesWildcards(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	pgUser(t, repo, "a", "alice")
	pgUser(t, repo, "b", "bob_smith")

	users, err := repo.SearchUsers(ctx, "_", "a")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob_smith", users[0].Username)

	users, err = repo.SearchUsers(ctx, "ALI", "b")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}
