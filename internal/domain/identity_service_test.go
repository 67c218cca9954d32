package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/repository"
)

func newIdentity(provider domain.ClaimsProvider) (*domain.IdentityService, *repository.MemoryRepository) {
	repo := repository.NewMemoryRepository()
	return domain.NewIdentityService(repo, provider, zap.NewNop()), repo
}

func TestHydrate_CreatesFromProvider(t *testing.T) {
	provider := &fakeProvider{claims: map[string]*domain.Claims{
		"user_2x9QeT": {Email: "jdoe@example.com", FirstName: "John", LastName: "Doe", ImageURL: "https://img.example.com/jdoe.png"},
	}}
	svc, _ := newIdentity(provider)

	user, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "user_2x9QeT"})
	require.NoError(t, err)
	assert.Equal(t, "user_2x9QeT", user.ID)
	assert.Equal(t, "jdoe", user.Username)
	assert.Equal(t, "jdoe@example.com", user.Email)
	assert.Equal(t, "John Doe", user.FullName)
	assert.Equal(t, "https://img.example.com/jdoe.png", user.ProfilePicture)
	assert.False(t, user.Provisional)
}

func TestHydrate_UsernameCollisionGetsSuffix(t *testing.T) {
	provider := &fakeProvider{claims: map[string]*domain.Claims{
		"u2": {Email: "jdoe@example.com", FirstName: "Jane", LastName: "Doe"},
		"u3": {Email: "jdoe@other.com", FirstName: "Jim", LastName: "Doe"},
	}}
	svc, repo := newIdentity(provider)
	seedUser(t, repo, "u1", "jdoe")

	second, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "jdoe1", second.Username)

	third, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "u3"})
	require.NoError(t, err)
	assert.Equal(t, "jdoe2", third.Username)
}

func TestHydrate_CompleteRecordSkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	svc, repo := newIdentity(provider)
	seedUser(t, repo, "u1", "jdoe")

	user, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
	assert.Zero(t, provider.calls)
}

func TestHydrate_ProviderDownWithoutRecord(t *testing.T) {
	svc, _ := newIdentity(&fakeProvider{err: errUnavailable})

	_, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "u1"})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestHydrate_ProviderDownFallsBackToSession(t *testing.T) {
	svc, _ := newIdentity(&fakeProvider{err: errUnavailable})

	user, err := svc.Hydrate(context.Background(), domain.Claims{
		Subject:  "u1",
		Email:    "Mary.Sue@example.com",
		FullName: "Mary Sue",
	})
	require.NoError(t, err)
	assert.Equal(t, "mary_sue", user.Username)
	assert.Equal(t, "Mary Sue", user.FullName)
	assert.False(t, user.Provisional)
}

func TestHydrate_ProviderDownKeepsProvisionalRecord(t *testing.T) {
	svc, repo := newIdentity(&fakeProvider{err: errUnavailable})
	_, err := repo.CreateUser(context.Background(), domain.CreateUserParams{
		ID:          "user_abc123",
		Email:       "user_abc123" + domain.PlaceholderEmailDomain,
		FullName:    domain.DefaultFullName,
		Username:    "user_abc123",
		Provisional: true,
	})
	require.NoError(t, err)

	user, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "user_abc123"})
	require.NoError(t, err)
	assert.Equal(t, "user_abc123", user.Username)
	assert.True(t, user.Provisional)
}

func TestHydrate_MissingProfileCreatesProvisionalRecord(t *testing.T) {
	provider := &fakeProvider{claims: map[string]*domain.Claims{"user_2xyzQW": {}}}
	svc, _ := newIdentity(provider)

	user, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "user_2xyzQW"})
	require.NoError(t, err)
	assert.Equal(t, "user_2xyzqw", user.Username)
	assert.Equal(t, "user_2xyzqw"+domain.PlaceholderEmailDomain, user.Email)
	assert.Equal(t, domain.DefaultFullName, user.FullName)
	assert.True(t, user.Provisional)
}

func TestHydrate_RefreshesProvisionalRecord(t *testing.T) {
	provider := &fakeProvider{claims: map[string]*domain.Claims{}}
	svc, repo := newIdentity(provider)
	_, err := repo.CreateUser(context.Background(), domain.CreateUserParams{
		ID:             "user_abc123",
		Email:          "user_abc123" + domain.PlaceholderEmailDomain,
		FullName:       domain.DefaultFullName,
		Username:       "user_abc123",
		ProfilePicture: "https://cdn.example.com/mine.png",
		Provisional:    true,
	})
	require.NoError(t, err)

	provider.claims["user_abc123"] = &domain.Claims{
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Roe",
		ImageURL:  "https://img.example.com/jane.png",
	}

	user, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "user_abc123"})
	require.NoError(t, err)
	assert.Equal(t, "jane", user.Username)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, "Jane Roe", user.FullName)
	// an existing picture is never replaced by the provider's
	assert.Equal(t, "https://cdn.example.com/mine.png", user.ProfilePicture)
	assert.False(t, user.Provisional)

	// complete now, so the provider is not consulted again
	calls := provider.calls
	again, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "user_abc123"})
	require.NoError(t, err)
	assert.Equal(t, user.Username, again.Username)
	assert.Equal(t, calls, provider.calls)
}

func TestHydrate_KeepsChosenUsername(t *testing.T) {
	provider := &fakeProvider{claims: map[string]*domain.Claims{
		"u1": {Email: "real@example.com", FirstName: "Real", Username: "provider_name"},
	}}
	svc, repo := newIdentity(provider)
	_, err := repo.CreateUser(context.Background(), domain.CreateUserParams{
		ID:          "u1",
		Email:       "chosen" + domain.PlaceholderEmailDomain,
		FullName:    domain.DefaultFullName,
		Username:    "chosen",
		Provisional: true,
	})
	require.NoError(t, err)

	user, err := svc.Hydrate(context.Background(), domain.Claims{Subject: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "chosen", user.Username)
	assert.Equal(t, "real@example.com", user.Email)
	assert.False(t, user.Provisional)
}

func TestHydrate_RequiresSubject(t *testing.T) {
	svc, _ := newIdentity(nil)
	_, err := svc.Hydrate(context.Background(), domain.Claims{})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestResolveUsername(t *testing.T) {
	svc, repo := newIdentity(nil)
	seedUser(t, repo, "u1", "taken")

	name, err := svc.ResolveUsername(context.Background(), "u2", "Taken")
	require.NoError(t, err)
	assert.Equal(t, "taken1", name)

	// a user's own name is not a collision
	name, err = svc.ResolveUsername(context.Background(), "u1", "taken")
	require.NoError(t, err)
	assert.Equal(t, "taken", name)

	name, err = svc.ResolveUsername(context.Background(), "user_2qwerty", "???")
	require.NoError(t, err)
	assert.Equal(t, "user_qwerty", name)
}
