package domain_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/repository"
	"github.com/locolive/socialgraph/pkg/validator"
)

func strPtr(s string) *string { return &s }

func newProfileFixture(t *testing.T) (*domain.ProfileService, *repository.MemoryRepository, *fakeUploader) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	media := &fakeUploader{}
	return domain.NewProfileService(repo, media, zap.NewNop()), repo, media
}

func TestUpdateProfile_AppliesFields(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newProfileFixture(t)
	_, err := repo.CreateUser(ctx, domain.CreateUserParams{
		ID: "u1", Email: "u1@example.com", FullName: domain.DefaultFullName, Username: "user_abc", Provisional: true,
	})
	require.NoError(t, err)

	user, err := svc.UpdateProfile(ctx, "u1", domain.ProfileInput{
		Username: strPtr("  New_Name "),
		FullName: strPtr(" Ada Lovelace "),
		Bio:      strPtr(" engines "),
		Location: strPtr("London"),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "new_name", user.Username)
	assert.Equal(t, "Ada Lovelace", user.FullName)
	assert.Equal(t, "engines", user.Bio)
	assert.Equal(t, "London", user.Location)
	assert.False(t, user.Provisional)
}

func TestUpdateProfile_TakenUsernameIsIgnored(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newProfileFixture(t)
	seedUser(t, repo, "u1", "alice")
	seedUser(t, repo, "u2", "bob")

	user, err := svc.UpdateProfile(ctx, "u2", domain.ProfileInput{
		Username: strPtr("alice"),
		Bio:      strPtr("still updated"),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, "still updated", user.Bio)
}

func TestUpdateProfile_EmptyValues(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newProfileFixture(t)
	seedUser(t, repo, "u1", "alice")
	_, err := svc.UpdateProfile(ctx, "u1", domain.ProfileInput{Bio: strPtr("hello")}, nil, nil)
	require.NoError(t, err)

	// blank username and name are ignored, a blank bio clears it
	user, err := svc.UpdateProfile(ctx, "u1", domain.ProfileInput{
		Username: strPtr("  "),
		FullName: strPtr(""),
		Bio:      strPtr(""),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "User u1", user.FullName)
	assert.Empty(t, user.Bio)
}

func TestUpdateProfile_Validation(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newProfileFixture(t)
	seedUser(t, repo, "u1", "alice")

	tests := []struct {
		name  string
		in    domain.ProfileInput
		field string
	}{
		{"username charset", domain.ProfileInput{Username: strPtr("bad name!")}, "username"},
		{"username length", domain.ProfileInput{Username: strPtr("ab")}, "username"},
		{"bio length", domain.ProfileInput{Bio: strPtr(strings.Repeat("x", 501))}, "bio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateProfile(ctx, "u1", tt.in, nil, nil)
			require.ErrorIs(t, err, domain.ErrValidationFailed)

			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestUpdateProfile_MediaUploads(t *testing.T) {
	ctx := context.Background()
	svc, repo, media := newProfileFixture(t)
	seedUser(t, repo, "u1", "alice")

	user, err := svc.UpdateProfile(ctx, "u1", domain.ProfileInput{},
		&domain.MediaUpload{Filename: "a.png", Body: strings.NewReader("png")},
		&domain.MediaUpload{Filename: "c.png", Body: strings.NewReader("png")},
	)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/profile/a.png", user.ProfilePicture)
	assert.Equal(t, "https://cdn.example.com/cover/c.png", user.CoverPhoto)
	require.Len(t, media.uploads, 2)
	assert.Equal(t, domain.MediaProfilePicture, media.uploads[0].Kind)
	assert.Equal(t, domain.MediaCoverPhoto, media.uploads[1].Kind)
	assert.Empty(t, media.discarded)

	// replacing the avatar discards the previous asset
	_, err = svc.UpdateProfile(ctx, "u1", domain.ProfileInput{},
		&domain.MediaUpload{Filename: "b.png", Body: strings.NewReader("png")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/profile/a.png"}, media.discarded)
}

func TestUpdateProfile_MediaFailures(t *testing.T) {
	ctx := context.Background()
	svc, repo, media := newProfileFixture(t)
	seedUser(t, repo, "u1", "alice")
	avatar := func() *domain.MediaUpload {
		return &domain.MediaUpload{Filename: "a.txt", Body: strings.NewReader("text")}
	}

	media.err = fmt.Errorf("%w: not an image", domain.ErrValidationFailed)
	_, err := svc.UpdateProfile(ctx, "u1", domain.ProfileInput{Bio: strPtr("x")}, avatar(), nil)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	media.err = errUnavailable
	_, err = svc.UpdateProfile(ctx, "u1", domain.ProfileInput{Bio: strPtr("x")}, avatar(), nil)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	// nothing was written
	user, err := repo.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, user.Bio)
}

func TestUpdateProfile_UnknownUser(t *testing.T) {
	svc, _, _ := newProfileFixture(t)
	_, err := svc.UpdateProfile(context.Background(), "ghost", domain.ProfileInput{}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newProfileFixture(t)
	seedUser(t, repo, "u1", "alice")
	seedUser(t, repo, "u2", "bob")
	_, err := repo.UpdateUser(ctx, "u2", domain.UserUpdate{Location: strPtr("Tashkent")})
	require.NoError(t, err)
	seedUser(t, repo, "u3", "carol")
	repo.DeactivateUser("u3")

	found, err := svc.Search(ctx, "u1", "TASH")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u2", found[0].ID)

	// the caller never appears in their own results
	found, err = svc.Search(ctx, "u1", "alice")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = svc.Search(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u2", found[0].ID)
}

func TestGetProfile(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newProfileFixture(t)
	seedUser(t, repo, "u1", "alice")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := domain.Post{ID: uuid.New(), UserID: "u1", Content: "first", CreatedAt: base}
	newer := domain.Post{ID: uuid.New(), UserID: "u1", Content: "second", CreatedAt: base.Add(time.Hour)}
	repo.AddPost(older)
	repo.AddPost(newer)

	profile, err := svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.User.Username)
	require.Len(t, profile.Posts, 2)
	assert.Equal(t, "second", profile.Posts[0].Content)

	_, err = svc.GetProfile(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
