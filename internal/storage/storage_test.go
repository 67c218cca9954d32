package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/domain"
)

// smallest valid PNG header is enough for content sniffing
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestLocalFileStorage_SaveAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalFileStorage(t.TempDir(), "http://localhost:8080/uploads")
	require.NoError(t, err)

	url, err := store.SaveFile(ctx, bytes.NewReader(pngBytes), "profile_pictures", "me.PNG", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/uploads/profile_pictures/"))
	assert.True(t, strings.HasSuffix(url, ".png"))
	assert.True(t, store.Owns(url))

	rel := strings.TrimPrefix(url, "http://localhost:8080/uploads/")
	_, err = os.Stat(filepath.Join(store.BasePath(), rel))
	require.NoError(t, err)

	require.NoError(t, store.DeleteFile(ctx, url+"?tr=w-512"))
	_, err = os.Stat(filepath.Join(store.BasePath(), rel))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalFileStorage_IgnoresForeignAndTraversalURLs(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewLocalFileStorage(filepath.Join(base, "uploads"), "http://localhost/uploads")
	require.NoError(t, err)

	outside := filepath.Join(base, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	assert.False(t, store.Owns("https://img.clerk.com/avatar.png"))
	require.NoError(t, store.DeleteFile(ctx, "https://img.clerk.com/avatar.png"))
	require.NoError(t, store.DeleteFile(ctx, "http://localhost/uploads/../secret.txt"))

	_, err = os.Stat(outside)
	assert.NoError(t, err, "file outside base path must survive")
}

func TestMediaService_UploadAppliesTransform(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalFileStorage(t.TempDir(), "http://cdn.test")
	require.NoError(t, err)
	media := NewMediaService(store, zap.NewNop())

	avatar, err := media.Upload(ctx, domain.MediaUpload{
		Kind: domain.MediaProfilePicture, Filename: "a.png", Body: bytes.NewReader(pngBytes),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(avatar, "?"+ProfilePictureTransform))
	assert.Contains(t, avatar, "/profile_pictures/")

	cover, err := media.Upload(ctx, domain.MediaUpload{
		Kind: domain.MediaCoverPhoto, Filename: "c.png", Body: bytes.NewReader(pngBytes),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(cover, "?"+CoverPhotoTransform))

	require.NoError(t, media.Discard(ctx, avatar))
	require.NoError(t, media.Discard(ctx, "https://elsewhere.example.com/x.png"))
}

func TestMediaService_RejectsNonImages(t *testing.T) {
	store, err := NewLocalFileStorage(t.TempDir(), "http://cdn.test")
	require.NoError(t, err)
	media := NewMediaService(store, zap.NewNop())

	_, err = media.Upload(context.Background(), domain.MediaUpload{
		Kind: domain.MediaProfilePicture, Filename: "a.png", Body: strings.NewReader("plain text, not an image"),
	})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}
