package storage

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/resilience"
)

// Transform parameters appended to delivered image URLs
const (
	ProfilePictureTransform = "tr=q-auto:f-webp:w-512"
	CoverPhotoTransform     = "tr=q-auto:f-webp:w-1280"
)

var mediaFolders = map[domain.MediaKind]string{
	domain.MediaProfilePicture: "profile_pictures",
	domain.MediaCoverPhoto:     "cover_photos",
}

// MediaService stores profile images and returns transformed delivery URLs.
// It implements domain.MediaUploader.
type MediaService struct {
	store   FileStorage
	breaker *gobreaker.CircuitBreaker[interface{}]
	logger  *zap.Logger
}

func NewMediaService(store FileStorage, logger *zap.Logger) *MediaService {
	return &MediaService{
		store:   store,
		breaker: resilience.NewBreaker("media-storage", logger, resilience.BreakerSettings{}),
		logger:  logger,
	}
}

func (m *MediaService) Upload(ctx context.Context, upload domain.MediaUpload) (string, error) {
	folder, ok := mediaFolders[upload.Kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown media kind %q", domain.ErrValidationFailed, upload.Kind)
	}

	// sniff rather than trust the client's content type
	body := bufio.NewReader(upload.Body)
	head, _ := body.Peek(512)
	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: %s must be an image", domain.ErrValidationFailed, upload.Kind)
	}

	result, err := m.breaker.Execute(func() (interface{}, error) {
		return m.store.SaveFile(ctx, body, folder, upload.Filename, contentType)
	})
	if err != nil {
		return "", err
	}

	url := result.(string)
	m.logger.Debug("media uploaded", zap.String("kind", string(upload.Kind)), zap.String("url", url))
	return withTransform(url, upload.Kind), nil
}

// Discard deletes an asset this service stored. Foreign URLs, such as
// avatars hosted by the identity provider, are left alone.
func (m *MediaService) Discard(ctx context.Context, url string) error {
	if !m.store.Owns(url) {
		return nil
	}
	_, err := m.breaker.Execute(func() (interface{}, error) {
		return nil, m.store.DeleteFile(ctx, url)
	})
	return err
}

func withTransform(url string, kind domain.MediaKind) string {
	tr := ProfilePictureTransform
	if kind == domain.MediaCoverPhoto {
		tr = CoverPhotoTransform
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + tr
}
