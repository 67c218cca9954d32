package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/locolive/socialgraph/pkg/validator"
)

type MediaKind string

const (
	MediaProfilePicture MediaKind = "profile"
	MediaCoverPhoto     MediaKind = "cover"
)

// MediaUpload is a file headed for the media service
type MediaUpload struct {
	Kind        MediaKind
	Filename    string
	ContentType string
	Body        io.Reader
}

// MediaUploader stores bytes and returns the URL of the transformed asset.
type MediaUploader interface {
	Upload(ctx context.Context, upload MediaUpload) (string, error)
	// Discard deletes an asset previously returned by Upload. URLs the
	// uploader does not own are ignored.
	Discard(ctx context.Context, url string) error
}

type ProfileRepository interface {
	UserRepository
	SearchUsers(ctx context.Context, query, excludeID string) ([]*User, error)
	ListPostsByUser(ctx context.Context, userID string) ([]*Post, error)
}

// ProfileInput holds the editable profile fields; nil leaves a field unchanged.
type ProfileInput struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=30,username"`
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
	Bio      *string `json:"bio" validate:"omitempty,max=500"`
	Location *string `json:"location" validate:"omitempty,max=100"`
}

type Profile struct {
	User  *User   `json:"profile"`
	Posts []*Post `json:"posts"`
}

type ProfileService struct {
	repo   ProfileRepository
	media  MediaUploader
	logger *zap.Logger
}

func NewProfileService(repo ProfileRepository, media MediaUploader, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		repo:   repo,
		media:  media,
		logger: logger,
	}
}

// Search matches query case-insensitively against username, email, full name
// and location, excluding the caller.
func (s *ProfileService) Search(ctx context.Context, callerID, query string) ([]*User, error) {
	users, err := s.repo.SearchUsers(ctx, strings.TrimSpace(query), callerID)
	if err != nil {
		return nil, upstream("search users", err)
	}
	return users, nil
}

// GetProfile returns a user together with every post they own
func (s *ProfileService) GetProfile(ctx context.Context, targetID string) (*Profile, error) {
	user, err := s.repo.GetUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, upstream("load profile", err)
	}

	posts, err := s.repo.ListPostsByUser(ctx, targetID)
	if err != nil {
		return nil, upstream("load posts", err)
	}
	return &Profile{User: user, Posts: posts}, nil
}

// UpdateProfile applies field edits and optional new images. A requested
// username held by another user is dropped silently while the other edits
// still apply.
func (s *ProfileService) UpdateProfile(ctx context.Context, actorID string, in ProfileInput, avatar, cover *MediaUpload) (*User, error) {
	if in.Username != nil {
		desired := strings.ToLower(strings.TrimSpace(*in.Username))
		in.Username = &desired
		if desired == "" {
			in.Username = nil
		}
	}
	if err := validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	current, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, upstream("load profile", err)
	}

	update := UserUpdate{
		FullName:    nonEmpty(trimmed(in.FullName)),
		Bio:         trimmed(in.Bio),
		Location:    trimmed(in.Location),
		Provisional: ptr(false),
	}
	if in.Username != nil && *in.Username != current.Username {
		taken, err := s.repo.UsernameExists(ctx, *in.Username, actorID)
		if err != nil {
			return nil, upstream("check username", err)
		}
		if taken {
			s.logger.Debug("requested username taken, keeping current",
				zap.String("user_id", actorID), zap.String("username", *in.Username))
		} else {
			update.Username = in.Username
		}
	}

	if avatar != nil {
		avatar.Kind = MediaProfilePicture
		url, err := s.upload(ctx, *avatar)
		if err != nil {
			return nil, err
		}
		update.ProfilePicture = &url
	}
	if cover != nil {
		cover.Kind = MediaCoverPhoto
		url, err := s.upload(ctx, *cover)
		if err != nil {
			return nil, err
		}
		update.CoverPhoto = &url
	}

	updated, err := s.repo.UpdateUser(ctx, actorID, update)
	if errors.Is(err, ErrUsernameTaken) {
		// claimed between the check and the write
		update.Username = nil
		updated, err = s.repo.UpdateUser(ctx, actorID, update)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, upstream("update profile", err)
	}

	if update.ProfilePicture != nil {
		s.discard(ctx, current.ProfilePicture)
	}
	if update.CoverPhoto != nil {
		s.discard(ctx, current.CoverPhoto)
	}
	return updated, nil
}

func (s *ProfileService) upload(ctx context.Context, upload MediaUpload) (string, error) {
	if s.media == nil {
		return "", upstream("upload "+string(upload.Kind), errors.New("media storage not configured"))
	}
	url, err := s.media.Upload(ctx, upload)
	if err != nil {
		if errors.Is(err, ErrValidationFailed) {
			return "", err
		}
		return "", upstream("upload "+string(upload.Kind), err)
	}
	return url, nil
}

func (s *ProfileService) discard(ctx context.Context, url string) {
	if url == "" || s.media == nil {
		return
	}
	if err := s.media.Discard(ctx, url); err != nil {
		s.logger.Warn("failed to discard replaced media", zap.String("url", url), zap.Error(err))
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func nonEmpty(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
