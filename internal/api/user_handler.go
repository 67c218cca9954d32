package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/middleware"
	"github.com/locolive/socialgraph/pkg/response"
	"go.uber.org/zap"
)

const maxUploadSize = 10 << 20 // 10MB

// UserHandler serves the caller's own record, search and public profiles
type UserHandler struct {
	profiles *domain.ProfileService
	logger   *zap.Logger
}

func NewUserHandler(profiles *domain.ProfileService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		profiles: profiles,
		logger:   logger,
	}
}

// Me handles GET /me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}
	response.OK(w, user)
}

// UpdateMe handles PUT /me. It accepts multipart form data with optional
// "profile" and "cover" image files, or a plain JSON body of fields.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var (
		in            domain.ProfileInput
		avatar, cover *domain.MediaUpload
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			response.BadRequest(w, "invalid form data or file too large")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		in = profileInputFromForm(r.MultipartForm)

		var err error
		if avatar, err = formFile(r, "profile", domain.MediaProfilePicture); err != nil {
			response.BadRequest(w, "invalid profile image")
			return
		}
		defer closeUpload(avatar)
		if cover, err = formFile(r, "cover", domain.MediaCoverPhoto); err != nil {
			response.BadRequest(w, "invalid cover image")
			return
		}
		defer closeUpload(cover)
	} else if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	user, err := h.profiles.UpdateProfile(r.Context(), userID, in, avatar, cover)
	if err != nil {
		writeError(w, h.logger, "update profile", err)
		return
	}
	response.OKWithMessage(w, user, "Profile updated!")
}

// Search handles GET /users/search?q=
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	users, err := h.profiles.Search(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, "search users", err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}
	response.OK(w, map[string]interface{}{"users": users})
}

// Profile handles GET /users/{id}/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "get profile", err)
		return
	}
	if profile.Posts == nil {
		profile.Posts = []*domain.Post{}
	}
	response.OK(w, profile)
}

// profileInputFromForm only sets fields that are present in the form, so an
// omitted field stays unchanged.
func profileInputFromForm(form *multipart.Form) domain.ProfileInput {
	field := func(name string) *string {
		values, ok := form.Value[name]
		if !ok || len(values) == 0 {
			return nil
		}
		v := values[0]
		return &v
	}
	return domain.ProfileInput{
		Username: field("username"),
		FullName: field("full_name"),
		Bio:      field("bio"),
		Location: field("location"),
	}
}

func formFile(r *http.Request, name string, kind domain.MediaKind) (*domain.MediaUpload, error) {
	file, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.MediaUpload{
		Kind:        kind,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}, nil
}

func closeUpload(u *domain.MediaUpload) {
	if u == nil {
		return
	}
	if c, ok := u.Body.(io.Closer); ok {
		_ = c.Close()
	}
}
