package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/middleware"
	"github.com/locolive/socialgraph/pkg/response"
	"go.uber.org/zap"
)

type GraphHandler struct {
	follows *domain.FollowService
	logger  *zap.Logger
}

func NewGraphHandler(follows *domain.FollowService, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		follows: follows,
		logger:  logger,
	}
}

// Follow handles POST /users/{id}/follow
func (h *GraphHandler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	if err := h.follows.Follow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "follow user", err)
		return
	}
	response.OKWithMessage(w, nil, "Now you are following this user")
}

// Unfollow handles DELETE /users/{id}/follow
func (h *GraphHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	if err := h.follows.Unfollow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "unfollow user", err)
		return
	}
	response.OKWithMessage(w, nil, "You are no longer following this user")
}
