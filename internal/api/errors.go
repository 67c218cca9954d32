package api

import (
	"errors"
	"net/http"

	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/pkg/response"
	"github.com/locolive/socialgraph/pkg/validator"
	"go.uber.org/zap"
)

// writeError maps a domain error onto the response envelope. Anything
// unrecognised is logged and reported as an internal error.
func writeError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		response.ErrorWithDetails(w, http.StatusBadRequest, "VALIDATION_FAILED", "validation failed", verrs)
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, domain.ErrSelfTarget):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotAuthenticated):
		response.Unauthorized(w, "not authenticated")
	case errors.Is(err, domain.ErrUserNotFound):
		response.NotFound(w, "user not found")
	case errors.Is(err, domain.ErrConnectionRequestNotFound):
		response.NotFound(w, "connection request not found")
	case errors.Is(err, domain.ErrAlreadyFollowing):
		response.Conflict(w, "ALREADY_FOLLOWING", "already following this user")
	case errors.Is(err, domain.ErrAlreadyConnected):
		response.Conflict(w, "ALREADY_CONNECTED", "already connected with this user")
	case errors.Is(err, domain.ErrRateLimited):
		response.TooManyRequests(w, "RATE_LIMITED", "you have sent too many connection requests in the last 24 hours")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		logger.Warn(op+" failed", zap.Error(err))
		response.ServiceUnavailable(w, "service temporarily unavailable, try again")
	default:
		logger.Error(op+" failed", zap.Error(err))
		response.InternalError(w, "failed to "+op)
	}
}
