package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/middleware"
	"github.com/locolive/socialgraph/pkg/response"
	"go.uber.org/zap"
)

type ConnectionHandler struct {
	connService *domain.ConnectionService
	logger      *zap.Logger
}

func NewConnectionHandler(connService *domain.ConnectionService, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connService: connService,
		logger:      logger,
	}
}

// SendRequest handles POST /connections/requests
func (h *ConnectionHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		TargetUserID string `json:"target_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}
	targetID := strings.TrimSpace(req.TargetUserID)
	if targetID == "" {
		response.BadRequest(w, "target_user_id is required")
		return
	}

	result, err := h.connService.SendRequest(r.Context(), userID, targetID)
	if err != nil {
		writeError(w, h.logger, "send connection request", err)
		return
	}

	if result.Status == domain.SendPending {
		response.OKWithMessage(w, result, "Pending")
		return
	}
	response.Created(w, result)
}

// AcceptRequest handles POST /connections/requests/{requesterID}/accept
func (h *ConnectionHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	req, err := h.connService.AcceptRequest(r.Context(), userID, chi.URLParam(r, "requesterID"))
	if err != nil {
		writeError(w, h.logger, "accept connection request", err)
		return
	}
	response.OKWithMessage(w, req, "connected")
}

// GetConnections handles GET /connections
func (h *ConnectionHandler) GetConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	view, err := h.connService.ListConnections(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "get connections", err)
		return
	}
	response.OK(w, view)
}
