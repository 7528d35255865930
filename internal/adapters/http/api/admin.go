package api

import (
	"context"
	"net/http"

	service "github.com/okian/gubs/internal/app"
)

// AdminDependencies defines the admin overrides.
type AdminDependencies interface {
	UpdateUserScore(ctx context.Context, adminUID string, req service.AdminScoreRequest) (service.AdminResult, error)
	DeleteUser(ctx context.Context, adminUID string, req service.AdminDeleteRequest) (service.AdminResult, error)
}

// AdminHandler serves /v1/admin routes. Authorization is checked by the
// economy against the caller uid.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// HandleUpdateScore handles POST /v1/admin/score.
func (h *AdminHandler) HandleUpdateScore(w http.ResponseWriter, r *http.Request) {
	var req service.AdminScoreRequest
	if err := decode(w, r, "updateUserScore", &req); err != nil {
		writeFault(w, err)
		return
	}
	res, err := h.deps.UpdateUserScore(r.Context(), UIDFromContext(r.Context()), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDeleteUser handles POST /v1/admin/delete.
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req service.AdminDeleteRequest
	if err := decode(w, r, "deleteUser", &req); err != nil {
		writeFault(w, err)
		return
	}
	res, err := h.deps.DeleteUser(r.Context(), UIDFromContext(r.Context()), req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
