package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/disasterwatch/disasterwatch/internal/auth"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

// UserHandler serves the admin user routes.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// List handles GET /api/users?search=&role=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := models.UserQuery{Search: r.URL.Query().Get("search")}
	if v := r.URL.Query().Get("role"); v != "" && !strings.EqualFold(v, "all") {
		role, err := models.ParseRole(v)
		if err != nil {
			writeError(w, r, h.logger, models.ValidationError{Field: "role", Message: err.Error()})
			return
		}
		query.Role = &role
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	list, err := h.users.List(r.Context(), principal, query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"users": list,
		"count": len(list),
	})
}

// Get handles GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	user, err := h.users.Get(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, user)
}

// RoleRequest is the body of a role change.
type RoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole handles PATCH /api/users/{id}
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	user, err := h.users.UpdateRole(r.Context(), principal, r.PathValue("id"), models.Role(req.Role))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, user)
}

// Delete handles DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.users.Delete(r.Context(), principal, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
