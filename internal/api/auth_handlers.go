package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/auth"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/users"
)

// UserService is the account management surface used by the HTTP layer.
type UserService interface {
	SignUp(ctx context.Context, in users.SignUp) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.User, error)
	List(ctx context.Context, principal models.Principal, query models.UserQuery) ([]models.User, error)
	UpdateRole(ctx context.Context, principal models.Principal, id string, role models.Role) (*models.User, error)
	Delete(ctx context.Context, principal models.Principal, id string) error
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	users  UserService
	config auth.Config
	logger *slog.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(users UserService, config auth.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		config: config,
		logger: logger,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// SignUp handles POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req users.SignUp
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.users.SignUp(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// Same response for unknown email and wrong password.
		h.logger.Warn("failed login attempt", "ip", r.RemoteAddr)
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("successful login", "user_id", user.ID, "ip", r.RemoteAddr)
	h.respondWithToken(w, r, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	token, expiresAt, err := auth.GenerateToken(user.Principal(), h.config.JWTSecret, h.config.TokenDuration)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, status, LoginResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// ValidateToken handles GET /api/auth/validate
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	// Token validation is handled by the middleware
	principal, _ := auth.PrincipalFromContext(r.Context())
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"user_id": principal.ID,
		"role":    principal.Role,
	})
}
