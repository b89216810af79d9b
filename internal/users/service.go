// Package users manages registered accounts: sign-up, login and the admin
// user list.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/disasterwatch/disasterwatch/internal/auth"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/validation"
)

// SignUp is the input for creating an account.
type SignUp struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,maxbytes=72"`
}

// ReportCounter supplies per-reporter report totals for the admin list.
type ReportCounter interface {
	CountByReporter(ctx context.Context) (map[string]int, error)
}

// Service implements account operations.
type Service struct {
	repo      Repository
	counter   ReportCounter
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. counter may be nil, in which case every
// report count is zero.
func NewService(repo Repository, counter ReportCounter, v *validation.Validator, logger *slog.Logger) *Service {
	if v == nil {
		v = validation.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, counter: counter, validator: v, logger: logger, now: time.Now}
}

// SignUp registers a new account. Self-registered accounts are always USER.
func (s *Service) SignUp(ctx context.Context, in SignUp) (*models.User, error) {
	return s.register(ctx, in, models.RoleUser)
}

// Provision creates an account with an explicit role. It performs no
// principal check and is meant for operator tooling.
func (s *Service) Provision(ctx context.Context, in SignUp, role models.Role) (*models.User, error) {
	return s.register(ctx, in, role)
}

func (s *Service) register(ctx context.Context, in SignUp, role models.Role) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ValidationError{Field: "email", Message: "is already registered"}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords both
// return models.ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrUnauthenticated
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, models.ErrUnauthenticated
	}
	return user, nil
}

// Get returns a single account. Callers may read their own account; admins
// may read any.
func (s *Service) Get(ctx context.Context, principal models.Principal, id string) (*models.User, error) {
	if principal.ID != id && !principal.IsAdmin() {
		return nil, models.ErrForbidden
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Principal returns the account's current principal. It satisfies
// auth.PrincipalLoader.
func (s *Service) Principal(ctx context.Context, id string) (models.Principal, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.Principal{}, fmt.Errorf("load principal: %w", err)
	}
	return user.Principal(), nil
}

// List returns accounts with their report totals. Admin only.
func (s *Service) List(ctx context.Context, principal models.Principal, query models.UserQuery) ([]models.User, error) {
	if !principal.IsAdmin() {
		return nil, models.ErrForbidden
	}

	list, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if s.counter == nil || len(list) == 0 {
		return list, nil
	}

	counts, err := s.counter.CountByReporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	for i := range list {
		list[i].ReportCount = counts[list[i].ID]
	}
	return list, nil
}

// UpdateRole changes an account's role. Admin only; admins cannot change
// their own role.
func (s *Service) UpdateRole(ctx context.Context, principal models.Principal, id string, role models.Role) (*models.User, error) {
	if !principal.IsAdmin() {
		return nil, models.ErrForbidden
	}
	parsed, err := models.ParseRole(string(role))
	if err != nil {
		return nil, models.ValidationError{Field: "role", Message: "must be one of USER, MODERATOR, ADMIN"}
	}
	if id == principal.ID {
		return nil, models.ValidationError{Field: "role", Message: "cannot change your own role"}
	}

	user, err := s.repo.UpdateRole(ctx, id, parsed)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	s.logger.Info("user role changed", "user_id", id, "role", parsed, "by", principal.ID)
	return user, nil
}

// Delete removes an account. Admin only; admins cannot delete themselves.
// Reports keep the reporter ID they were filed under.
func (s *Service) Delete(ctx context.Context, principal models.Principal, id string) error {
	if !principal.IsAdmin() {
		return models.ErrForbidden
	}
	if id == principal.ID {
		return models.ValidationError{Field: "id", Message: "cannot delete your own account"}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info("user deleted", "user_id", id, "by", principal.ID)
	return nil
}
