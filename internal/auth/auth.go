package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const principalContextKey contextKey = "principal"

const issuer = "disasterwatch"

// Config holds authentication configuration
type Config struct {
	JWTSecret     string
	TokenDuration time.Duration
	// Principals, when set, replaces the role carried by a token with the
	// account's current role and rejects tokens of deleted accounts.
	Principals PrincipalLoader
}

// PrincipalLoader returns the current principal of an account. It reports
// models.ErrNotFound when the account no longer exists.
type PrincipalLoader interface {
	Principal(ctx context.Context, id string) (models.Principal, error)
}

// authenticate validates the token and, with a loader configured, swaps
// the claimed principal for the stored one.
func (c Config) authenticate(ctx context.Context, tokenString string) (models.Principal, error) {
	p, err := ValidateToken(tokenString, c.JWTSecret)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: invalid or expired token", models.ErrUnauthenticated)
	}
	if c.Principals == nil {
		return p, nil
	}

	current, err := c.Principals.Principal(ctx, p.ID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Principal{}, fmt.Errorf("%w: account no longer exists", models.ErrUnauthenticated)
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("load principal: %w", err)
	}
	return current, nil
}

// Claims represents the JWT claims
type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed token for the principal. It also returns
// the expiry so callers can report it.
func GenerateToken(p models.Principal, secret string, duration time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(duration)
	claims := Claims{
		UserID: p.ID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the principal it carries.
func ValidateToken(tokenString string, secret string) (models.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return models.Principal{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return models.Principal{}, fmt.Errorf("invalid token")
	}
	role, err := models.ParseRole(string(claims.Role))
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	return models.Principal{ID: claims.UserID, Role: role}, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ErrorWriter renders an authentication failure. The api package supplies
// one so auth errors share the JSON error body of every other route.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	http.Error(w, err.Error(), http.StatusUnauthorized)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(config Config, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, present := bearerToken(r)
			if !present {
				onError(w, r, fmt.Errorf("%w: authorization header required", models.ErrUnauthenticated))
				return
			}
			p, err := config.authenticate(r.Context(), tokenString)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth attaches the token's principal when a valid one is present
// and the guest principal otherwise. A malformed or expired token is
// rejected rather than silently downgraded.
func OptionalAuth(config Config, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, present := bearerToken(r)
			if !present {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), models.Guest())))
				return
			}
			p, err := config.authenticate(r.Context(), tokenString)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole wraps RequireAuth and additionally rejects principals for
// which allowed returns false.
func RequireRole(config Config, onError ErrorWriter, allowed func(models.Principal) bool) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainError
	}
	authenticate := RequireAuth(config, onError)
	return func(next http.Handler) http.Handler {
		return authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			if !allowed(p) {
				onError(w, r, models.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// bearerToken reports the token and whether an Authorization header was sent.
// A header in the wrong format yields an empty token with present=true.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}

// WithPrincipal stores the principal in ctx.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the principal set by the middleware. Without
// one it returns the guest principal and false.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(models.Principal)
	if !ok {
		return models.Guest(), false
	}
	return p, true
}
