package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

const testSecret = "test-secret"

func testConfig() Config {
	return Config{JWTSecret: testSecret, TokenDuration: time.Hour}
}

func TestTokenRoundTrip(t *testing.T) {
	want := models.Principal{ID: "user-1", Role: models.RoleModerator}
	token, expiresAt, err := GenerateToken(want, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected expiry in the future, got %v", expiresAt)
	}

	got, err := ValidateToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateToken returned error: %v", err)
	}
	if got != want {
		t.Errorf("ValidateToken = %+v, want %+v", got, want)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	p := models.Principal{ID: "user-1", Role: models.RoleUser}
	good, _, _ := GenerateToken(p, testSecret, time.Hour)
	expired, _, _ := GenerateToken(p, testSecret, -time.Minute)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", good, "other-secret"},
		{"expired", expired, testSecret},
		{"garbage", "not-a-token", testSecret},
		{"empty", "", testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.token, tt.secret); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !CheckPassword("correct horse", hash) {
		t.Error("expected matching password to pass")
	}
	if CheckPassword("wrong horse", hash) {
		t.Error("expected wrong password to fail")
	}
}

func principalEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		w.Header().Set("X-Principal", p.ID)
		w.Header().Set("X-Role", string(p.Role))
		w.WriteHeader(http.StatusOK)
	})
}

func recordingErrorWriter(got *error) ErrorWriter {
	return func(w http.ResponseWriter, _ *http.Request, err error) {
		*got = err
		if errors.Is(err, models.ErrForbidden) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}
}

func TestOptionalAuth(t *testing.T) {
	token, _, _ := GenerateToken(models.Principal{ID: "mod-1", Role: models.RoleModerator}, testSecret, time.Hour)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantID     string
	}{
		{"no header is guest", "", http.StatusOK, models.AnonymousReporterID},
		{"valid token", "Bearer " + token, http.StatusOK, "mod-1"},
		{"bad token rejected", "Bearer nope", http.StatusUnauthorized, ""},
		{"bad scheme rejected", "Basic abc", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotErr error
			handler := OptionalAuth(testConfig(), recordingErrorWriter(&gotErr))(principalEcho(t))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && rec.Header().Get("X-Principal") != tt.wantID {
				t.Errorf("principal = %q, want %q", rec.Header().Get("X-Principal"), tt.wantID)
			}
			if tt.wantStatus == http.StatusUnauthorized && !errors.Is(gotErr, models.ErrUnauthenticated) {
				t.Errorf("expected ErrUnauthenticated, got %v", gotErr)
			}
		})
	}
}

func TestRequireAuthWithoutHeader(t *testing.T) {
	var gotErr error
	handler := RequireAuth(testConfig(), recordingErrorWriter(&gotErr))(principalEcho(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !errors.Is(gotErr, models.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", gotErr)
	}
}

func TestRequireRole(t *testing.T) {
	userToken, _, _ := GenerateToken(models.Principal{ID: "u", Role: models.RoleUser}, testSecret, time.Hour)
	adminToken, _, _ := GenerateToken(models.Principal{ID: "a", Role: models.RoleAdmin}, testSecret, time.Hour)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"user forbidden", userToken, http.StatusForbidden},
		{"admin allowed", adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotErr error
			handler := RequireRole(testConfig(), recordingErrorWriter(&gotErr), models.Principal.CanModerate)(principalEcho(t))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestPrincipalFromContextDefaultsToGuest(t *testing.T) {
	p, ok := PrincipalFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	if ok {
		t.Fatal("expected no principal in a bare context")
	}
	if p != models.Guest() {
		t.Errorf("got %+v, want guest", p)
	}
}

type principalStore map[string]models.Role

func (s principalStore) Principal(_ context.Context, id string) (models.Principal, error) {
	role, ok := s[id]
	if !ok {
		return models.Principal{}, models.ErrNotFound
	}
	return models.Principal{ID: id, Role: role}, nil
}

func TestRequireRoleUsesCurrentRole(t *testing.T) {
	// Both tokens claim MODERATOR; the store holds what the accounts are now.
	store := principalStore{"still-mod": models.RoleModerator, "demoted": models.RoleUser}
	config := testConfig()
	config.Principals = store

	tests := []struct {
		name       string
		id         string
		wantStatus int
		wantErr    error
	}{
		{"current moderator allowed", "still-mod", http.StatusOK, nil},
		{"demoted moderator forbidden", "demoted", http.StatusForbidden, models.ErrForbidden},
		{"deleted account rejected", "gone", http.StatusUnauthorized, models.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, _ := GenerateToken(models.Principal{ID: tt.id, Role: models.RoleModerator}, testSecret, time.Hour)

			var gotErr error
			handler := RequireRole(config, recordingErrorWriter(&gotErr), models.Principal.CanModerate)(principalEcho(t))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantErr != nil && !errors.Is(gotErr, tt.wantErr) {
				t.Errorf("error = %v, want %v", gotErr, tt.wantErr)
			}
		})
	}
}

func TestOptionalAuthReportsStoredRole(t *testing.T) {
	config := testConfig()
	config.Principals = principalStore{"u-1": models.RoleAdmin}
	token, _, _ := GenerateToken(models.Principal{ID: "u-1", Role: models.RoleUser}, testSecret, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	OptionalAuth(config, nil)(principalEcho(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Role"); got != string(models.RoleAdmin) {
		t.Errorf("role = %q, want ADMIN", got)
	}
}
