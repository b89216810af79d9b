package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/disasterwatch/disasterwatch/internal/config"
	"github.com/disasterwatch/disasterwatch/internal/logging"
	"github.com/disasterwatch/disasterwatch/internal/models"
)

// openTestDB connects to TEST_DATABASE_URL and applies the migrations.
// Tests are skipped when it is not set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, config.DatabaseConfig{
		URL:             dbURL,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
		ConnectTimeout:  5 * time.Second,
	}, logging.Discard())
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, file, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(file), "..", "..", "migrations")
	if err := RunMigrations(ctx, db, dir, logging.Discard()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func testTrackingID() string {
	id := uuid.NewString()
	return "DW-" + id[:4] + "-" + id[4:8]
}

func TestPostgresReportRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresReportRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	report := &models.Report{
		TrackingID:  testTrackingID(),
		Category:    models.CategoryFlood,
		Severity:    models.SeverityEmergency,
		Title:       "Street flooding",
		Description: "Water up to the doors",
		Location:    "Main St",
		Status:      models.StatusPending,
		ReporterID:  "integration-" + uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	report.SetCoordinates(&models.Coordinates{Latitude: 40.71, Longitude: -74.0})

	if err := repo.Create(ctx, report); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if report.InternalID == 0 {
		t.Fatal("expected internal id to be set")
	}

	t.Run("duplicate tracking id conflicts", func(t *testing.T) {
		dup := *report
		if err := repo.Create(ctx, &dup); !errors.Is(err, models.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("get round trip", func(t *testing.T) {
		got, err := repo.GetByTrackingID(ctx, report.TrackingID)
		if err != nil {
			t.Fatalf("GetByTrackingID returned error: %v", err)
		}
		if got.Title != report.Title || got.Coordinates() == nil || got.Image != "" {
			t.Errorf("unexpected report: %+v", got)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := repo.GetByTrackingID(ctx, "DW-0000-0000"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("status updates keep updated_at increasing", func(t *testing.T) {
		var wg sync.WaitGroup
		for _, s := range []models.Status{models.StatusInProgress, models.StatusResolved, models.StatusDismissed} {
			wg.Add(1)
			go func(s models.Status) {
				defer wg.Done()
				if _, _, err := repo.UpdateStatus(ctx, report.TrackingID, s, now); err != nil {
					t.Errorf("UpdateStatus(%s) returned error: %v", s, err)
				}
			}(s)
		}
		wg.Wait()

		got, err := repo.GetByTrackingID(ctx, report.TrackingID)
		if err != nil {
			t.Fatalf("GetByTrackingID returned error: %v", err)
		}
		if !got.UpdatedAt.After(now) {
			t.Errorf("updated_at %v not after %v", got.UpdatedAt, now)
		}
		if got.Title != report.Title {
			t.Error("status update changed other fields")
		}
	})

	t.Run("count by reporter", func(t *testing.T) {
		counts, err := repo.CountByReporter(ctx)
		if err != nil {
			t.Fatalf("CountByReporter returned error: %v", err)
		}
		if counts[report.ReporterID] != 1 {
			t.Errorf("count = %d, want 1", counts[report.ReporterID])
		}
	})
}

func TestPostgresUserRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepository(db)
	ctx := context.Background()

	email := uuid.NewString() + "@example.com"
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         "Integration_User",
		Email:        email,
		PasswordHash: "hash",
		Role:         models.RoleUser,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Delete(ctx, user.ID) })

	dup := *user
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, &dup); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	if _, err := repo.GetByEmail(ctx, "  "); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := repo.List(ctx, models.UserQuery{Search: email[:8]})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 1 || list[0].ID != user.ID {
		t.Errorf("unexpected search result: %+v", list)
	}

	updated, err := repo.UpdateRole(ctx, user.ID, models.RoleModerator)
	if err != nil || updated.Role != models.RoleModerator {
		t.Fatalf("UpdateRole = %+v, %v", updated, err)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repo.Delete(ctx, user.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestInferenceLogRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewInferenceLogRepository(db)
	ctx := context.Background()

	operation := "integration-" + uuid.NewString()[:8]
	msg := "timeout"
	for _, status := range []string{models.InferenceStatusSuccess, models.InferenceStatusError} {
		entry := models.InferenceLog{
			Provider:   "openai",
			Model:      "gpt-4o",
			Operation:  operation,
			TokensUsed: 100,
			LatencyMs:  250,
			Status:     status,
		}
		if status == models.InferenceStatusError {
			entry.ErrorMessage = &msg
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	logs, err := repo.List(ctx, models.InferenceLogQuery{Operation: operation, Limit: 10})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}

	stats, err := repo.GetStats(ctx, models.InferenceLogQuery{Operation: operation})
	if err != nil {
		t.Fatalf("GetStats returned error: %v", err)
	}
	if stats.TotalCalls != 2 || stats.SuccessfulCalls != 1 || stats.FailedCalls != 1 || stats.TotalTokens != 200 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
