package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/disasterwatch/disasterwatch/internal/auth"
	"github.com/disasterwatch/disasterwatch/internal/logging"
	"github.com/disasterwatch/disasterwatch/internal/metrics"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/wizard"
)

// Dependencies are the services the router exposes. InferenceLogs, Ready
// and Metrics are optional.
type Dependencies struct {
	Reports       ReportService
	Creator       wizard.Creator
	Tracker       Tracker
	Users         UserService
	Classifier    wizard.Classifier
	Resolver      LocationResolver
	InferenceLogs InferenceLogReader
	Ready         func(ctx context.Context) error
	Auth          auth.Config
	MaxImageBytes int64
	Metrics       *metrics.HTTPCollector
	Logger        *slog.Logger
}

// NewRouter builds the HTTP handler with every route and the shared
// middleware: CORS, request logging and metrics.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onAuthError := authErrors(logger)

	optional := auth.OptionalAuth(deps.Auth, onAuthError)
	required := auth.RequireAuth(deps.Auth, onAuthError)
	moderator := auth.RequireRole(deps.Auth, onAuthError, models.Principal.CanModerate)
	admin := auth.RequireRole(deps.Auth, onAuthError, models.Principal.IsAdmin)

	reports := NewReportHandler(deps.Reports, deps.Tracker, deps.MaxImageBytes, logger)
	intake := NewIntakeHandler(deps.Classifier, deps.Resolver, deps.Creator, deps.MaxImageBytes, logger)
	authHandler := NewAuthHandler(deps.Users, deps.Auth, logger)
	userHandler := NewUserHandler(deps.Users, logger)
	health := NewHealthHandler(deps.Ready, logger)

	mux := http.NewServeMux()

	// Ops
	mux.HandleFunc("GET /healthz", health.Live)
	mux.HandleFunc("GET /readyz", health.Ready)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	// Intake (anonymous or signed in)
	mux.Handle("POST /api/reports", optional(http.HandlerFunc(reports.Create)))
	mux.Handle("POST /api/submissions", optional(http.HandlerFunc(intake.Submit)))
	mux.HandleFunc("POST /api/analyze-image", intake.AnalyzeImage)
	mux.HandleFunc("GET /api/geocode", intake.Geocode)

	// Public tracking
	mux.HandleFunc("GET /api/reports/{trackingID}/details", reports.Track)

	// Moderation
	mux.Handle("GET /api/reports", moderator(http.HandlerFunc(reports.List)))
	mux.Handle("GET /api/reports/{trackingID}", moderator(http.HandlerFunc(reports.Get)))
	mux.Handle("PATCH /api/reports/{trackingID}", moderator(http.HandlerFunc(reports.UpdateStatus)))

	// Accounts
	mux.HandleFunc("POST /api/auth/signup", authHandler.SignUp)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("GET /api/auth/validate", required(http.HandlerFunc(authHandler.ValidateToken)))

	mux.Handle("GET /api/users", admin(http.HandlerFunc(userHandler.List)))
	mux.Handle("GET /api/users/{id}", required(http.HandlerFunc(userHandler.Get)))
	mux.Handle("PATCH /api/users/{id}", admin(http.HandlerFunc(userHandler.UpdateRole)))
	mux.Handle("DELETE /api/users/{id}", admin(http.HandlerFunc(userHandler.Delete)))

	if deps.InferenceLogs != nil {
		inferenceLogs := NewInferenceLogHandler(deps.InferenceLogs, logger)
		mux.Handle("GET /api/admin/inference-logs", admin(http.HandlerFunc(inferenceLogs.ListInferenceLogs)))
		mux.Handle("GET /api/admin/inference-logs/stats", admin(http.HandlerFunc(inferenceLogs.GetInferenceStats)))
	}

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = deps.Metrics.InstrumentHandler(handler)
	}
	handler = logging.Middleware(logger, handler)
	return cors(handler)
}

// cors allows browser clients on other origins and answers preflights.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
