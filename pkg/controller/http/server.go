package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
)

// UseCase is the application surface the HTTP layer drives
type UseCase interface {
	AuthorizeURL(state string) string
	CompleteOAuth(ctx context.Context, userID types.UserID, code string) (*model.Connection, error)
	GetConnectionByUser(ctx context.Context, userID types.UserID) (*model.Connection, error)
	Disconnect(ctx context.Context, connID types.ConnectionID) error

	StartSync(ctx context.Context, connID types.ConnectionID) (*model.SyncJob, error)
	SyncHistory(ctx context.Context, connID types.ConnectionID, limit int) ([]*model.SyncJob, error)
	GetSyncJob(ctx context.Context, jobID types.SyncJobID) (*model.SyncJob, error)

	Bottlenecks(ctx context.Context, connID types.ConnectionID) (*model.BottleneckReport, error)
	Workload(ctx context.Context, connID types.ConnectionID) (*model.WorkloadReport, error)
	PeopleBottlenecks(ctx context.Context, connID types.ConnectionID) (*model.PeopleBottleneckReport, error)
	CycleTime(ctx context.Context, connID types.ConnectionID, days int) (*model.CycleTimeReport, error)
	Velocity(ctx context.Context, connID types.ConnectionID, days int) (*model.VelocityReport, error)
	CostOfDelay(ctx context.Context, connID types.ConnectionID, days int) (*model.CostOfDelayReport, error)
	TeamROI(ctx context.Context, connID types.ConnectionID, days int) (*model.ROIReport, error)
	Insights(ctx context.Context, connID types.ConnectionID, days int) (*model.InsightReport, error)
	ExecutiveSummary(ctx context.Context, connID types.ConnectionID, days int) (*model.ExecutiveSummary, error)
	ExportExecutiveReport(ctx context.Context, connID types.ConnectionID, days int) (string, error)
}

type Server struct {
	router  *chi.Mux
	uc      UseCase
	session *sessionManager
}

func New(uc UseCase, sessionSecret []byte) (*Server, error) {
	session, err := newSessionManager(sessionSecret)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		uc:      uc,
		session: session,
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", s.handleLogin)
		r.Get("/callback", s.handleCallback)
		r.Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(session.middleware)

		r.Get("/api/connection", s.handleGetConnection)
		r.Delete("/api/connection", s.handleDisconnect)

		r.Post("/api/sync", s.handleStartSync)
		r.Get("/api/sync/jobs", s.handleSyncHistory)
		r.Get("/api/sync/jobs/{jobID}", s.handleGetSyncJob)

		r.Route("/api/analytics", func(r chi.Router) {
			r.Get("/bottlenecks", s.handleBottlenecks)
			r.Get("/workload", s.handleWorkload)
			r.Get("/people", s.handlePeopleBottlenecks)
			r.Get("/cycle-time", s.handleCycleTime)
			r.Get("/velocity", s.handleVelocity)
			r.Get("/cost-of-delay", s.handleCostOfDelay)
			r.Get("/roi", s.handleTeamROI)
			r.Get("/insights", s.handleInsights)
			r.Get("/summary", s.handleSummary)
			r.Post("/summary/export", s.handleExportSummary)
		})
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
