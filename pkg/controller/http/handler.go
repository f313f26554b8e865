package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
	"github.com/secmon-lab/flowlens/pkg/usecase"
	"github.com/secmon-lab/flowlens/pkg/utils/errutil"
)

// statusFromError maps application errors to HTTP status codes
func statusFromError(err error) int {
	switch {
	case errors.Is(err, usecase.ErrConnectionNotFound), errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrSyncConflict):
		return http.StatusConflict
	case errors.Is(err, atlassian.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, atlassian.ErrRateLimitExceeded), errors.Is(err, atlassian.ErrTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	errutil.HandleHTTP(r.Context(), w, err, statusFromError(err))
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

type connectionResponse struct {
	ID             types.ConnectionID `json:"id"`
	SiteURL        string             `json:"site_url"`
	CloudID        string             `json:"cloud_id"`
	Scopes         []string           `json:"scopes"`
	LastFullSyncAt *time.Time         `json:"last_full_sync_at"`
	CreatedAt      time.Time          `json:"created_at"`
}

// connectionToResponse strips the token ciphertexts from the API view
func connectionToResponse(conn *model.Connection) connectionResponse {
	return connectionResponse{
		ID:             conn.ID,
		SiteURL:        conn.SiteURL,
		CloudID:        conn.CloudID,
		Scopes:         conn.Scopes,
		LastFullSyncAt: conn.LastFullSyncAt,
		CreatedAt:      conn.CreatedAt,
	}
}

type syncCountsResponse struct {
	Statuses int `json:"statuses"`
	Projects int `json:"projects"`
	Users    int `json:"users"`
	Issues   int `json:"issues"`
	Total    int `json:"total"`
}

type syncJobResponse struct {
	ID           types.SyncJobID    `json:"id"`
	ConnectionID types.ConnectionID `json:"connection_id"`
	Status       types.SyncStatus   `json:"status"`
	StartedAt    *time.Time         `json:"started_at"`
	FinishedAt   *time.Time         `json:"finished_at"`
	Counts       syncCountsResponse `json:"counts"`
	APICalls     int                `json:"api_calls"`
	Error        string             `json:"error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func syncJobToResponse(job *model.SyncJob) syncJobResponse {
	return syncJobResponse{
		ID:           job.ID,
		ConnectionID: job.ConnectionID,
		Status:       job.Status,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		Counts: syncCountsResponse{
			Statuses: job.Counts.Statuses,
			Projects: job.Counts.Projects,
			Users:    job.Counts.Users,
			Issues:   job.Counts.Issues,
			Total:    job.Counts.Total(),
		},
		APICalls:  job.APICalls,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.uc.AuthorizeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		http.Error(w, "authorization denied: "+errParam, http.StatusBadRequest)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != query.Get("state") {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "authorization code is missing", http.StatusBadRequest)
		return
	}

	// Reconnecting users keep their identity; first-time users get a
	// fresh one
	userID := types.NewUserID()
	if sessionCookie, err := r.Cookie(sessionCookieName); err == nil {
		if existing, err := s.session.verify(sessionCookie.Value); err == nil {
			userID = existing
		}
	}

	if _, err := s.uc.CompleteOAuth(r.Context(), userID, code); err != nil {
		s.respondError(w, r, err)
		return
	}

	signed, err := s.session.issue(userID, time.Now())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.session.setCookie(w, signed)

	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/api/auth", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.session.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// connectionFor resolves the session user's connection
func (s *Server) connectionFor(r *http.Request) (*model.Connection, error) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		return nil, goerr.Wrap(usecase.ErrConnectionNotFound, "no session user")
	}
	return s.uc.GetConnectionByUser(r.Context(), userID)
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, connectionToResponse(conn))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.uc.Disconnect(r.Context(), conn.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	job, err := s.uc.StartSync(r.Context(), conn.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusAccepted, syncJobToResponse(job))
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	limit := queryInt(r, "limit", 20)
	jobs, err := s.uc.SyncHistory(r.Context(), conn.ID, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := make([]syncJobResponse, len(jobs))
	for i, job := range jobs {
		resp[i] = syncJobToResponse(job)
	}
	respondJSON(w, r, http.StatusOK, map[string]any{"jobs": resp})
}

func (s *Server) handleGetSyncJob(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	jobID := types.SyncJobID(chi.URLParam(r, "jobID"))
	job, err := s.uc.GetSyncJob(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if job.ConnectionID != conn.ID {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	respondJSON(w, r, http.StatusOK, syncJobToResponse(job))
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Server) handleBottlenecks(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.Bottlenecks(r.Context(), conn.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleWorkload(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.Workload(r.Context(), conn.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handlePeopleBottlenecks(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.PeopleBottlenecks(r.Context(), conn.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleCycleTime(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.CycleTime(r.Context(), conn.ID, queryInt(r, "days", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleVelocity(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.Velocity(r.Context(), conn.ID, queryInt(r, "days", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleCostOfDelay(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.CostOfDelay(r.Context(), conn.ID, queryInt(r, "days", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleTeamROI(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.TeamROI(r.Context(), conn.ID, queryInt(r, "days", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.Insights(r.Context(), conn.ID, queryInt(r, "days", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.uc.ExecutiveSummary(r.Context(), conn.ID, queryInt(r, "days", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleExportSummary(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	object, err := s.uc.ExportExecutiveReport(r.Context(), conn.ID, queryInt(r, "days", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"object": object})
}
