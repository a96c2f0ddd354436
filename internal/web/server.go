// Package web serves the JSON status API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/court-scheduler/internal/application/usecases"
	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/jobs"
)

type Server struct {
	Status   usecases.Status
	Auth     *auth.Store
	Location *time.Location
	Logger   *zap.SugaredLogger
}

func (s *Server) log() *zap.SugaredLogger {
	if s.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return s.Logger
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("GET /api/jobs", s.handleList)
	mux.HandleFunc("GET /api/jobs/upcoming", s.handleUpcoming)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGet)
	mux.Handle("DELETE /api/jobs/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleCancel)))

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/scheduler/status", s.handleScheduler)
	mux.HandleFunc("GET /api/token/status", s.handleToken)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)

	return s.accessLog(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Status.Jobs.Ping(r.Context()); err != nil {
		s.writeError(w, r, internaltypes.Mark(err, internaltypes.ErrStoreUnavailable))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"scheduler": s.Status.SchedulerStatus().Running,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, internaltypes.Configf("body", "", "invalid JSON"))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, internaltypes.Configf("body", "", "invalid form"))
			return
		}
		body.Password = r.FormValue("password")
	}
	if err := s.Auth.Authenticate(body.Password); err != nil {
		s.log().Warnw("operator login rejected", "remote", r.RemoteAddr)
		s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
		return
	}
	if err := s.Auth.SetSession(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := jobs.Filter{
		Status:     jobs.Status(strings.ToLower(q.Get("status"))),
		ResourceID: q.Get("court_id"),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		s.writeError(w, r, err)
		return
	}
	js, err := s.Status.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.jobViews(js))
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"), "days")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	js, err := s.Status.Upcoming(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.jobViews(js))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	j, err := s.Status.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.jobView(j))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	j, err := s.Status.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log().Infow("job cancelled by operator", "job_id", j.ID)
	s.writeJSON(w, http.StatusOK, s.jobView(j))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Status.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.statsView(st))
}

func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.schedulerView(s.Status.SchedulerStatus()))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, tokenView(s.Status.TokenHealth()))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	a, err := s.Status.Alerts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.alertsView(a))
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, internaltypes.Configf(name, v, "must be an integer")
	}
	return n, nil
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func statusFor(err error) int {
	var ce *internaltypes.ConfigurationError
	switch {
	case internaltypes.As(err, &ce):
		return http.StatusBadRequest
	case internaltypes.Is(err, internaltypes.ErrNotFound):
		return http.StatusNotFound
	case internaltypes.IsAny(err, internaltypes.ErrInvalidTransition, internaltypes.ErrConflict):
		return http.StatusConflict
	case internaltypes.Is(err, internaltypes.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ce *internaltypes.ConfigurationError
	if internaltypes.As(err, &ce) {
		body.Field = ce.Field
	}
	if code >= http.StatusInternalServerError {
		s.log().Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, code, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log().Warnw("write response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log().Debugw("http", "method", r.Method, "path", r.URL.Path,
			"status", rec.code, "duration", time.Since(start).String())
	})
}

// Start serves h on addr until ctx is done, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infow("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return internaltypes.Wrap(err, "http server")
	}
	return nil
}
