// Package api exposes the job queue over an admin HTTP API built on chi.
//
//	a := api.New(eng, logger)
//	srv := &http.Server{Addr: ":8080", Handler: a.Handler()}
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/engine"
	"github.com/xraph/jobqueue/target"
)

// maxListLimit caps page sizes requested through ?limit=.
const maxListLimit = 500

// API wires the HTTP handlers to an Engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API from an Engine. A nil logger falls back to
// slog.Default().
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger}
}

// Handler returns a router with every route registered.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API under /v1 on an existing router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", a.createJob)
			r.Get("/", a.listJobs)
			r.Get("/counts", a.jobCounts)
			r.Get("/{jobId}", a.getJob)
			r.Delete("/{jobId}", a.cancelJob)
			r.Post("/{jobId}/run", a.runJob)
		})
		r.Route("/crons", func(r chi.Router) {
			r.Get("/", a.listCrons)
			r.Post("/", a.registerCron)
			r.Delete("/{cronId}", a.deleteCron)
		})
		r.Post("/sweep", a.sweep)
	})
}

// ── Responses ──

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("api: encode response", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("api: request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
	a.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// badRequest marks input validation failures.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error { return &badRequest{msg: msg} }

// statusFor maps sentinel errors to HTTP status codes.
func statusFor(err error) int {
	var (
		br  *badRequest
		res *target.ResolutionError
	)
	switch {
	case errors.As(err, &br), errors.As(err, &res):
		return http.StatusBadRequest
	case errors.Is(err, jobqueue.ErrJobNotFound),
		errors.Is(err, jobqueue.ErrCronNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobqueue.ErrNotRun),
		errors.Is(err, jobqueue.ErrInvalidState),
		errors.Is(err, jobqueue.ErrJobAlreadyExists),
		errors.Is(err, jobqueue.ErrDuplicateCron):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ── Request helpers ──

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("invalid request body: " + err.Error())
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, invalid("invalid " + key + ": " + raw)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid("invalid " + key + ": " + raw)
	}
	return b, nil
}
