package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/target"
)

// RegisterCronRequest is the body of POST /v1/crons. Registering a name
// that already exists returns the existing entry unchanged.
type RegisterCronRequest struct {
	Name              string `json:"name"`
	Schedule          string `json:"schedule"`
	Target            string `json:"target"`
	Data              string `json:"data,omitempty"`
	AssignedPrincipal string `json:"assigned_principal,omitempty"`
	Client            string `json:"client,omitempty"`
	Requeue           bool   `json:"requeue,omitempty"`
	RetryCount        int    `json:"retry_count,omitempty"`
	JobDelay          string `json:"job_delay,omitempty"`
	MinInterval       string `json:"min_interval,omitempty"`
	Disabled          bool   `json:"disabled,omitempty"`
}

func (req *RegisterCronRequest) options() ([]cron.EntryOption, error) {
	if req.Name == "" {
		return nil, invalid("name is required")
	}
	if _, err := cron.ParseSchedule(req.Schedule); err != nil {
		return nil, invalid("invalid schedule " + req.Schedule + ": " + err.Error())
	}
	if _, err := target.Parse(req.Target); err != nil {
		return nil, err
	}
	if req.RetryCount < 0 {
		return nil, invalid("retry_count must not be negative")
	}

	delay, err := parseDuration("job_delay", req.JobDelay)
	if err != nil {
		return nil, err
	}
	minInterval, err := parseDuration("min_interval", req.MinInterval)
	if err != nil {
		return nil, err
	}

	opts := []cron.EntryOption{
		cron.WithData(req.Data),
		cron.WithPrincipal(req.AssignedPrincipal),
		cron.WithClient(req.Client),
		cron.WithJobDelay(delay),
		cron.WithMinInterval(minInterval),
	}
	if req.Requeue {
		opts = append(opts, cron.WithRequeue(req.RetryCount))
	}
	if req.Disabled {
		opts = append(opts, cron.Disabled())
	}
	return opts, nil
}

func (a *API) listCrons(w http.ResponseWriter, r *http.Request) {
	entries, err := a.eng.ListCrons(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toCronResponses(entries))
}

func (a *API) registerCron(w http.ResponseWriter, r *http.Request) {
	var req RegisterCronRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if err := a.eng.RegisterCron(ctx, req.Name, req.Schedule, req.Target, opts...); err != nil {
		a.writeError(w, r, err)
		return
	}

	entries, err := a.eng.ListCrons(ctx)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	for _, e := range entries {
		if e.Name == req.Name {
			a.writeJSON(w, http.StatusCreated, toCronResponse(e))
			return
		}
	}
	// Deleted between registration and lookup.
	a.writeError(w, r, jobqueue.ErrCronNotFound)
}

func (a *API) deleteCron(w http.ResponseWriter, r *http.Request) {
	cronID, err := id.ParseCronID(chi.URLParam(r, "cronId"))
	if err != nil {
		a.writeError(w, r, invalid("invalid cron ID: "+err.Error()))
		return
	}

	if err := a.eng.DeleteCron(r.Context(), cronID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
