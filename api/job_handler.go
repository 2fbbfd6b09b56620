package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/target"
)

// CreateJobRequest is the body of POST /v1/jobs. Durations use Go syntax
// ("57s", "4m2s"). A nil ExecuteTime makes the job due immediately.
type CreateJobRequest struct {
	Name              string     `json:"name"`
	Target            string     `json:"target"`
	Data              string     `json:"data,omitempty"`
	AssignedPrincipal string     `json:"assigned_principal,omitempty"`
	Client            string     `json:"client,omitempty"`
	ExecuteTime       *time.Time `json:"execute_time,omitempty"`
	Requeue           bool       `json:"requeue,omitempty"`
	RetryCount        int        `json:"retry_count,omitempty"`
	JobDelay          string     `json:"job_delay,omitempty"`
	MinInterval       string     `json:"min_interval,omitempty"`
}

// options validates the request and converts it to job options.
func (req *CreateJobRequest) options() ([]job.Option, error) {
	if req.Name == "" {
		return nil, invalid("name is required")
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

	opts := []job.Option{
		job.WithData(req.Data),
		job.WithPrincipal(req.AssignedPrincipal),
		job.WithClient(req.Client),
		job.WithJobDelay(delay),
		job.WithMinInterval(minInterval),
	}
	if req.ExecuteTime != nil {
		opts = append(opts, job.WithExecuteTime(req.ExecuteTime.UTC()))
	}
	if req.Requeue {
		opts = append(opts, job.WithRequeue(req.RetryCount))
	}
	return opts, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, invalid("invalid " + field + ": " + raw)
	}
	return d, nil
}

// RunJobResponse is the body of POST /v1/jobs/{jobId}/run.
type RunJobResponse struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`
}

// JobCountsResponse holds live job counts per status.
type JobCountsResponse struct {
	Queued  int64 `json:"queued"`
	Running int64 `json:"running"`
	Done    int64 `json:"done"`
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	j, err := a.eng.CreateJob(r.Context(), req.Name, req.Target, opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, toJobResponse(j))
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	opts, err := listOpts(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	jobs, err := a.eng.ListJobs(r.Context(), opts)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toJobResponses(jobs))
}

func listOpts(r *http.Request) (job.ListOpts, error) {
	q := r.URL.Query()
	opts := job.ListOpts{
		Status: job.Status(q.Get("status")),
		Client: q.Get("client"),
	}
	switch opts.Status {
	case "", job.StatusQueued, job.StatusRunning, job.StatusDone:
	default:
		return opts, invalid("invalid status: " + string(opts.Status))
	}

	var err error
	if opts.IncludeDeleted, err = queryBool(r, "include_deleted"); err != nil {
		return opts, err
	}
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		return opts, err
	}
	if opts.Limit == 0 || opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset, err = queryInt(r, "offset"); err != nil {
		return opts, err
	}
	if raw := q.Get("modified_before"); raw != "" {
		t, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return opts, invalid("invalid modified_before: " + raw)
		}
		opts.ModifiedBefore = t.UTC()
	}
	return opts, nil
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		a.writeError(w, r, invalid("invalid job ID: "+err.Error()))
		return
	}
	includeDeleted, err := queryBool(r, "include_deleted")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	j, err := a.eng.GetJob(r.Context(), jobID, includeDeleted)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toJobResponse(j))
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		a.writeError(w, r, invalid("invalid job ID: "+err.Error()))
		return
	}

	if err := a.eng.CancelJob(r.Context(), jobID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runJob passes the raw id through; RunJobID reports malformed ids as
// not run.
func (a *API) runJob(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "jobId")

	ok, err := a.eng.RunJobID(r.Context(), rawID, r.URL.Query().Get("client"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, RunJobResponse{JobID: rawID, Success: ok})
}
