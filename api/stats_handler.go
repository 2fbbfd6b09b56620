package api

import (
	"net/http"

	"github.com/xraph/jobqueue/job"
)

func (a *API) jobCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.eng.CountJobs(r.Context(), r.URL.Query().Get("client"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, JobCountsResponse{
		Queued:  counts[job.StatusQueued],
		Running: counts[job.StatusRunning],
		Done:    counts[job.StatusDone],
	})
}

// sweep applies the retention policy once and reports what changed.
func (a *API) sweep(w http.ResponseWriter, r *http.Request) {
	res, err := a.eng.Sweep(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}
