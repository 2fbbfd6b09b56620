package api

import (
	"time"

	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/job"
)

// JobResponse is how a job is rendered by the API. Durations use the same
// Go syntax the create request accepts.
type JobResponse struct {
	*job.Job
	JobDelay    string `json:"job_delay,omitempty"`
	MinInterval string `json:"min_interval,omitempty"`
}

// CronResponse is how a cron entry is rendered by the API.
type CronResponse struct {
	*cron.Entry
	JobDelay    string `json:"job_delay,omitempty"`
	MinInterval string `json:"min_interval,omitempty"`
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		Job:         j,
		JobDelay:    formatDuration(j.JobDelay),
		MinInterval: formatDuration(j.MinInterval),
	}
}

func toJobResponses(jobs []*job.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return out
}

func toCronResponse(e *cron.Entry) CronResponse {
	return CronResponse{
		Entry:       e,
		JobDelay:    formatDuration(e.JobDelay),
		MinInterval: formatDuration(e.MinInterval),
	}
}

func toCronResponses(entries []*cron.Entry) []CronResponse {
	out := make([]CronResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toCronResponse(e))
	}
	return out
}
