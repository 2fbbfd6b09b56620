package worker

import (
	"sync"

	"github.com/xraph/jobqueue/job"
)

// report is an outcome declared through a job.Handle.
type report int

const (
	reportNone report = iota
	reportSucceeded
	reportFailed
	reportPostponed
)

// handle implements job.Handle for one invocation. The first report wins;
// every message goes to the diagnostics buffer.
type handle struct {
	mu     sync.Mutex
	report report
	diag   *diagnostics
}

var _ job.Handle = (*handle)(nil)

func (h *handle) Succeed(msg string)  { h.set(reportSucceeded, msg) }
func (h *handle) Fail(msg string)     { h.set(reportFailed, msg) }
func (h *handle) Postpone(msg string) { h.set(reportPostponed, msg) }

func (h *handle) set(r report, msg string) {
	h.mu.Lock()
	if h.report == reportNone {
		h.report = r
	}
	h.mu.Unlock()
	h.diag.add(msg)
}

func (h *handle) reported() report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.report
}
