package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/api"
	"github.com/xraph/jobqueue/engine"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/principal"
	"github.com/xraph/jobqueue/retention"
	"github.com/xraph/jobqueue/store/memory"
	"github.com/xraph/jobqueue/target"
)

func setup(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := jobqueue.New(
		jobqueue.WithStore(memory.New()),
		jobqueue.WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("jobqueue.New: %v", err)
	}
	eng, err := engine.Build(d, engine.WithPrincipals(principal.NewDirectory(
		&principal.Principal{ID: "user-1", Name: "Ada"},
	)))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	eng.Targets().RegisterFunction("ok", func(context.Context, *target.Invocation) (bool, error) {
		return true, nil
	})

	srv := httptest.NewServer(api.New(eng, logger).Handler())
	t.Cleanup(srv.Close)
	return eng, srv
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, body)
	}
}

func TestCreateAndGetJob(t *testing.T) {
	_, srv := setup(t)

	resp := do(t, http.MethodPost, srv.URL+"/v1/jobs", api.CreateJobRequest{
		Name:              "report",
		Target:            "function::ok",
		Data:              "a=1",
		AssignedPrincipal: "user-1",
		Requeue:           true,
		RetryCount:        3,
		JobDelay:          "57s",
		MinInterval:       "4m2s",
	})
	expectStatus(t, resp, http.StatusCreated)
	created := decode[api.JobResponse](t, resp)

	if created.Status != job.StatusQueued || created.RetryCount != 3 || created.JobDelay != "57s" {
		t.Fatalf("created = %q/%d/%q", created.Status, created.RetryCount, created.JobDelay)
	}
	if created.MinInterval != "4m2s" {
		t.Errorf("min_interval = %q, want the request's encoding", created.MinInterval)
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/"+created.ID.String(), nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[api.JobResponse](t, resp)
	if got.ID != created.ID || got.Data != "a=1" {
		t.Fatalf("got = %s/%q, want %s/%q", got.ID, got.Data, created.ID, "a=1")
	}
	if got.JobDelay != "57s" || got.MinInterval != "4m2s" {
		t.Errorf("durations = %q/%q, want 57s/4m2s", got.JobDelay, got.MinInterval)
	}

	// A response body is accepted back as a create request.
	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/"+created.ID.String(), nil)
	expectStatus(t, resp, http.StatusOK)
	echo := decode[api.CreateJobRequest](t, resp)
	echo.Name = "report-copy"
	resp = do(t, http.MethodPost, srv.URL+"/v1/jobs", echo)
	expectStatus(t, resp, http.StatusCreated)
	if copied := decode[api.JobResponse](t, resp); copied.JobDelay != "57s" || copied.MinInterval != "4m2s" {
		t.Errorf("copied durations = %q/%q", copied.JobDelay, copied.MinInterval)
	}
}

func TestCreateJobValidation(t *testing.T) {
	_, srv := setup(t)

	tests := []struct {
		name string
		req  api.CreateJobRequest
	}{
		{"missing name", api.CreateJobRequest{Target: "function::ok"}},
		{"unknown kind", api.CreateJobRequest{Name: "x", Target: "ftp::host"}},
		{"bad delay", api.CreateJobRequest{Name: "x", Target: "function::ok", JobDelay: "soon"}},
		{"negative retries", api.CreateJobRequest{Name: "x", Target: "function::ok", RetryCount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/v1/jobs", tt.req)
			expectStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func TestGetJobErrors(t *testing.T) {
	_, srv := setup(t)

	resp := do(t, http.MethodGet, srv.URL+"/v1/jobs/not-an-id", nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/job_01927f6e-7c2a-7000-8000-000000000000", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestRunJob(t *testing.T) {
	eng, srv := setup(t)

	j, err := eng.CreateJob(context.Background(), "run-me", "function::ok", job.WithPrincipal("user-1"))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	resp := do(t, http.MethodPost, srv.URL+"/v1/jobs/"+j.ID.String()+"/run", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[api.RunJobResponse](t, resp); !got.Success {
		t.Fatalf("Success = false, want true")
	}

	// DONE jobs are not run again.
	resp = do(t, http.MethodPost, srv.URL+"/v1/jobs/"+j.ID.String()+"/run", nil)
	expectStatus(t, resp, http.StatusConflict)

	// Unparsable ids are reported as not run.
	resp = do(t, http.MethodPost, srv.URL+"/v1/jobs/garbage/run", nil)
	expectStatus(t, resp, http.StatusConflict)
}

func TestRunJobAlreadyRunning(t *testing.T) {
	eng, srv := setup(t)
	ctx := context.Background()

	j, err := eng.CreateJob(ctx, "busy", "function::ok", job.WithPrincipal("user-1"))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := eng.JobStore().ClaimJob(ctx, j.ID); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}

	resp := do(t, http.MethodPost, srv.URL+"/v1/jobs/"+j.ID.String()+"/run", nil)
	expectStatus(t, resp, http.StatusConflict)

	resp = do(t, http.MethodDelete, srv.URL+"/v1/jobs/"+j.ID.String(), nil)
	expectStatus(t, resp, http.StatusConflict)

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/"+j.ID.String(), nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[api.JobResponse](t, resp); got.Status != job.StatusRunning {
		t.Fatalf("status = %q, want RUNNING", got.Status)
	}
}

func TestRunJobOtherClient(t *testing.T) {
	eng, srv := setup(t)

	j, err := eng.CreateJob(context.Background(), "tagged", "function::ok",
		job.WithPrincipal("user-1"), job.WithClient("A"))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	resp := do(t, http.MethodPost, srv.URL+"/v1/jobs/"+j.ID.String()+"/run?client=B", nil)
	expectStatus(t, resp, http.StatusConflict)

	resp = do(t, http.MethodPost, srv.URL+"/v1/jobs/"+j.ID.String()+"/run?client=A", nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestCancelJob(t *testing.T) {
	eng, srv := setup(t)
	ctx := context.Background()

	queued, err := eng.CreateJob(ctx, "queued", "function::ok", job.WithPrincipal("user-1"))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	resp := do(t, http.MethodDelete, srv.URL+"/v1/jobs/"+queued.ID.String(), nil)
	expectStatus(t, resp, http.StatusNoContent)

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/"+queued.ID.String(), nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/"+queued.ID.String()+"?include_deleted=true", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[api.JobResponse](t, resp); got.DeletedAt == nil {
		t.Fatal("DeletedAt = nil, want set")
	}

	done, err := eng.CreateJob(ctx, "done", "function::ok", job.WithPrincipal("user-1"))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := eng.RunJobID(ctx, done.ID.String(), ""); err != nil {
		t.Fatalf("RunJobID: %v", err)
	}
	resp = do(t, http.MethodDelete, srv.URL+"/v1/jobs/"+done.ID.String(), nil)
	expectStatus(t, resp, http.StatusConflict)
}

func TestListAndCountJobs(t *testing.T) {
	eng, srv := setup(t)
	ctx := context.Background()

	for _, c := range []string{"", "A", "A"} {
		if _, err := eng.CreateJob(ctx, "j", "function::ok", job.WithClient(c)); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?client=A", 2},
		{"?status=DONE", 0},
		{"?limit=1", 1},
		{"?offset=2", 1},
	}
	for _, tt := range tests {
		t.Run("list"+tt.query, func(t *testing.T) {
			resp := do(t, http.MethodGet, srv.URL+"/v1/jobs"+tt.query, nil)
			expectStatus(t, resp, http.StatusOK)
			if got := decode[[]api.JobResponse](t, resp); len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
		})
	}

	resp := do(t, http.MethodGet, srv.URL+"/v1/jobs?status=PAUSED", nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/counts?client=A", nil)
	expectStatus(t, resp, http.StatusOK)
	counts := decode[api.JobCountsResponse](t, resp)
	if counts.Queued != 2 || counts.Running != 0 || counts.Done != 0 {
		t.Fatalf("counts = %+v, want 2/0/0", counts)
	}
}

func TestCronRoutes(t *testing.T) {
	_, srv := setup(t)

	req := api.RegisterCronRequest{
		Name:              "nightly",
		Schedule:          "0 3 * * *",
		Target:            "function::ok",
		AssignedPrincipal: "user-1",
		JobDelay:          "30s",
	}
	resp := do(t, http.MethodPost, srv.URL+"/v1/crons", req)
	expectStatus(t, resp, http.StatusCreated)
	entry := decode[api.CronResponse](t, resp)
	if entry.Name != "nightly" || !entry.Enabled {
		t.Fatalf("entry = %q/%v", entry.Name, entry.Enabled)
	}
	if entry.JobDelay != "30s" || entry.MinInterval != "" {
		t.Errorf("durations = %q/%q, want 30s and omitted", entry.JobDelay, entry.MinInterval)
	}

	// Registering again keeps the existing entry.
	resp = do(t, http.MethodPost, srv.URL+"/v1/crons", req)
	expectStatus(t, resp, http.StatusCreated)
	if again := decode[api.CronResponse](t, resp); again.ID != entry.ID {
		t.Fatalf("re-register ID = %s, want %s", again.ID, entry.ID)
	}

	bad := req
	bad.Name = "broken"
	bad.Schedule = "every tuesday"
	resp = do(t, http.MethodPost, srv.URL+"/v1/crons", bad)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, http.MethodGet, srv.URL+"/v1/crons", nil)
	expectStatus(t, resp, http.StatusOK)
	if list := decode[[]api.CronResponse](t, resp); len(list) != 1 {
		t.Fatalf("crons = %d, want 1", len(list))
	}

	resp = do(t, http.MethodDelete, srv.URL+"/v1/crons/"+entry.ID.String(), nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = do(t, http.MethodDelete, srv.URL+"/v1/crons/"+entry.ID.String(), nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestSweep(t *testing.T) {
	_, srv := setup(t)

	resp := do(t, http.MethodPost, srv.URL+"/v1/sweep", nil)
	expectStatus(t, resp, http.StatusOK)
	if res := decode[retention.Result](t, resp); res.SoftDeleted != 0 || res.Purged != 0 {
		t.Fatalf("sweep = %+v, want nothing changed", res)
	}
}
