// Package storetest holds the behavioural suite every store backend must
// pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/store"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against the stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"UpdateJob", testUpdateJob},
		{"ClaimJob", testClaimJob},
		{"ClaimJobConcurrent", testClaimJobConcurrent},
		{"CancelJob", testCancelJob},
		{"HeartbeatJob", testHeartbeatJob},
		{"RequeueStaleJobs", testRequeueStaleJobs},
		{"DueJobs", testDueJobs},
		{"ListJobs", testListJobs},
		{"CountJobs", testCountJobs},
		{"SoftDeleteAndPurge", testSoftDeleteAndPurge},
		{"CronRegisterAndGet", testCronRegisterAndGet},
		{"CronLocking", testCronLocking},
		{"CronUpdate", testCronUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

func newJob(name string, opts ...job.Option) *job.Job {
	opts = append([]job.Option{job.WithExecuteTime(time.Now().UTC().Add(-time.Second))}, opts...)
	j := job.New(name, "function::"+name, opts...)
	// Backends may store microsecond precision.
	j.CreatedAt = j.CreatedAt.Truncate(time.Millisecond)
	j.UpdatedAt = j.CreatedAt
	j.ExecuteTime = j.ExecuteTime.Truncate(time.Millisecond)
	return j
}

func mustCreate(t *testing.T, s store.Store, j *job.Job) {
	t.Helper()
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob(%s): %v", j.Name, err)
	}
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob("create",
		job.WithData("a=1&b=2"),
		job.WithPrincipal("user-1"),
		job.WithClient("reports"),
		job.WithRequeue(3),
		job.WithJobDelay(57*time.Second),
		job.WithMinInterval(242*time.Second),
		job.WithSchedulerID(id.NewCronID()),
	)
	mustCreate(t, s, j)

	if err := s.CreateJob(ctx, j); !errors.Is(err, jobqueue.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob error = %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID || got.Name != j.Name || got.Target != j.Target {
		t.Errorf("GetJob identity = (%s, %q, %q), want (%s, %q, %q)",
			got.ID, got.Name, got.Target, j.ID, j.Name, j.Target)
	}
	if got.Data != j.Data || got.AssignedPrincipal != j.AssignedPrincipal || got.Client != j.Client {
		t.Errorf("GetJob payload = (%q, %q, %q)", got.Data, got.AssignedPrincipal, got.Client)
	}
	if got.Status != job.StatusQueued || got.Resolution != job.ResolutionNone {
		t.Errorf("GetJob state = %q/%q, want QUEUED/NONE", got.Status, got.Resolution)
	}
	if !got.Requeue || got.RetryCount != 3 {
		t.Errorf("GetJob retry = %v/%d, want true/3", got.Requeue, got.RetryCount)
	}
	if got.JobDelay != 57*time.Second || got.MinInterval != 242*time.Second {
		t.Errorf("GetJob delays = %v/%v", got.JobDelay, got.MinInterval)
	}
	if got.SchedulerID != j.SchedulerID {
		t.Errorf("SchedulerID = %q, want %q", got.SchedulerID, j.SchedulerID)
	}
	if !got.ExecuteTime.Equal(j.ExecuteTime) {
		t.Errorf("ExecuteTime = %v, want %v", got.ExecuteTime, j.ExecuteTime)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("GetJob(unknown) error = %v, want ErrJobNotFound", err)
	}
}

func testUpdateJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob("update", job.WithRequeue(1))
	mustCreate(t, s, j)

	j.MarkRunning(time.Now().UTC())
	j.FailureCount = 1
	j.RetryCount = 0
	j.AppendMessage("boom")
	j.Reschedule(time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond))
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusQueued || got.Resolution != job.ResolutionPartial {
		t.Errorf("state = %q/%q, want QUEUED/PARTIAL", got.Status, got.Resolution)
	}
	if got.FailureCount != 1 || got.RetryCount != 0 || got.Message != "boom" {
		t.Errorf("counters = (%d, %d, %q)", got.FailureCount, got.RetryCount, got.Message)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt = nil, want set")
	}

	missing := newJob("missing")
	if err := s.UpdateJob(ctx, missing); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("UpdateJob(unknown) error = %v, want ErrJobNotFound", err)
	}
}

func testClaimJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob("claim")
	mustCreate(t, s, j)

	if err := s.ClaimJob(ctx, j.ID); err != nil {
		t.Fatalf("first ClaimJob: %v", err)
	}
	if err := s.ClaimJob(ctx, j.ID); !errors.Is(err, jobqueue.ErrClaimConflict) {
		t.Fatalf("second ClaimJob error = %v, want ErrClaimConflict", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusRunning {
		t.Fatalf("Status = %q, want RUNNING", got.Status)
	}
	if got.HeartbeatAt == nil {
		t.Error("HeartbeatAt = nil after claim, want set")
	}
}

func testClaimJobConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob("race")
	mustCreate(t, s, j)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ClaimJob(ctx, j.ID); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("successful claims = %d, want 1", got)
	}
}

func testCancelJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	queued := newJob("cancel-queued")
	running := newJob("cancel-running")
	mustCreate(t, s, queued)
	mustCreate(t, s, running)

	if err := s.CancelJob(ctx, queued.ID); err != nil {
		t.Fatalf("CancelJob(QUEUED): %v", err)
	}
	got, err := s.GetJob(ctx, queued.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !got.IsDeleted() {
		t.Fatal("cancelled job is not soft-deleted")
	}
	if err := s.ClaimJob(ctx, queued.ID); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("ClaimJob(cancelled) error = %v, want ErrJobNotFound", err)
	}
	if err := s.CancelJob(ctx, queued.ID); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("second CancelJob error = %v, want ErrJobNotFound", err)
	}

	if err := s.ClaimJob(ctx, running.ID); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if err := s.CancelJob(ctx, running.ID); !errors.Is(err, jobqueue.ErrInvalidState) {
		t.Fatalf("CancelJob(RUNNING) error = %v, want ErrInvalidState", err)
	}
	got, err = s.GetJob(ctx, running.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.IsDeleted() || got.Status != job.StatusRunning {
		t.Fatalf("running job after refused cancel = %q deleted=%v", got.Status, got.IsDeleted())
	}

	if err := s.CancelJob(ctx, id.NewJobID()); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("CancelJob(unknown) error = %v, want ErrJobNotFound", err)
	}
}

func testHeartbeatJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob("heartbeat")
	mustCreate(t, s, j)

	at := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	if err := s.HeartbeatJob(ctx, j.ID, at); !errors.Is(err, jobqueue.ErrInvalidState) {
		t.Fatalf("HeartbeatJob(QUEUED) error = %v, want ErrInvalidState", err)
	}

	if err := s.ClaimJob(ctx, j.ID); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if err := s.HeartbeatJob(ctx, j.ID, at); err != nil {
		t.Fatalf("HeartbeatJob: %v", err)
	}
	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.HeartbeatAt == nil || !got.HeartbeatAt.Equal(at) {
		t.Fatalf("HeartbeatAt = %v, want %v", got.HeartbeatAt, at)
	}

	if err := s.HeartbeatJob(ctx, id.NewJobID(), at); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("HeartbeatJob(unknown) error = %v, want ErrJobNotFound", err)
	}
}

func testRequeueStaleJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	stale := newJob("stale")
	alive := newJob("alive")
	queued := newJob("queued")
	done := newJob("done")
	for _, j := range []*job.Job{stale, alive, queued, done} {
		mustCreate(t, s, j)
	}
	for _, j := range []*job.Job{stale, alive} {
		if err := s.ClaimJob(ctx, j.ID); err != nil {
			t.Fatalf("ClaimJob(%s): %v", j.Name, err)
		}
	}
	done.Finish(job.ResolutionSuccess)
	if err := s.UpdateJob(ctx, done); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	staleBefore := now.Add(time.Minute)
	if err := s.HeartbeatJob(ctx, alive.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("HeartbeatJob: %v", err)
	}

	requeueAt := now.Add(2 * time.Minute)
	reset, err := s.RequeueStaleJobs(ctx, staleBefore, requeueAt)
	if err != nil {
		t.Fatalf("RequeueStaleJobs: %v", err)
	}
	if len(reset) != 1 || reset[0].ID != stale.ID {
		t.Fatalf("RequeueStaleJobs returned %d jobs, want only %s", len(reset), stale.Name)
	}

	got, err := s.GetJob(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusQueued || got.HeartbeatAt != nil || got.StartedAt != nil {
		t.Fatalf("stale job = %q heartbeat=%v started=%v, want QUEUED and cleared",
			got.Status, got.HeartbeatAt, got.StartedAt)
	}
	if !got.ExecuteTime.Equal(requeueAt) {
		t.Errorf("ExecuteTime = %v, want %v", got.ExecuteTime, requeueAt)
	}
	for _, j := range []*job.Job{alive, queued, done} {
		got, err := s.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("GetJob(%s): %v", j.Name, err)
		}
		if want := map[string]job.Status{
			"alive": job.StatusRunning, "queued": job.StatusQueued, "done": job.StatusDone,
		}[j.Name]; got.Status != want {
			t.Errorf("%s status = %q, want %q", j.Name, got.Status, want)
		}
	}

	again, err := s.RequeueStaleJobs(ctx, staleBefore, requeueAt)
	if err != nil {
		t.Fatalf("second RequeueStaleJobs: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second RequeueStaleJobs returned %d jobs, want 0", len(again))
	}

	if err := s.ClaimJob(ctx, stale.ID); err != nil {
		t.Fatalf("ClaimJob(requeued) = %v, want nil", err)
	}
}

func testDueJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	older := newJob("older", job.WithExecuteTime(now.Add(-time.Hour)))
	newer := newJob("newer", job.WithExecuteTime(now.Add(-time.Minute)))
	future := newJob("future", job.WithExecuteTime(now.Add(time.Hour)))
	tagged := newJob("tagged", job.WithClient("A"))
	other := newJob("other", job.WithClient("B"))
	running := newJob("running")
	for _, j := range []*job.Job{older, newer, future, tagged, other, running} {
		mustCreate(t, s, j)
	}
	if err := s.ClaimJob(ctx, running.ID); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}

	due, err := s.DueJobs(ctx, "A", now, 0)
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	names := make(map[string]bool, len(due))
	for _, j := range due {
		names[j.Name] = true
	}
	for _, want := range []string{"older", "newer", "tagged"} {
		if !names[want] {
			t.Errorf("DueJobs missing %q", want)
		}
	}
	for _, unwanted := range []string{"future", "other", "running"} {
		if names[unwanted] {
			t.Errorf("DueJobs returned %q", unwanted)
		}
	}
	if len(due) > 0 && due[0].Name != "older" {
		t.Errorf("DueJobs[0] = %q, want %q", due[0].Name, "older")
	}

	limited, err := s.DueJobs(ctx, "", now, 1)
	if err != nil {
		t.Fatalf("DueJobs(limit): %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("DueJobs(limit 1) = %d jobs, want 1", len(limited))
	}
}

func testListJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newJob("a", job.WithClient("A"))
	b := newJob("b")
	c := newJob("c")
	for _, j := range []*job.Job{a, b, c} {
		mustCreate(t, s, j)
	}
	c.Finish(job.ResolutionSuccess)
	if err := s.UpdateJob(ctx, c); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	tests := []struct {
		name string
		opts job.ListOpts
		want int
	}{
		{"all", job.ListOpts{}, 3},
		{"done", job.ListOpts{Status: job.StatusDone}, 1},
		{"client", job.ListOpts{Client: "A"}, 1},
		{"limit", job.ListOpts{Limit: 2}, 2},
		{"offset", job.ListOpts{Offset: 2}, 1},
		{"modified before future", job.ListOpts{ModifiedBefore: time.Now().Add(time.Hour)}, 3},
		{"modified before past", job.ListOpts{ModifiedBefore: time.Now().Add(-time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("ListJobs(%+v) = %d jobs, want %d", tt.opts, len(got), tt.want)
			}
		})
	}
}

func testCountJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, j := range []*job.Job{newJob("x"), newJob("y", job.WithClient("A")), newJob("z")} {
		mustCreate(t, s, j)
	}

	total, err := s.CountJobs(ctx, job.CountOpts{})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if total != 3 {
		t.Errorf("CountJobs() = %d, want 3", total)
	}

	tagged, err := s.CountJobs(ctx, job.CountOpts{Client: "A", Status: job.StatusQueued})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if tagged != 1 {
		t.Errorf("CountJobs(A, QUEUED) = %d, want 1", tagged)
	}
}

func testSoftDeleteAndPurge(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := newJob("deleted")
	mustCreate(t, s, j)

	if err := s.SoftDeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("SoftDeleteJob: %v", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("GetJob(deleted) error = %v, want ErrJobNotFound", err)
	}
	got, err := s.GetJobWithDeleted(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJobWithDeleted: %v", err)
	}
	if got.DeletedAt == nil {
		t.Fatal("DeletedAt = nil, want set")
	}

	due, err := s.DueJobs(ctx, "", time.Now().UTC(), 0)
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("DueJobs returned %d soft-deleted jobs", len(due))
	}
	if err := s.ClaimJob(ctx, j.ID); err == nil {
		t.Fatal("ClaimJob(deleted) succeeded, want error")
	}

	listed, err := s.ListJobs(ctx, job.ListOpts{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("ListJobs(IncludeDeleted) = %d, want 1", len(listed))
	}

	if err := s.PurgeJob(ctx, j.ID); err != nil {
		t.Fatalf("PurgeJob: %v", err)
	}
	if _, err := s.GetJobWithDeleted(ctx, j.ID); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("GetJobWithDeleted(purged) error = %v, want ErrJobNotFound", err)
	}
	if err := s.PurgeJob(ctx, j.ID); !errors.Is(err, jobqueue.ErrJobNotFound) {
		t.Fatalf("PurgeJob(purged) error = %v, want ErrJobNotFound", err)
	}
}

func newEntry(t *testing.T, name string) *cron.Entry {
	t.Helper()
	e, err := cron.NewEntry(name, "@every 1m", "function::"+name, time.Now().UTC(),
		cron.WithClient("A"), cron.WithRequeue(2))
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	e.CreatedAt = e.CreatedAt.Truncate(time.Millisecond)
	e.UpdatedAt = e.CreatedAt
	next := e.NextRunAt.Truncate(time.Millisecond)
	e.NextRunAt = &next
	return e
}

func testCronRegisterAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := newEntry(t, "nightly")
	if err := s.RegisterCron(ctx, e); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}

	dup := newEntry(t, "nightly")
	if err := s.RegisterCron(ctx, dup); !errors.Is(err, jobqueue.ErrDuplicateCron) {
		t.Fatalf("duplicate RegisterCron error = %v, want ErrDuplicateCron", err)
	}

	got, err := s.GetCron(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetCron: %v", err)
	}
	if got.Name != "nightly" || got.Target != "function::nightly" || got.Client != "A" {
		t.Errorf("GetCron = (%q, %q, %q)", got.Name, got.Target, got.Client)
	}
	if !got.Requeue || got.RetryCount != 2 || !got.Enabled {
		t.Errorf("GetCron flags = (%v, %d, %v)", got.Requeue, got.RetryCount, got.Enabled)
	}

	list, err := s.ListCrons(ctx)
	if err != nil {
		t.Fatalf("ListCrons: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListCrons = %d, want 1", len(list))
	}

	if err := s.DeleteCron(ctx, e.ID); err != nil {
		t.Fatalf("DeleteCron: %v", err)
	}
	if _, err := s.GetCron(ctx, e.ID); !errors.Is(err, jobqueue.ErrCronNotFound) {
		t.Fatalf("GetCron(deleted) error = %v, want ErrCronNotFound", err)
	}
	if err := s.DeleteCron(ctx, e.ID); !errors.Is(err, jobqueue.ErrCronNotFound) {
		t.Fatalf("DeleteCron(deleted) error = %v, want ErrCronNotFound", err)
	}
}

func testCronLocking(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := newEntry(t, "lockable")
	if err := s.RegisterCron(ctx, e); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}

	w1, w2 := id.NewWorkerID(), id.NewWorkerID()
	ttl := 5 * time.Minute

	if ok, err := s.AcquireCronLock(ctx, e.ID, w1, ttl); err != nil || !ok {
		t.Fatalf("w1 acquire = %v, %v; want true, nil", ok, err)
	}
	if ok, err := s.AcquireCronLock(ctx, e.ID, w2, ttl); err != nil || ok {
		t.Fatalf("w2 acquire = %v, %v; want false, nil", ok, err)
	}
	if ok, err := s.AcquireCronLock(ctx, e.ID, w1, ttl); err != nil || !ok {
		t.Fatalf("w1 re-acquire = %v, %v; want true, nil", ok, err)
	}
	if err := s.ReleaseCronLock(ctx, e.ID, w1); err != nil {
		t.Fatalf("ReleaseCronLock: %v", err)
	}
	if ok, err := s.AcquireCronLock(ctx, e.ID, w2, ttl); err != nil || !ok {
		t.Fatalf("w2 acquire after release = %v, %v; want true, nil", ok, err)
	}
}

func testCronUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := newEntry(t, "updatable")
	if err := s.RegisterCron(ctx, e); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.UpdateCronLastRun(ctx, e.ID, at); err != nil {
		t.Fatalf("UpdateCronLastRun: %v", err)
	}
	if err := s.UpdateCronLastRun(ctx, id.NewCronID(), at); !errors.Is(err, jobqueue.ErrCronNotFound) {
		t.Fatalf("UpdateCronLastRun(unknown) error = %v, want ErrCronNotFound", err)
	}

	got, err := s.GetCron(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetCron: %v", err)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(at) {
		t.Fatalf("LastRunAt = %v, want %v", got.LastRunAt, at)
	}

	got.Enabled = false
	next := at.Add(time.Hour)
	got.NextRunAt = &next
	if err := s.UpdateCronEntry(ctx, got); err != nil {
		t.Fatalf("UpdateCronEntry: %v", err)
	}

	again, err := s.GetCron(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetCron: %v", err)
	}
	if again.Enabled {
		t.Error("Enabled = true after disable")
	}
	if again.NextRunAt == nil || !again.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt = %v, want %v", again.NextRunAt, next)
	}
	if again.LastRunAt == nil || !again.LastRunAt.Equal(at) {
		t.Errorf("LastRunAt lost after UpdateCronEntry: %v", again.LastRunAt)
	}
}
