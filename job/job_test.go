package job_test

import (
	"testing"
	"time"

	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

func TestNew_Defaults(t *testing.T) {
	j := job.New("report", "function::buildReport")

	if j.ID.Prefix() != id.PrefixJob {
		t.Errorf("ID prefix = %q, want %q", j.ID.Prefix(), id.PrefixJob)
	}
	if j.Status != job.StatusQueued {
		t.Errorf("Status = %q, want %q", j.Status, job.StatusQueued)
	}
	if j.Resolution != job.ResolutionNone {
		t.Errorf("Resolution = %q, want %q", j.Resolution, job.ResolutionNone)
	}
	if !j.ExecuteTime.Equal(j.CreatedAt) {
		t.Errorf("ExecuteTime = %v, want CreatedAt %v", j.ExecuteTime, j.CreatedAt)
	}
	if j.Requeue || j.RetryCount != 0 || j.FailureCount != 0 {
		t.Errorf("retry fields = (%v, %d, %d), want zero", j.Requeue, j.RetryCount, j.FailureCount)
	}
}

func TestNew_Options(t *testing.T) {
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	cronID := id.NewCronID()

	j := job.New("sync", "url::example.com/hook",
		job.WithData("a=1"),
		job.WithPrincipal("user-7"),
		job.WithClient("reports"),
		job.WithExecuteTime(at),
		job.WithRequeue(2),
		job.WithJobDelay(time.Second),
		job.WithMinInterval(242*time.Second),
		job.WithSchedulerID(cronID),
	)

	if j.Data != "a=1" {
		t.Errorf("Data = %q, want %q", j.Data, "a=1")
	}
	if j.AssignedPrincipal != "user-7" {
		t.Errorf("AssignedPrincipal = %q, want %q", j.AssignedPrincipal, "user-7")
	}
	if j.Client != "reports" {
		t.Errorf("Client = %q, want %q", j.Client, "reports")
	}
	if !j.ExecuteTime.Equal(at) {
		t.Errorf("ExecuteTime = %v, want %v", j.ExecuteTime, at)
	}
	if !j.Requeue || j.RetryCount != 2 {
		t.Errorf("Requeue/RetryCount = %v/%d, want true/2", j.Requeue, j.RetryCount)
	}
	if j.SchedulerID != cronID {
		t.Errorf("SchedulerID = %q, want %q", j.SchedulerID, cronID)
	}
	if got := j.RetryDelay(); got != 242*time.Second {
		t.Errorf("RetryDelay() = %v, want %v", got, 242*time.Second)
	}
}

func TestAppendMessage(t *testing.T) {
	j := job.New("x", "function::x")

	j.AppendMessage("first")
	j.AppendMessage("   ")
	j.AppendMessage("second\n")

	if want := "first\nsecond"; j.Message != want {
		t.Errorf("Message = %q, want %q", j.Message, want)
	}
}

func TestTransitions(t *testing.T) {
	now := time.Now().UTC()
	j := job.New("x", "function::x")

	j.MarkRunning(now)
	if j.Status != job.StatusRunning || j.StartedAt == nil {
		t.Fatalf("after MarkRunning: status %q, started %v", j.Status, j.StartedAt)
	}

	later := now.Add(time.Minute)
	j.Reschedule(later)
	if j.Status != job.StatusQueued || j.Resolution != job.ResolutionPartial || !j.ExecuteTime.Equal(later) {
		t.Fatalf("after Reschedule: %q/%q at %v", j.Status, j.Resolution, j.ExecuteTime)
	}

	j.Finish(job.ResolutionSuccess)
	if !j.IsDone() || j.Resolution != job.ResolutionSuccess {
		t.Fatalf("after Finish: %q/%q", j.Status, j.Resolution)
	}
}

func TestStaleRecovery(t *testing.T) {
	now := time.Now().UTC()
	j := job.New("x", "function::x", job.WithRequeue(2))

	if j.IsStale(now) {
		t.Fatal("QUEUED job reported stale")
	}

	j.MarkRunning(now)
	if j.HeartbeatAt == nil || !j.HeartbeatAt.Equal(now) {
		t.Fatalf("HeartbeatAt = %v, want %v", j.HeartbeatAt, now)
	}
	if j.IsStale(now) {
		t.Error("heartbeat at the cutoff reported stale")
	}
	if !j.IsStale(now.Add(time.Second)) {
		t.Error("heartbeat before the cutoff not reported stale")
	}

	j.HeartbeatAt = nil
	if !j.IsStale(now.Add(-time.Hour)) {
		t.Error("RUNNING job without heartbeat not reported stale")
	}

	later := now.Add(time.Minute)
	j.ResetStale(later)
	if j.Status != job.StatusQueued || !j.ExecuteTime.Equal(later) {
		t.Fatalf("after ResetStale: %q at %v", j.Status, j.ExecuteTime)
	}
	if j.StartedAt != nil || j.HeartbeatAt != nil {
		t.Errorf("after ResetStale: started %v, heartbeat %v", j.StartedAt, j.HeartbeatAt)
	}
	if j.RetryCount != 2 || j.FailureCount != 0 || j.Resolution != job.ResolutionNone {
		t.Errorf("ResetStale touched counters: %d/%d/%q", j.RetryCount, j.FailureCount, j.Resolution)
	}
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name      string
		jobClient string
		client    string
		want      bool
	}{
		{"untagged any client", "", "A", true},
		{"untagged no client", "", "", true},
		{"tagged match", "A", "A", true},
		{"tagged mismatch", "B", "A", false},
		{"tagged no client", "B", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := job.New("x", "function::x", job.WithClient(tt.jobClient))
			if got := j.Visible(tt.client); got != tt.want {
				t.Errorf("Visible(%q) = %v, want %v", tt.client, got, tt.want)
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		delay, interval, want time.Duration
	}{
		{57 * time.Second, 0, 57 * time.Second},
		{time.Second, 242 * time.Second, 242 * time.Second},
		{0, 0, 0},
	}
	for _, tt := range tests {
		j := job.New("x", "function::x", job.WithJobDelay(tt.delay), job.WithMinInterval(tt.interval))
		if got := j.RetryDelay(); got != tt.want {
			t.Errorf("RetryDelay(%v, %v) = %v, want %v", tt.delay, tt.interval, got, tt.want)
		}
	}
}
