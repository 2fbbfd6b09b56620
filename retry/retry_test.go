package retry_test

import (
	"testing"
	"time"

	"github.com/xraph/jobqueue/backoff"
	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/retry"
)

var now = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

func TestFail_NoRequeue(t *testing.T) {
	p := retry.New()
	j := job.New("x", "function::x", job.WithJobDelay(time.Minute))

	if d := p.Fail(j, now); d != retry.Final {
		t.Fatalf("Fail() = %v, want %v", d, retry.Final)
	}
	if j.Status != job.StatusDone || j.Resolution != job.ResolutionFailure {
		t.Errorf("state = %q/%q, want DONE/FAILURE", j.Status, j.Resolution)
	}
	if j.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", j.FailureCount)
	}
}

func TestFail_ExhaustsRetries(t *testing.T) {
	p := retry.New()
	j := job.New("x", "function::x",
		job.WithRequeue(2),
		job.WithJobDelay(time.Second),
		job.WithMinInterval(242*time.Second),
	)

	for attempt := 1; attempt <= 2; attempt++ {
		if d := p.Fail(j, now); d != retry.Retry {
			t.Fatalf("attempt %d: Fail() = %v, want %v", attempt, d, retry.Retry)
		}
		if j.Status != job.StatusQueued || j.Resolution != job.ResolutionPartial {
			t.Errorf("attempt %d: state = %q/%q, want QUEUED/PARTIAL", attempt, j.Status, j.Resolution)
		}
		if want := now.Add(242 * time.Second); !j.ExecuteTime.Equal(want) {
			t.Errorf("attempt %d: ExecuteTime = %v, want %v", attempt, j.ExecuteTime, want)
		}
		if j.FailureCount != attempt {
			t.Errorf("attempt %d: FailureCount = %d, want %d", attempt, j.FailureCount, attempt)
		}
		if j.RetryCount != 2-attempt {
			t.Errorf("attempt %d: RetryCount = %d, want %d", attempt, j.RetryCount, 2-attempt)
		}
	}

	if d := p.Fail(j, now); d != retry.Final {
		t.Fatalf("final: Fail() = %v, want %v", d, retry.Final)
	}
	if j.Status != job.StatusDone || j.Resolution != job.ResolutionFailure {
		t.Errorf("final state = %q/%q, want DONE/FAILURE", j.Status, j.Resolution)
	}
	if j.FailureCount != 3 {
		t.Errorf("final FailureCount = %d, want 3", j.FailureCount)
	}
}

func TestPostpone(t *testing.T) {
	p := retry.New()
	j := job.New("x", "function::x", job.WithRequeue(1), job.WithJobDelay(57*time.Second))

	if d := p.Postpone(j, now); d != retry.Postponed {
		t.Fatalf("Postpone() = %v, want %v", d, retry.Postponed)
	}
	if j.Status != job.StatusQueued || j.Resolution != job.ResolutionPartial {
		t.Errorf("state = %q/%q, want QUEUED/PARTIAL", j.Status, j.Resolution)
	}
	if want := now.Add(57 * time.Second); !j.ExecuteTime.Equal(want) {
		t.Errorf("ExecuteTime = %v, want %v", j.ExecuteTime, want)
	}
	if j.FailureCount != 0 || j.RetryCount != 1 {
		t.Errorf("counters = %d/%d, want 0/1", j.FailureCount, j.RetryCount)
	}
}

func TestSucceed(t *testing.T) {
	j := job.New("x", "function::x", job.WithRequeue(3))
	if d := retry.New().Succeed(j, now); d != retry.Succeeded {
		t.Fatalf("Succeed() = %v", d)
	}
	if j.Status != job.StatusDone || j.Resolution != job.ResolutionSuccess {
		t.Errorf("state = %q/%q, want DONE/SUCCESS", j.Status, j.Resolution)
	}
	if j.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", j.RetryCount)
	}
}

func TestDelay_WithStrategy(t *testing.T) {
	p := retry.New(retry.WithStrategy(backoff.NewExponential(time.Minute, time.Hour)))
	j := job.New("x", "function::x", job.WithRequeue(5), job.WithJobDelay(90*time.Second))

	p.Fail(j, now) // attempt 1: max(90s, 1m)
	if want := now.Add(90 * time.Second); !j.ExecuteTime.Equal(want) {
		t.Errorf("after 1 failure ExecuteTime = %v, want %v", j.ExecuteTime, want)
	}
	p.Fail(j, now) // attempt 2: max(90s, 2m)
	if want := now.Add(2 * time.Minute); !j.ExecuteTime.Equal(want) {
		t.Errorf("after 2 failures ExecuteTime = %v, want %v", j.ExecuteTime, want)
	}
}
