package memory

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/store"
	"github.com/xraph/jobqueue/store/storetest"
)

var _ store.Store = (*Store)(nil)

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(_ *testing.T) store.Store { return New() })
}

func TestCopiesOnReadAndWrite(t *testing.T) {
	s := New()
	ctx := context.Background()

	j := job.New("copy", "function::copy")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	j.Name = "mutated"

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "copy" {
		t.Fatalf("stored Name = %q, want %q", got.Name, "copy")
	}

	got.Status = job.StatusDone
	again, _ := s.GetJob(ctx, j.ID)
	if again.Status != job.StatusQueued {
		t.Fatalf("Status = %q after mutating a read copy", again.Status)
	}
}

func TestSoftDeleteKeepsUpdatedAt(t *testing.T) {
	stamp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()
	ctx := context.Background()

	j := job.New("aged", "function::aged")
	j.Finish(job.ResolutionSuccess)
	j.UpdatedAt = stamp
	s.PutJob(j)

	if err := s.SoftDeleteJob(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetJobWithDeleted(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.UpdatedAt.Equal(stamp) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, stamp)
	}
}

func TestUpdateJobUsesClock(t *testing.T) {
	at := time.Date(2031, 5, 6, 7, 8, 9, 0, time.UTC)
	s := New(WithClock(func() time.Time { return at }))
	ctx := context.Background()

	j := job.New("clocked", "function::clocked")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	if !j.UpdatedAt.Equal(at) {
		t.Fatalf("UpdatedAt = %v, want %v", j.UpdatedAt, at)
	}
}
