package sqlite

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:jobqueue_jobs"`

	ID                string     `bun:"id,pk"`
	Name              string     `bun:"name,notnull"`
	Status            string     `bun:"status,notnull,default:'QUEUED'"`
	Resolution        string     `bun:"resolution,notnull,default:'NONE'"`
	Target            string     `bun:"target,notnull"`
	Data              string     `bun:"data,notnull,default:''"`
	AssignedPrincipal string     `bun:"assigned_principal,notnull,default:''"`
	Client            string     `bun:"client,notnull,default:''"`
	ExecuteTime       time.Time  `bun:"execute_time,notnull"`
	Requeue           bool       `bun:"requeue,notnull,default:false"`
	RetryCount        int        `bun:"retry_count,notnull,default:0"`
	FailureCount      int        `bun:"failure_count,notnull,default:0"`
	JobDelay          int64      `bun:"job_delay,notnull,default:0"`
	MinInterval       int64      `bun:"min_interval,notnull,default:0"`
	Message           string     `bun:"message,notnull,default:''"`
	SchedulerID       string     `bun:"scheduler_id,nullzero"`
	StartedAt         *time.Time `bun:"started_at"`
	HeartbeatAt       *time.Time `bun:"heartbeat_at"`
	DeletedAt         *time.Time `bun:"deleted_at"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
}

// utc normalizes optional timestamps so text comparisons in SQL order
// them correctly.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:                j.ID.String(),
		Name:              j.Name,
		Status:            string(j.Status),
		Resolution:        string(j.Resolution),
		Target:            j.Target,
		Data:              j.Data,
		AssignedPrincipal: j.AssignedPrincipal,
		Client:            j.Client,
		ExecuteTime:       j.ExecuteTime.UTC(),
		Requeue:           j.Requeue,
		RetryCount:        j.RetryCount,
		FailureCount:      j.FailureCount,
		JobDelay:          j.JobDelay.Nanoseconds(),
		MinInterval:       j.MinInterval.Nanoseconds(),
		Message:           j.Message,
		SchedulerID:       j.SchedulerID.String(),
		StartedAt:         utc(j.StartedAt),
		HeartbeatAt:       utc(j.HeartbeatAt),
		DeletedAt:         utc(j.DeletedAt),
		CreatedAt:         j.CreatedAt.UTC(),
		UpdatedAt:         j.UpdatedAt.UTC(),
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/sqlite: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: jobqueue.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                parsedID,
		Name:              m.Name,
		Status:            job.Status(m.Status),
		Resolution:        job.Resolution(m.Resolution),
		Target:            m.Target,
		Data:              m.Data,
		AssignedPrincipal: m.AssignedPrincipal,
		Client:            m.Client,
		ExecuteTime:       m.ExecuteTime.UTC(),
		Requeue:           m.Requeue,
		RetryCount:        m.RetryCount,
		FailureCount:      m.FailureCount,
		JobDelay:          time.Duration(m.JobDelay),
		MinInterval:       time.Duration(m.MinInterval),
		Message:           m.Message,
		StartedAt:         utc(m.StartedAt),
		HeartbeatAt:       utc(m.HeartbeatAt),
		DeletedAt:         utc(m.DeletedAt),
	}

	if m.SchedulerID != "" {
		parsedCron, cErr := id.ParseCronID(m.SchedulerID)
		if cErr == nil {
			j.SchedulerID = parsedCron
		}
	}

	return j, nil
}

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ── Cron entry model ──────────────────────────────────────────────

type cronEntryModel struct {
	bun.BaseModel `bun:"table:jobqueue_cron_entries"`

	ID                string     `bun:"id,pk"`
	Name              string     `bun:"name,notnull,unique"`
	Schedule          string     `bun:"schedule,notnull"`
	Target            string     `bun:"target,notnull"`
	Data              string     `bun:"data,notnull,default:''"`
	AssignedPrincipal string     `bun:"assigned_principal,notnull,default:''"`
	Client            string     `bun:"client,notnull,default:''"`
	Requeue           bool       `bun:"requeue,notnull,default:false"`
	RetryCount        int        `bun:"retry_count,notnull,default:0"`
	JobDelay          int64      `bun:"job_delay,notnull,default:0"`
	MinInterval       int64      `bun:"min_interval,notnull,default:0"`
	LastRunAt         *time.Time `bun:"last_run_at"`
	NextRunAt         *time.Time `bun:"next_run_at"`
	LockedBy          string     `bun:"locked_by,nullzero"`
	LockedUntil       *time.Time `bun:"locked_until"`
	Enabled           bool       `bun:"enabled,notnull,default:true"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
}

func toCronModel(e *cron.Entry) *cronEntryModel {
	return &cronEntryModel{
		ID:                e.ID.String(),
		Name:              e.Name,
		Schedule:          e.Schedule,
		Target:            e.Target,
		Data:              e.Data,
		AssignedPrincipal: e.AssignedPrincipal,
		Client:            e.Client,
		Requeue:           e.Requeue,
		RetryCount:        e.RetryCount,
		JobDelay:          e.JobDelay.Nanoseconds(),
		MinInterval:       e.MinInterval.Nanoseconds(),
		LastRunAt:         e.LastRunAt,
		NextRunAt:         e.NextRunAt,
		LockedBy:          e.LockedBy,
		LockedUntil:       e.LockedUntil,
		Enabled:           e.Enabled,
		CreatedAt:         e.CreatedAt.UTC(),
		UpdatedAt:         e.UpdatedAt.UTC(),
	}
}

func fromCronModel(m *cronEntryModel) (*cron.Entry, error) {
	parsedID, err := id.ParseCronID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/sqlite: parse cron id %q: %w", m.ID, err)
	}

	return &cron.Entry{
		Entity: jobqueue.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                parsedID,
		Name:              m.Name,
		Schedule:          m.Schedule,
		Target:            m.Target,
		Data:              m.Data,
		AssignedPrincipal: m.AssignedPrincipal,
		Client:            m.Client,
		Requeue:           m.Requeue,
		RetryCount:        m.RetryCount,
		JobDelay:          time.Duration(m.JobDelay),
		MinInterval:       time.Duration(m.MinInterval),
		LastRunAt:         m.LastRunAt,
		NextRunAt:         m.NextRunAt,
		LockedBy:          m.LockedBy,
		LockedUntil:       m.LockedUntil,
		Enabled:           m.Enabled,
	}, nil
}
