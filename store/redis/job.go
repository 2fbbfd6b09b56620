package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/id"
	"github.com/xraph/jobqueue/job"
)

// ── MessagePack model ──

type jobEntity struct {
	ID                string        `msgpack:"id"`
	Name              string        `msgpack:"name"`
	Status            string        `msgpack:"status"`
	Resolution        string        `msgpack:"resolution"`
	Target            string        `msgpack:"target"`
	Data              string        `msgpack:"data"`
	AssignedPrincipal string        `msgpack:"assigned_principal"`
	Client            string        `msgpack:"client"`
	ExecuteTime       time.Time     `msgpack:"execute_time"`
	Requeue           bool          `msgpack:"requeue"`
	RetryCount        int           `msgpack:"retry_count"`
	FailureCount      int           `msgpack:"failure_count"`
	JobDelay          time.Duration `msgpack:"job_delay"`
	MinInterval       time.Duration `msgpack:"min_interval"`
	Message           string        `msgpack:"message"`
	SchedulerID       string        `msgpack:"scheduler_id,omitempty"`
	StartedAt         *time.Time    `msgpack:"started_at,omitempty"`
	HeartbeatAt       *time.Time    `msgpack:"heartbeat_at,omitempty"`
	DeletedAt         *time.Time    `msgpack:"deleted_at,omitempty"`
	CreatedAt         time.Time     `msgpack:"created_at"`
	UpdatedAt         time.Time     `msgpack:"updated_at"`
}

func toJobEntity(j *job.Job) *jobEntity {
	return &jobEntity{
		ID:                j.ID.String(),
		Name:              j.Name,
		Status:            string(j.Status),
		Resolution:        string(j.Resolution),
		Target:            j.Target,
		Data:              j.Data,
		AssignedPrincipal: j.AssignedPrincipal,
		Client:            j.Client,
		ExecuteTime:       j.ExecuteTime,
		Requeue:           j.Requeue,
		RetryCount:        j.RetryCount,
		FailureCount:      j.FailureCount,
		JobDelay:          j.JobDelay,
		MinInterval:       j.MinInterval,
		Message:           j.Message,
		SchedulerID:       j.SchedulerID.String(),
		StartedAt:         j.StartedAt,
		HeartbeatAt:       j.HeartbeatAt,
		DeletedAt:         j.DeletedAt,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

func fromJobEntity(e *jobEntity) (*job.Job, error) {
	jID, err := id.ParseJobID(e.ID)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: parse job id %q: %w", e.ID, err)
	}

	j := &job.Job{
		Entity: jobqueue.Entity{
			CreatedAt: e.CreatedAt.UTC(),
			UpdatedAt: e.UpdatedAt.UTC(),
		},
		ID:                jID,
		Name:              e.Name,
		Status:            job.Status(e.Status),
		Resolution:        job.Resolution(e.Resolution),
		Target:            e.Target,
		Data:              e.Data,
		AssignedPrincipal: e.AssignedPrincipal,
		Client:            e.Client,
		ExecuteTime:       e.ExecuteTime.UTC(),
		Requeue:           e.Requeue,
		RetryCount:        e.RetryCount,
		FailureCount:      e.FailureCount,
		JobDelay:          e.JobDelay,
		MinInterval:       e.MinInterval,
		Message:           e.Message,
		StartedAt:         utcPtr(e.StartedAt),
		HeartbeatAt:       utcPtr(e.HeartbeatAt),
		DeletedAt:         utcPtr(e.DeletedAt),
	}

	if e.SchedulerID != "" {
		if sID, sErr := id.ParseCronID(e.SchedulerID); sErr == nil {
			j.SchedulerID = sID
		}
	}
	return j, nil
}

func encodeJob(j *job.Job) ([]byte, error) {
	b, err := msgpack.Marshal(toJobEntity(j))
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: encode job: %w", err)
	}
	return b, nil
}

func decodeJob(b []byte) (*job.Job, error) {
	var e jobEntity
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("jobqueue/redis: decode job: %w", err)
	}
	return fromJobEntity(&e)
}

// isDue reports whether j belongs in the due index.
func isDue(j *job.Job) bool {
	return j.Status == job.StatusQueued && j.DeletedAt == nil
}

// isRunning reports whether j belongs in the running index.
func isRunning(j *job.Job) bool {
	return j.Status == job.StatusRunning && j.DeletedAt == nil
}

// heartbeatScore places jobs without a heartbeat at the front of the
// running index, where the reaper finds them first.
func heartbeatScore(j *job.Job) float64 {
	if j.HeartbeatAt == nil {
		return 0
	}
	return score(*j.HeartbeatAt)
}

// indexJob queues the index writes that follow a change to j.
func indexJob(ctx context.Context, pipe goredis.Pipeliner, j *job.Job) {
	jID := j.ID.String()
	if isDue(j) {
		pipe.ZAdd(ctx, dueKey, goredis.Z{Score: score(j.ExecuteTime), Member: jID})
	} else {
		pipe.ZRem(ctx, dueKey, jID)
	}
	if isRunning(j) {
		pipe.ZAdd(ctx, runningKey, goredis.Z{Score: heartbeatScore(j), Member: jID})
	} else {
		pipe.ZRem(ctx, runningKey, jID)
	}
}

// errUnchanged lets a mutate callback skip the write without failing.
var errUnchanged = errors.New("jobqueue/redis: unchanged")

// mutate reads a job under WATCH, lets fn change it in place and writes
// the blob back together with its index entries. Errors from fn abort the
// transaction and are returned as-is.
func (s *Store) mutate(ctx context.Context, jobID id.JobID, op string, fn func(j *job.Job) error) (*job.Job, error) {
	key := jobKey(jobID.String())

	var out *job.Job
	err := s.watch(ctx, func(tx *goredis.Tx) error {
		j, err := getJob(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(j); err != nil {
			return err
		}
		b, err := encodeJob(j)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			indexJob(ctx, pipe, j)
			return nil
		})
		if err != nil {
			return fmt.Errorf("jobqueue/redis: %s: %w", op, err)
		}
		out = j
		return nil
	}, key)
	return out, err
}

// ── Store methods ──

// CreateJob stores the job blob and adds it to the indexes.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	b, err := encodeJob(j)
	if err != nil {
		return err
	}

	return s.watch(ctx, func(tx *goredis.Tx) error {
		n, existsErr := tx.Exists(ctx, key).Result()
		if existsErr != nil {
			return fmt.Errorf("jobqueue/redis: create job check exists: %w", existsErr)
		}
		if n > 0 {
			return jobqueue.ErrJobAlreadyExists
		}

		_, pipeErr := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.ZAdd(ctx, jobsKey, goredis.Z{Score: score(j.CreatedAt), Member: jID})
			indexJob(ctx, pipe, j)
			return nil
		})
		if pipeErr != nil {
			return fmt.Errorf("jobqueue/redis: create job: %w", pipeErr)
		}
		return nil
	}, key)
}

// GetJob retrieves a live job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := s.GetJobWithDeleted(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.IsDeleted() {
		return nil, jobqueue.ErrJobNotFound
	}
	return j, nil
}

// GetJobWithDeleted retrieves a job by ID, soft-deleted or not.
func (s *Store) GetJobWithDeleted(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return getJob(ctx, s.client, jobKey(jobID.String()))
}

func getJob(ctx context.Context, c goredis.Cmdable, key string) (*job.Job, error) {
	b, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, jobqueue.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobqueue/redis: get job: %w", err)
	}
	return decodeJob(b)
}

// UpdateJob persists changes to an existing job and stamps UpdatedAt.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	key := jobKey(j.ID.String())
	now := s.now()

	err := s.watch(ctx, func(tx *goredis.Tx) error {
		n, existsErr := tx.Exists(ctx, key).Result()
		if existsErr != nil {
			return fmt.Errorf("jobqueue/redis: update job check exists: %w", existsErr)
		}
		if n == 0 {
			return jobqueue.ErrJobNotFound
		}

		updated := *j
		updated.UpdatedAt = now
		b, encErr := encodeJob(&updated)
		if encErr != nil {
			return encErr
		}

		_, pipeErr := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			indexJob(ctx, pipe, &updated)
			return nil
		})
		if pipeErr != nil {
			return fmt.Errorf("jobqueue/redis: update job: %w", pipeErr)
		}
		return nil
	}, key)
	if err != nil {
		return err
	}

	j.UpdatedAt = now
	return nil
}

// ClaimJob moves a QUEUED job to RUNNING. The WATCH on the job key makes
// the read-check-write atomic; a losing transaction re-reads and observes
// the winner's RUNNING status.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID) error {
	_, err := s.mutate(ctx, jobID, "claim job", func(j *job.Job) error {
		if j.IsDeleted() {
			return jobqueue.ErrJobNotFound
		}
		if j.Status != job.StatusQueued {
			return jobqueue.ErrClaimConflict
		}
		now := s.now()
		j.Status = job.StatusRunning
		j.HeartbeatAt = &now
		j.UpdatedAt = now
		return nil
	})
	return err
}

// CancelJob soft-deletes a job only while it is still QUEUED.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	_, err := s.mutate(ctx, jobID, "cancel job", func(j *job.Job) error {
		if j.IsDeleted() {
			return jobqueue.ErrJobNotFound
		}
		if j.Status != job.StatusQueued {
			return fmt.Errorf("%w: job %s is %s", jobqueue.ErrInvalidState, jobID, j.Status)
		}
		now := s.now()
		j.DeletedAt = &now
		return nil
	})
	return err
}

// HeartbeatJob stamps HeartbeatAt on a RUNNING job and moves it to the
// back of the running index.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, at time.Time) error {
	_, err := s.mutate(ctx, jobID, "heartbeat job", func(j *job.Job) error {
		if j.IsDeleted() {
			return jobqueue.ErrJobNotFound
		}
		if j.Status != job.StatusRunning {
			return fmt.Errorf("%w: job %s is %s", jobqueue.ErrInvalidState, jobID, j.Status)
		}
		j.HeartbeatAt = &at
		return nil
	})
	return err
}

// RequeueStaleJobs reads the running index up to staleBefore and resets
// each job in its own transaction, re-checking staleness under WATCH.
func (s *Store) RequeueStaleJobs(ctx context.Context, staleBefore, now time.Time) ([]*job.Job, error) {
	ids, err := s.client.ZRangeByScore(ctx, runningKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(staleBefore.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: stale jobs: %w", err)
	}

	var reset []*job.Job
	for _, raw := range ids {
		jobID, err := id.ParseJobID(raw)
		if err != nil {
			return nil, fmt.Errorf("jobqueue/redis: parse job id %q: %w", raw, err)
		}

		j, err := s.mutate(ctx, jobID, "requeue stale job", func(j *job.Job) error {
			if !j.IsStale(staleBefore) {
				return errUnchanged
			}
			j.ResetStale(now)
			j.UpdatedAt = now
			return nil
		})
		switch {
		case errors.Is(err, errUnchanged):
			continue
		case errors.Is(err, jobqueue.ErrJobNotFound):
			s.client.ZRem(ctx, runningKey, raw)
			continue
		case err != nil:
			return nil, err
		}
		reset = append(reset, j)
	}
	return reset, nil
}

// DueJobs walks the due index up to now and returns live QUEUED jobs
// visible to client, oldest execute time first.
func (s *Store) DueJobs(ctx context.Context, client string, now time.Time, limit int) ([]*job.Job, error) {
	var out []*job.Job
	upper := strconv.FormatInt(now.UnixMicro(), 10)

	for offset := int64(0); ; offset += scanBatch {
		ids, err := s.client.ZRangeByScore(ctx, dueKey, &goredis.ZRangeBy{
			Min:    "-inf",
			Max:    upper,
			Offset: offset,
			Count:  scanBatch,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("jobqueue/redis: due jobs: %w", err)
		}

		jobs, err := s.loadJobs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, j := range jobs {
			if !isDue(j) || (j.Client != "" && j.Client != client) {
				continue
			}
			out = append(out, j)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}

		if len(ids) < scanBatch {
			return out, nil
		}
	}
}

// ListJobs returns jobs matching opts ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var (
		out     []*job.Job
		skipped int
	)

	err := s.eachJob(ctx, func(j *job.Job) bool {
		if !matchList(j, opts) {
			return true
		}
		if skipped < opts.Offset {
			skipped++
			return true
		}
		out = append(out, j)
		return opts.Limit <= 0 || len(out) < opts.Limit
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matchList(j *job.Job, opts job.ListOpts) bool {
	if !opts.IncludeDeleted && j.IsDeleted() {
		return false
	}
	if opts.Status != "" && j.Status != opts.Status {
		return false
	}
	if opts.Client != "" && j.Client != opts.Client {
		return false
	}
	if !opts.ModifiedBefore.IsZero() && !j.UpdatedAt.Before(opts.ModifiedBefore) {
		return false
	}
	return true
}

// CountJobs returns the number of live jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	var count int64
	err := s.eachJob(ctx, func(j *job.Job) bool {
		if j.IsDeleted() {
			return true
		}
		if opts.Status != "" && j.Status != opts.Status {
			return true
		}
		if opts.Client != "" && j.Client != opts.Client {
			return true
		}
		count++
		return true
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SoftDeleteJob sets DeletedAt and drops the job from the indexes.
// UpdatedAt is left alone.
func (s *Store) SoftDeleteJob(ctx context.Context, jobID id.JobID) error {
	_, err := s.mutate(ctx, jobID, "soft delete job", func(j *job.Job) error {
		if j.DeletedAt == nil {
			now := s.now()
			j.DeletedAt = &now
		}
		return nil
	})
	return err
}

// PurgeJob removes a job and its index entries permanently.
func (s *Store) PurgeJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, jobKey(jID))
	pipe.ZRem(ctx, jobsKey, jID)
	pipe.ZRem(ctx, dueKey, jID)
	pipe.ZRem(ctx, runningKey, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobqueue/redis: purge job: %w", err)
	}
	if del.Val() == 0 {
		return jobqueue.ErrJobNotFound
	}
	return nil
}

// eachJob walks every job in creation order until fn returns false.
func (s *Store) eachJob(ctx context.Context, fn func(*job.Job) bool) error {
	for start := int64(0); ; start += scanBatch {
		ids, err := s.client.ZRange(ctx, jobsKey, start, start+scanBatch-1).Result()
		if err != nil {
			return fmt.Errorf("jobqueue/redis: scan jobs: %w", err)
		}

		jobs, err := s.loadJobs(ctx, ids)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			if !fn(j) {
				return nil
			}
		}

		if len(ids) < scanBatch {
			return nil
		}
	}
}

// loadJobs fetches the blobs for ids in order. IDs whose blob vanished
// between the index read and the fetch are skipped.
func (s *Store) loadJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, jID := range ids {
		keys[i] = jobKey(jID)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: load jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		j, decErr := decodeJob([]byte(raw))
		if decErr != nil {
			return nil, decErr
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
