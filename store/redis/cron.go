package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
)

// ── MessagePack model ──

// cronEntity omits the lock fields; the lock lives in its own key so its
// expiry can ride on the Redis TTL.
type cronEntity struct {
	ID                string        `msgpack:"id"`
	Name              string        `msgpack:"name"`
	Schedule          string        `msgpack:"schedule"`
	Target            string        `msgpack:"target"`
	Data              string        `msgpack:"data"`
	AssignedPrincipal string        `msgpack:"assigned_principal"`
	Client            string        `msgpack:"client"`
	Requeue           bool          `msgpack:"requeue"`
	RetryCount        int           `msgpack:"retry_count"`
	JobDelay          time.Duration `msgpack:"job_delay"`
	MinInterval       time.Duration `msgpack:"min_interval"`
	LastRunAt         *time.Time    `msgpack:"last_run_at,omitempty"`
	NextRunAt         *time.Time    `msgpack:"next_run_at,omitempty"`
	Enabled           bool          `msgpack:"enabled"`
	CreatedAt         time.Time     `msgpack:"created_at"`
	UpdatedAt         time.Time     `msgpack:"updated_at"`
}

func toCronEntity(e *cron.Entry) *cronEntity {
	return &cronEntity{
		ID:                e.ID.String(),
		Name:              e.Name,
		Schedule:          e.Schedule,
		Target:            e.Target,
		Data:              e.Data,
		AssignedPrincipal: e.AssignedPrincipal,
		Client:            e.Client,
		Requeue:           e.Requeue,
		RetryCount:        e.RetryCount,
		JobDelay:          e.JobDelay,
		MinInterval:       e.MinInterval,
		LastRunAt:         e.LastRunAt,
		NextRunAt:         e.NextRunAt,
		Enabled:           e.Enabled,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func fromCronEntity(e *cronEntity) (*cron.Entry, error) {
	eID, err := id.ParseCronID(e.ID)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: parse cron id %q: %w", e.ID, err)
	}

	return &cron.Entry{
		Entity: jobqueue.Entity{
			CreatedAt: e.CreatedAt.UTC(),
			UpdatedAt: e.UpdatedAt.UTC(),
		},
		ID:                eID,
		Name:              e.Name,
		Schedule:          e.Schedule,
		Target:            e.Target,
		Data:              e.Data,
		AssignedPrincipal: e.AssignedPrincipal,
		Client:            e.Client,
		Requeue:           e.Requeue,
		RetryCount:        e.RetryCount,
		JobDelay:          e.JobDelay,
		MinInterval:       e.MinInterval,
		LastRunAt:         utcPtr(e.LastRunAt),
		NextRunAt:         utcPtr(e.NextRunAt),
		Enabled:           e.Enabled,
	}, nil
}

func encodeCron(e *cron.Entry) ([]byte, error) {
	b, err := msgpack.Marshal(toCronEntity(e))
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: encode cron: %w", err)
	}
	return b, nil
}

func decodeCron(b []byte) (*cron.Entry, error) {
	var e cronEntity
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("jobqueue/redis: decode cron: %w", err)
	}
	return fromCronEntity(&e)
}

func getCron(ctx context.Context, c goredis.Cmdable, key string) (*cron.Entry, error) {
	b, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, jobqueue.ErrCronNotFound
		}
		return nil, fmt.Errorf("jobqueue/redis: get cron: %w", err)
	}
	return decodeCron(b)
}

// ── Lock scripts ──

// acquireLockScript returns -1 when the entry is missing, 1 when the lock
// was taken or refreshed, 0 when another worker holds it.
var acquireLockScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local owner = redis.call('GET', KEYS[2])
if owner == false or owner == ARGV[1] then
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
	return 1
end
return 0
`)

var releaseLockScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// ── Store methods ──

// RegisterCron persists a new cron entry. Returns ErrDuplicateCron if the
// name already exists.
func (s *Store) RegisterCron(ctx context.Context, entry *cron.Entry) error {
	eID := entry.ID.String()
	key := cronKey(eID)

	b, err := encodeCron(entry)
	if err != nil {
		return err
	}

	return s.watch(ctx, func(tx *goredis.Tx) error {
		taken, hErr := tx.HExists(ctx, cronNamesKey, entry.Name).Result()
		if hErr != nil {
			return fmt.Errorf("jobqueue/redis: register cron check name: %w", hErr)
		}
		n, eErr := tx.Exists(ctx, key).Result()
		if eErr != nil {
			return fmt.Errorf("jobqueue/redis: register cron check exists: %w", eErr)
		}
		if taken || n > 0 {
			return jobqueue.ErrDuplicateCron
		}

		_, pipeErr := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.HSet(ctx, cronNamesKey, entry.Name, eID)
			pipe.ZAdd(ctx, cronsKey, goredis.Z{Score: score(entry.CreatedAt), Member: eID})
			return nil
		})
		if pipeErr != nil {
			return fmt.Errorf("jobqueue/redis: register cron: %w", pipeErr)
		}
		return nil
	}, key, cronNamesKey)
}

// GetCron retrieves a cron entry by ID together with its current lock.
func (s *Store) GetCron(ctx context.Context, entryID id.CronID) (*cron.Entry, error) {
	eID := entryID.String()

	pipe := s.client.Pipeline()
	blob := pipe.Get(ctx, cronKey(eID))
	owner := pipe.Get(ctx, cronLockKey(eID))
	ttl := pipe.PTTL(ctx, cronLockKey(eID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("jobqueue/redis: get cron: %w", err)
	}

	b, err := blob.Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, jobqueue.ErrCronNotFound
		}
		return nil, fmt.Errorf("jobqueue/redis: get cron: %w", err)
	}
	e, err := decodeCron(b)
	if err != nil {
		return nil, err
	}

	if lockedBy, lockErr := owner.Result(); lockErr == nil {
		e.LockedBy = lockedBy
		if d := ttl.Val(); d > 0 {
			until := s.now().Add(d)
			e.LockedUntil = &until
		}
	}
	return e, nil
}

// ListCrons returns all cron entries in creation order.
func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	ids, err := s.client.ZRange(ctx, cronsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: list crons: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, eID := range ids {
		keys[i] = cronKey(eID)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: list crons: %w", err)
	}

	entries := make([]*cron.Entry, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		e, decErr := decodeCron([]byte(raw))
		if decErr != nil {
			return nil, decErr
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AcquireCronLock attempts to lock a cron entry for workerID. It succeeds
// when the entry is unlocked, the lock expired, or workerID already holds
// it; in the last case the TTL is refreshed.
func (s *Store) AcquireCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	eID := entryID.String()
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	res, err := acquireLockScript.Run(ctx, s.client,
		[]string{cronKey(eID), cronLockKey(eID)},
		workerID.String(), ms,
	).Int()
	if err != nil {
		return false, fmt.Errorf("jobqueue/redis: acquire cron lock: %w", err)
	}

	switch res {
	case -1:
		return false, jobqueue.ErrCronNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// ReleaseCronLock releases the lock if workerID holds it.
func (s *Store) ReleaseCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID) error {
	err := releaseLockScript.Run(ctx, s.client,
		[]string{cronLockKey(entryID.String())},
		workerID.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("jobqueue/redis: release cron lock: %w", err)
	}
	return nil
}

// UpdateCronLastRun records when a job of the entry last ran.
func (s *Store) UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error {
	key := cronKey(entryID.String())

	return s.watch(ctx, func(tx *goredis.Tx) error {
		e, err := getCron(ctx, tx, key)
		if err != nil {
			return err
		}
		e.LastRunAt = &at
		e.UpdatedAt = s.now()

		b, err := encodeCron(e)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		if err != nil {
			return fmt.Errorf("jobqueue/redis: update cron last run: %w", err)
		}
		return nil
	}, key)
}

// UpdateCronEntry updates a cron entry. The lock is not touched. Renaming
// onto a name held by another entry returns ErrDuplicateCron.
func (s *Store) UpdateCronEntry(ctx context.Context, entry *cron.Entry) error {
	eID := entry.ID.String()
	key := cronKey(eID)
	now := s.now()

	err := s.watch(ctx, func(tx *goredis.Tx) error {
		prev, err := getCron(ctx, tx, key)
		if err != nil {
			return err
		}

		renamed := prev.Name != entry.Name
		if renamed {
			owner, hErr := tx.HGet(ctx, cronNamesKey, entry.Name).Result()
			if hErr != nil && !errors.Is(hErr, goredis.Nil) {
				return fmt.Errorf("jobqueue/redis: update cron check name: %w", hErr)
			}
			if hErr == nil && owner != eID {
				return jobqueue.ErrDuplicateCron
			}
		}

		updated := *entry
		updated.UpdatedAt = now
		b, err := encodeCron(&updated)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			if renamed {
				pipe.HDel(ctx, cronNamesKey, prev.Name)
				pipe.HSet(ctx, cronNamesKey, entry.Name, eID)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("jobqueue/redis: update cron entry: %w", err)
		}
		return nil
	}, key, cronNamesKey)
	if err != nil {
		return err
	}

	entry.UpdatedAt = now
	return nil
}

// DeleteCron removes a cron entry, its lock, and its index entries.
func (s *Store) DeleteCron(ctx context.Context, entryID id.CronID) error {
	eID := entryID.String()
	key := cronKey(eID)

	return s.watch(ctx, func(tx *goredis.Tx) error {
		e, err := getCron(ctx, tx, key)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key, cronLockKey(eID))
			pipe.HDel(ctx, cronNamesKey, e.Name)
			pipe.ZRem(ctx, cronsKey, eID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("jobqueue/redis: delete cron: %w", err)
		}
		return nil
	}, key, cronNamesKey)
}
