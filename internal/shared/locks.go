package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobLockKey builds redis keys for job-level critical sections.
func JobLockKey(job string) string {
	return fmt.Sprintf("jobs:%s:lock", job)
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a leased mutual-exclusion lock backed by Redis. It prevents
// overlapping runs of the same periodic job across worker instances: the
// lease expires on its own if the holder dies mid-run.
type RunLock struct {
	client redis.UniversalClient
}

// NewRunLock constructs a RunLock on the given client.
func NewRunLock(client redis.UniversalClient) *RunLock {
	return &RunLock{client: client}
}

// Lease represents an acquired lock and releases only its own acquisition.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire attempts to take the lock for the given job. It returns a nil lease
// when another holder currently owns it.
func (l *RunLock) Acquire(ctx context.Context, job string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("run lock not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("run lock ttl must be positive")
	}
	key := JobLockKey(job)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Release frees the lock if this lease still owns it. Releasing an expired or
// stolen lease is a no-op.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.client == nil {
		return nil
	}
	if err := releaseLockScript.Run(ctx, le.client, []string{le.key}, le.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release run lock %s: %w", le.key, err)
	}
	return nil
}
