package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another run holds the week
var ErrLocked = errors.New("week is being optimized by another run")

// DefaultLockTTL bounds how long a crashed run can keep a week locked
const DefaultLockTTL = 15 * time.Minute

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// WeekLock acquires per-week locks with SET NX
type WeekLock struct {
	client *Client
	ttl    time.Duration
}

// NewWeekLock creates a locker; a non-positive ttl uses DefaultLockTTL
func NewWeekLock(client *Client, ttl time.Duration) *WeekLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &WeekLock{client: client, ttl: ttl}
}

// LockKey is the Redis key guarding a week
func LockKey(week string) string {
	return "planner:lock:week:" + week
}

// Acquire takes the lock of a week, returning ErrLocked when it is already held.
// The returned release function is a no-op once the lock has expired or been
// taken over.
func (l *WeekLock) Acquire(ctx context.Context, week string) (func(context.Context) error, error) {
	key := LockKey(week)
	token := uuid.NewString()

	ok, err := l.client.Client().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, week)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.Client(), []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}
