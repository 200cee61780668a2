package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release only if we still own the lock (token match).
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// SyncLock serializes incremental sync runs per source across process
// instances: one active run per source at a time, so two runs can never race
// to advance the same cursor out of order. The TTL bounds how long a crashed
// holder can block the next run.
type SyncLock struct {
	redisClient *redis.Client
	logger      *slog.Logger
	ttl         time.Duration
}

func NewSyncLock(redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *SyncLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SyncLock{redisClient: redisClient, logger: logger, ttl: ttl}
}

func syncLockKey(source string) string {
	return fmt.Sprintf("synclock:%s", source)
}

// TryAcquire attempts to take the per-source lock without blocking. On
// success it returns a release func; on contention it returns acquired=false.
func (l *SyncLock) TryAcquire(ctx context.Context, source string) (release func(), acquired bool, err error) {
	key := syncLockKey(source)
	token := uuid.NewString()

	ok, err := l.redisClient.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring sync lock for %s: %w", source, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// Detached context: the lock should be released even when the sync
		// run's context was cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(rctx, l.redisClient, []string{key}, token).Err(); err != nil {
			l.logger.Error("failed to release sync lock", "error", err, "source", source)
		}
	}
	return release, true, nil
}
