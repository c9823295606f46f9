package userlock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "renamebot:userlock"
	defaultRetry     = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never releases somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based lock shared by every bot replica using the same
// Redis. The lease expires after ttl if the holder dies.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	prefix string
	log    *slog.Logger
}

func NewRedis(client redis.Cmdable, ttl time.Duration, log *slog.Logger) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		retry:  defaultRetry,
		prefix: defaultKeyPrefix,
		log:    log,
	}
}

func (r *Redis) key(userID int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, userID)
}

func (r *Redis) Lock(ctx context.Context, userID int64) (func(), error) {
	key := r.key(userID)
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire user lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
				r.log.Warn("release user lock", "user_id", userID, "err", err)
			}
		})
	}, nil
}
