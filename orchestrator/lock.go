package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SequenceLockKey is the redis key of a sequence's advisory lease
func SequenceLockKey(sequenceID uint) string {
	return fmt.Sprintf("reachly:lock:sequence:%d", sequenceID)
}

// releaseScript deletes the lease only when the caller still holds it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements the per-sequence lease on redis via SET NX PX.
// The lease expires on its own if a holder dies mid-tick.
type RedisLocker struct {
	Client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.Client, []string{key}, token).Err()
}
