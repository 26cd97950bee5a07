package keylock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 2 * time.Minute
	defaultRetry = 50 * time.Millisecond
	keyPrefix    = "stdimage:render:"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease lock shared by every process using the same redis. A lease
// expires after TTL so a crashed worker cannot block a key forever.
type Redis struct {
	client *redis.Client
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, TTL: defaultTTL, Retry: defaultRetry}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	const op = "keylock.Redis.Lock"

	name := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(r.Retry):
		}
	}

	return func() {
		// release with a fresh context: the caller's may already be cancelled
		_ = releaseScript.Run(context.Background(), r.client, []string{name}, token).Err()
	}, nil
}
