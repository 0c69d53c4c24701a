package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status      int
	ContentType string
	Result      []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, "idemp:"+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	err = json.Unmarshal(val, &resp)
	return &resp, err
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, "idemp:"+key, data, ttl).Err()
}

// releaseLock deletes a lock only while it is still held by the caller's
// token, so a request that outlived its lock cannot free a newer holder's.
const releaseLock = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

func lockKey(key string) string {
	return "idemp:lock:" + key
}

// Acquire marks key as in flight on behalf of token. It reports false when
// another request already holds it.
func (i *Idempotency) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, lockKey(key), token, ttl).Result()
}

func (i *Idempotency) Release(ctx context.Context, key, token string) error {
	return i.client.Eval(ctx, releaseLock, []string{lockKey(key)}, token).Err()
}
