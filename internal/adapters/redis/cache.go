package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// Get returns the cached bytes and whether the key was present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, val, ttl).Err()
}

// Track remembers key as a member of group so the whole group can be dropped
// at once.
func (c *Cache) Track(ctx context.Context, group, key string) error {
	return c.client.SAdd(ctx, group, key).Err()
}

// DropGroup deletes every key tracked under group and the group itself.
func (c *Cache) DropGroup(ctx context.Context, group string) error {
	keys, err := c.client.SMembers(ctx, group).Result()
	if err != nil {
		return err
	}
	return c.client.Del(ctx, append(keys, group)...).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}
