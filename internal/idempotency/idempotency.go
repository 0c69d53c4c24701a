package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	redisadapter "github.com/robertarktes/ticket-marketplace/internal/adapters/redis"
)

const (
	MinKeyLength = 16
	MaxKeyLength = 128

	inFlightTTL = 30 * time.Second
)

var (
	ErrInvalidKey = errors.New("idempotency key must be between 16 and 128 characters")
	ErrInFlight   = errors.New("a request with this idempotency key is in progress")
)

type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

// Scope namespaces a client key by principal so two callers can never see
// each other's stored responses.
func Scope(principalID, key string) (string, error) {
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return "", ErrInvalidKey
	}
	return principalID + ":" + key, nil
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.redis.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "read idempotency record")
	}
	if stored == nil {
		return nil, nil
	}
	return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	err := i.redis.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
	return errors.Wrap(err, "store idempotency record")
}

// Begin claims key for the duration of one request. The returned release
// function must be called once the response is settled.
func (i *Idempotency) Begin(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := i.redis.Acquire(ctx, key, token, inFlightTTL)
	if err != nil {
		return nil, errors.Wrap(err, "acquire idempotency key")
	}
	if !ok {
		return nil, ErrInFlight
	}
	return func() {
		_ = i.redis.Release(context.WithoutCancel(ctx), key, token)
	}, nil
}
