package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisadapter "github.com/robertarktes/ticket-marketplace/internal/adapters/redis"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
)

const listKeysGroup = "catalog:list-keys"

// cachedService is a read-through cache in front of a Service. Listings are
// display data, so entries may lag behind inventory changes by up to ttl.
type cachedService struct {
	next   Service
	cache  *redisadapter.Cache
	ttl    time.Duration
	logger observability.Logger
}

func NewCachedService(next Service, cache *redisadapter.Cache, ttl time.Duration, logger observability.Logger) Service {
	return &cachedService{next: next, cache: cache, ttl: ttl, logger: logger}
}

func eventKey(id uuid.UUID) string {
	return "catalog:event:" + id.String()
}

func listKey(filter domain.EventFilter) string {
	return fmt.Sprintf("catalog:events:%s:%t", filter.OrganizerID, filter.UpcomingOnly)
}

func (s *cachedService) CreateEvent(ctx context.Context, principalID string, req domain.CreateEventRequest) (*domain.Event, error) {
	ev, err := s.next.CreateEvent(ctx, principalID, req)
	if err != nil {
		return nil, err
	}
	if err := s.cache.DropGroup(ctx, listKeysGroup); err != nil {
		s.log(ctx).WithError(err).Warn("failed to invalidate catalog listings")
	}
	return ev, nil
}

func (s *cachedService) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	key := listKey(filter)
	var events []domain.Event
	if s.lookup(ctx, key, &events) {
		return events, nil
	}

	events, err := s.next.ListEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	if s.store(ctx, key, events) {
		if err := s.cache.Track(ctx, listKeysGroup, key); err != nil {
			s.log(ctx).WithError(err).Warn("failed to track catalog cache key")
		}
	}
	return events, nil
}

func (s *cachedService) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	key := eventKey(id)
	var ev domain.Event
	if s.lookup(ctx, key, &ev) {
		return &ev, nil
	}

	got, err := s.next.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, got)
	return got, nil
}

// lookup never fails the request: cache errors fall through to the store.
func (s *cachedService) lookup(ctx context.Context, key string, dst interface{}) bool {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log(ctx).WithError(err).Warn("catalog cache read failed")
		observability.CatalogCacheHits.WithLabelValues("error").Inc()
		return false
	}
	if !ok {
		observability.CatalogCacheHits.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log(ctx).WithError(err).Warn("catalog cache entry is corrupt")
		observability.CatalogCacheHits.WithLabelValues("error").Inc()
		return false
	}
	observability.CatalogCacheHits.WithLabelValues("hit").Inc()
	return true
}

func (s *cachedService) store(ctx context.Context, key string, v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		s.log(ctx).WithError(err).Warn("failed to encode catalog cache entry")
		return false
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.log(ctx).WithError(err).Warn("catalog cache write failed")
		return false
	}
	return true
}

func (s *cachedService) log(ctx context.Context) observability.Logger {
	return observability.LoggerFromContext(ctx, s.logger)
}
