package scrapers

import (
	"context"

	rds "storescraper/internal/platform/redis"
)

// SeenMarker decides whether an item counts as newly added or as an update
// to something scraped on a previous run.
type SeenMarker interface {
	// MarkSeen records the handle and reports whether it was already known.
	MarkSeen(ctx context.Context, scope, handle string) (known bool, err error)
}

// RedisMarker tracks seen product handles in one Redis set per scope.
type RedisMarker struct {
	redis *rds.Service
}

func NewRedisMarker(redis *rds.Service) *RedisMarker {
	return &RedisMarker{redis: redis}
}

func (m *RedisMarker) MarkSeen(ctx context.Context, scope, handle string) (bool, error) {
	added, err := m.redis.Client().SAdd(ctx, "scraped:"+scope, handle).Result()
	if err != nil {
		return false, err
	}
	return added == 0, nil
}
