package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/platform/obs"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "roadcell:"

// RedisRoadCellStore keeps grid cell payloads in Redis. Entries expire after
// Retention; freshness is still decided by the caller from FetchedAt.
type RedisRoadCellStore struct {
	rdb       redis.UniversalClient
	retention time.Duration
	log       *slog.Logger
}

func NewRedisRoadCellStore(rdb redis.UniversalClient, retention time.Duration, lg *slog.Logger) *RedisRoadCellStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &RedisRoadCellStore{rdb: rdb, retention: retention, log: lg}
}

func (s *RedisRoadCellStore) GetCell(ctx context.Context, key string) (_ domain.MapData, _ bool, err error) {
	defer obs.Time(ctx, s.log, "roadcell.redis.GetCell")(&err)

	if key == "" {
		return domain.MapData{}, false, errors.New("get road cell: key must not be empty")
	}

	b, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MapData{}, false, nil
	}
	if err != nil {
		return domain.MapData{}, false, fmt.Errorf("get road cell %q: redis get: %w", key, err)
	}

	data, err := decodeCell(b)
	if err != nil {
		return domain.MapData{}, false, fmt.Errorf("get road cell %q: %w", key, err)
	}
	return data, true, nil
}

func (s *RedisRoadCellStore) PutCell(ctx context.Context, key string, data domain.MapData) (err error) {
	defer obs.Time(ctx, s.log, "roadcell.redis.PutCell")(&err)

	if key == "" {
		return errors.New("insert road cell: key must not be empty")
	}

	b, err := encodeCell(data)
	if err != nil {
		return fmt.Errorf("insert road cell %q: %w", key, err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+key, b, s.retention).Err(); err != nil {
		return fmt.Errorf("insert road cell %q: redis set: %w", key, err)
	}
	return nil
}
