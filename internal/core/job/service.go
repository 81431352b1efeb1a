package job

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storescraper/internal/logger"
	rds "storescraper/internal/platform/redis"
)

const indexKey = "cronjobs"

func key(id string) string { return "cronjob:" + id }

// Service is the Redis-backed job registry.
type Service struct {
	redis *rds.Service
	log   *logger.Logger
}

func NewService(redis *rds.Service) *Service {
	return &Service{redis: redis, log: logger.New("JobRegistry")}
}

func (s *Service) Create(ctx context.Context, def *Definition) error {
	if err := s.redis.SetJSON(ctx, key(def.ID), def, 0); err != nil {
		return fmt.Errorf("store job %s: %w", def.ID, err)
	}
	if err := s.redis.Client().SAdd(ctx, indexKey, def.ID).Err(); err != nil {
		return fmt.Errorf("index job %s: %w", def.ID, err)
	}
	s.log.LogInfof("created job %s (%s)", def.ID, def.Name)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Definition, error) {
	var def Definition
	if err := s.redis.GetJSON(ctx, key(id), &def); err != nil {
		if s.redis.IsNil(err) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return &def, nil
}

func (s *Service) List(ctx context.Context) ([]*Definition, error) {
	ids, err := s.redis.Client().SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defs := make([]*Definition, 0, len(ids))
	for _, id := range ids {
		def, err := s.Get(ctx, id)
		if err == ErrJobNotFound {
			// Stale index entry; drop it.
			_ = s.redis.Client().SRem(ctx, indexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].CreatedAt.Before(defs[j].CreatedAt) })
	return defs, nil
}

// ListActive returns the definitions the scheduler should maintain triggers for.
func (s *Service) ListActive(ctx context.Context) ([]*Definition, error) {
	defs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := defs[:0]
	for _, def := range defs {
		if def.IsActive {
			active = append(active, def)
		}
	}
	return active, nil
}

func (s *Service) Save(ctx context.Context, def *Definition) error {
	def.UpdatedAt = time.Now()
	if err := s.redis.SetJSON(ctx, key(def.ID), def, 0); err != nil {
		return fmt.Errorf("save job %s: %w", def.ID, err)
	}
	return nil
}

// UpdateBookkeeping applies fn to the stored definition and writes it back.
// The engine only calls this after a run fully settles, so a plain
// read-modify-write is sufficient as long as one job never runs twice
// concurrently.
func (s *Service) UpdateBookkeeping(ctx context.Context, id string, fn func(*Definition)) (*Definition, error) {
	def, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(def)
	if err := s.Save(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.redis.Client().Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if err := s.redis.Client().SRem(ctx, indexKey, id).Err(); err != nil {
		return fmt.Errorf("unindex job %s: %w", id, err)
	}
	s.log.LogInfof("deleted job %s", id)
	return nil
}
