package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
)

const (
	jobLockTTL   = 10 * time.Second
	jobLockRetry = 5 * time.Millisecond
)

// CacheJobStore keeps forecast jobs in the shared cache until ttl passes.
type CacheJobStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheJobStore returns a store writing through c. A non-positive ttl
// means one day.
func NewCacheJobStore(c cache.Service, ttl time.Duration) *CacheJobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CacheJobStore{cache: c, ttl: ttl}
}

// Save overwrites the stored job. Callers that must not lose concurrent
// writes hold Lock around Get and Save.
func (s *CacheJobStore) Save(ctx context.Context, job *models.ForecastJob) error {
	if err := s.cache.Set(ctx, jobKey(job.ID), job, s.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *CacheJobStore) Get(ctx context.Context, id string) (*models.ForecastJob, error) {
	var job models.ForecastJob
	if err := s.cache.Get(ctx, jobKey(id), &job); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// Lock spins on a cache lock for the job until it is acquired or ctx ends.
// The lock expires on its own if the holder dies.
func (s *CacheJobStore) Lock(ctx context.Context, id string) (func(), error) {
	key := cache.GenerateKey("job-lock", id)
	for {
		ok, err := s.cache.TryLock(ctx, key, jobLockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock job %s: %w", id, err)
		}
		if ok {
			return func() { _ = s.cache.Unlock(context.WithoutCancel(ctx), key) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock job %s: %w", id, ctx.Err())
		case <-time.After(jobLockRetry):
		}
	}
}

func jobKey(id string) string { return cache.GenerateKey("job", id) }

var _ domrepo.JobStore = (*CacheJobStore)(nil)
