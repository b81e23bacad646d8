package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cardscope/gradepipe/internal/pipeline/domain"
	"github.com/google/uuid"
)

// DefaultJobTTL bounds a job's lifetime in the store.
const DefaultJobTTL = 30 * time.Minute

// Store is the process-wide index of job records. Each job is mutated only by
// the goroutine executing its pipeline; readers always receive deep snapshots,
// so concurrent polls never race the runner.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*domain.Job
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates a job store. A non-positive ttl falls back to DefaultJobTTL.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &Store{
		jobs:   make(map[string]*domain.Job),
		ttl:    ttl,
		logger: logger,
	}
}

// Create registers a new queued job and returns a snapshot of it.
func (s *Store) Create() *domain.Job {
	job := domain.NewJob(uuid.New().String(), s.ttl)

	s.mu.Lock()
	s.jobs[job.JobID] = job
	s.mu.Unlock()

	s.logger.Debug("Job created",
		slog.String("job_id", job.JobID),
		slog.Time("expires_at", job.ExpiresAt),
	)

	return job.Snapshot()
}

// Get returns a snapshot of a job. Expired entries are evicted lazily and
// reported as not found.
func (s *Store) Get(jobID string) (*domain.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrJobNotFound
	}

	if job.Expired(time.Now()) {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
		return nil, domain.ErrJobNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return job.Snapshot(), nil
}

// Update applies fn to the job under the store lock and bumps UpdatedAt.
// Unknown IDs are ignored; the runner is the only caller and holds a valid ID.
func (s *Store) Update(jobID string, fn func(j *domain.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now()
}

// Len reports the number of stored jobs, expired entries included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Sweep removes all expired jobs and returns how many were evicted.
func (s *Store) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, job := range s.jobs {
		if job.Expired(now) {
			delete(s.jobs, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("Expired jobs evicted",
			slog.Int("count", evicted),
			slog.Int("remaining", len(s.jobs)),
		)
	}
	return evicted
}

// StartSweeper runs periodic eviction until the context is canceled. Lazy
// eviction on Get keeps the store correct without it; the sweeper keeps it
// from accumulating dead entries between polls.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
