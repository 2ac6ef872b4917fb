package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/bucketbridge/bucketbridge/internal/auth"
	"github.com/bucketbridge/bucketbridge/internal/models"
)

// StaticJobRegistry holds jobs loaded from configuration. The job list can
// be swapped at runtime when the configuration file changes.
type StaticJobRegistry struct {
	mu   sync.RWMutex
	jobs []*models.Job
}

// NewStaticJobRegistry creates a registry with the given jobs
func NewStaticJobRegistry(jobs []models.Job) *StaticJobRegistry {
	r := &StaticJobRegistry{}
	r.Replace(jobs)
	return r
}

// Replace swaps the registered jobs
func (r *StaticJobRegistry) Replace(jobs []models.Job) {
	list := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		job := jobs[i]
		job.Link = job.Link.Normalized()
		list = append(list, &job)
	}

	r.mu.Lock()
	r.jobs = list
	r.mu.Unlock()
}

// ListJobs implements JobRegistry. Anonymous callers see no jobs.
func (r *StaticJobRegistry) ListJobs(ctx context.Context) ([]*models.Job, error) {
	if err := auth.RequireIdentity(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Job, len(r.jobs))
	copy(out, r.jobs)
	return out, nil
}

// GetJob implements JobRegistry
func (r *StaticJobRegistry) GetJob(ctx context.Context, name string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, job := range r.jobs {
		if job.Name == name {
			return job, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
}
