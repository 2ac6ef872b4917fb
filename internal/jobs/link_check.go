package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bucketbridge/bucketbridge/internal/auth"
	"github.com/bucketbridge/bucketbridge/internal/models"
)

// =============================================================================
// GitBucket Link Check Job
// Periodically verifies that each job's GitBucket URL and API token work
// =============================================================================

// JobLister enumerates the jobs to check
type JobLister interface {
	ListJobs(ctx context.Context) ([]*models.Job, error)
}

// TokenResolver turns a stored token reference into the token value
type TokenResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// RepositoryChecker verifies that a repository is reachable with a token
type RepositoryChecker interface {
	CheckRepository(ctx context.Context, baseURL, token string) error
}

// LinkCheckResult contains the results of one check run
type LinkCheckResult struct {
	Healthy   int
	Unhealthy int
	// Skipped counts jobs without a GitBucket URL
	Skipped  int
	Errors   []error
	Duration time.Duration
}

// LinkCheckJob checks every linked job against the GitBucket API
type LinkCheckJob struct {
	jobs    JobLister
	tokens  TokenResolver
	checker RepositoryChecker
	logger  *slog.Logger
}

// NewLinkCheckJob creates a new link check job
func NewLinkCheckJob(jobs JobLister, tokens TokenResolver, checker RepositoryChecker, logger *slog.Logger) *LinkCheckJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkCheckJob{jobs: jobs, tokens: tokens, checker: checker, logger: logger}
}

// Run checks all jobs once. Per-job failures are counted, not returned.
func (j *LinkCheckJob) Run(ctx context.Context) (*LinkCheckResult, error) {
	start := time.Now()
	result := &LinkCheckResult{}

	var list []*models.Job
	err := auth.RunAsSystem(ctx, func(ctx context.Context) error {
		var err error
		list, err = j.jobs.ListJobs(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	for _, job := range list {
		if !job.Link.HasURL() {
			result.Skipped++
			continue
		}

		token, err := j.tokens.Resolve(ctx, job.Link.APIToken)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("resolving token for job=%s: %w", job.Name, err))
			result.Unhealthy++
			continue
		}

		if err := j.checker.CheckRepository(ctx, job.Link.URL, token); err != nil {
			result.Unhealthy++
			j.logger.Warn("GitBucket link unhealthy", "job", job.Name, "url", job.Link.URL, "error", err)
			continue
		}
		result.Healthy++
	}

	result.Duration = time.Since(start)
	j.logger.Info("link check completed",
		"healthy", result.Healthy,
		"unhealthy", result.Unhealthy,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"duration", result.Duration,
	)
	return result, nil
}

// RunEvery runs the check immediately and then every interval until ctx is done
func (j *LinkCheckJob) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error("link check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
