package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bucketbridge/bucketbridge/internal/auth"
	"github.com/bucketbridge/bucketbridge/internal/models"
	"github.com/bucketbridge/bucketbridge/internal/services"
)

const jobColumns = `name, scm, push_trigger, gitbucket_url, link_enabled, api_token`

// JobStore persists bridge jobs and their GitBucket link configuration
type JobStore struct {
	db DBTX
}

// NewJobStore creates a new job store
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{db: pool}
}

// NewJobStoreWithDB creates a job store with a custom DBTX implementation.
// This is primarily used for testing with pgxmock.
func NewJobStoreWithDB(db DBTX) *JobStore {
	return &JobStore{db: db}
}

// ListJobs returns every job ordered by name. Anonymous callers are refused.
func (s *JobStore) ListJobs(ctx context.Context) ([]*models.Job, error) {
	if err := auth.RequireIdentity(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob returns a job by name
func (s *JobStore) GetJob(ctx context.Context, name string) (*models.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE name = $1`, name)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", services.ErrJobNotFound, name)
	}
	return job, err
}

// UpsertJob creates or replaces a job
func (s *JobStore) UpsertJob(ctx context.Context, job *models.Job) error {
	scm, err := json.Marshal(job.SCM)
	if err != nil {
		return fmt.Errorf("failed to encode scm: %w", err)
	}
	link := job.Link.Normalized()

	_, err = s.db.Exec(ctx,
		`INSERT INTO jobs (name, scm, push_trigger, gitbucket_url, link_enabled, api_token)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (name) DO UPDATE SET
		   scm = EXCLUDED.scm,
		   push_trigger = EXCLUDED.push_trigger,
		   gitbucket_url = EXCLUDED.gitbucket_url,
		   link_enabled = EXCLUDED.link_enabled,
		   api_token = EXCLUDED.api_token,
		   updated_at = NOW()`,
		job.Name, scm, job.PushTrigger, link.URL, link.LinkEnabled, link.APIToken,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.Name, err)
	}
	return nil
}

// DeleteJob removes a job; deleting a missing job reports ErrJobNotFound
func (s *JobStore) DeleteJob(ctx context.Context, name string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM jobs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", services.ErrJobNotFound, name)
	}
	return nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	var scm []byte
	var url, token string
	var linkEnabled bool

	if err := row.Scan(&job.Name, &scm, &job.PushTrigger, &url, &linkEnabled, &token); err != nil {
		return nil, err
	}
	if len(scm) > 0 {
		if err := json.Unmarshal(scm, &job.SCM); err != nil {
			return nil, fmt.Errorf("failed to decode scm of job %s: %w", job.Name, err)
		}
	}
	job.Link = models.NewJobLinkConfig(url, token, linkEnabled)
	return &job, nil
}
