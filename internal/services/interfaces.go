// Package services holds the bridge's domain logic: issue reference
// matching, changelog link annotation, push dispatch and issue comments.
package services

import (
	"context"
	"errors"
	"io"

	"github.com/bucketbridge/bucketbridge/internal/jobs"
	"github.com/bucketbridge/bucketbridge/internal/models"
)

// Service error definitions
var (
	ErrPollingFailed       = errors.New("failed to record SCM polling")
	ErrCommentPostFailed   = errors.New("failed to post issue comment")
	ErrConfigurationAbsent = errors.New("gitbucket link is not configured")
	ErrJobNotFound         = errors.New("job not found")
)

// JobRegistry enumerates the jobs known to the bridge
type JobRegistry interface {
	ListJobs(ctx context.Context) ([]*models.Job, error)
	GetJob(ctx context.Context, name string) (*models.Job, error)
}

// Poller detects SCM changes for a job, writing progress to log
type Poller interface {
	Poll(ctx context.Context, job *models.Job, log io.Writer) (bool, error)
}

// BuildScheduler requests a build. It returns false when an equivalent build
// is already waiting in the build queue.
type BuildScheduler interface {
	ScheduleBuild(ctx context.Context, job *models.Job, cause *PushCause, params map[string]string) (bool, error)
}

// IssueCommenter posts a comment on a GitBucket issue
type IssueCommenter interface {
	CreateIssueComment(ctx context.Context, baseURL, token string, issueID int, body string) error
}

// TaskQueue runs dispatched poll tasks
type TaskQueue interface {
	Execute(task jobs.Task) error
}

// SecretResolver turns a stored token reference into the token value
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
