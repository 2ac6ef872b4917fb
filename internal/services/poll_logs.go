package services

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// PollLogFileName is the per-job polling log written by push triggers
const PollLogFileName = "gitbucket-polling.log"

// PollLogs stores one polling log per job under Dir/jobs/{job}
type PollLogs struct {
	Dir string
}

// NewPollLogs creates a log store rooted at dir
func NewPollLogs(dir string) *PollLogs {
	return &PollLogs{Dir: dir}
}

// Path returns the log file of a job
func (l *PollLogs) Path(jobName string) string {
	return filepath.Join(l.Dir, "jobs", url.PathEscape(jobName), PollLogFileName)
}

// Create opens the job's log for writing, discarding the previous run
func (l *PollLogs) Create(jobName string) (io.WriteCloser, error) {
	path := l.Path(jobName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open poll log: %w", err)
	}
	return f, nil
}

// Read returns the job's last polling log. The error wraps os.ErrNotExist
// when the job has never been polled.
func (l *PollLogs) Read(jobName string) (string, error) {
	data, err := os.ReadFile(l.Path(jobName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("poll log for %s: %w", jobName, os.ErrNotExist)
		}
		return "", fmt.Errorf("read poll log: %w", err)
	}
	return string(data), nil
}
