package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bucketbridge/bucketbridge/internal/auth"
	"github.com/bucketbridge/bucketbridge/internal/jobs"
	"github.com/bucketbridge/bucketbridge/internal/models"
	"github.com/bucketbridge/bucketbridge/internal/scm"
)

// ShaParameter is the build parameter carrying the pushed head commit
const ShaParameter = "sha1"

// PushDispatcher fans a push event out to every job whose push trigger is
// enabled and whose SCM points at the pushed repository. Poll-then-build
// tasks run on a single shared queue.
type PushDispatcher struct {
	registry  JobRegistry
	queue     TaskQueue
	poller    Poller
	scheduler BuildScheduler
	logs      *PollLogs
	logger    *slog.Logger
	now       func() time.Time
}

// NewPushDispatcher creates a dispatcher
func NewPushDispatcher(registry JobRegistry, queue TaskQueue, poller Poller, scheduler BuildScheduler, logs *PollLogs, logger *slog.Logger) *PushDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushDispatcher{
		registry:  registry,
		queue:     queue,
		poller:    poller,
		scheduler: scheduler,
		logs:      logs,
		logger:    logger,
		now:       time.Now,
	}
}

// Dispatch enqueues a poll task for each matching job and returns the number
// of jobs triggered. Job enumeration runs with the system identity.
func (d *PushDispatcher) Dispatch(ctx context.Context, event *models.PushEvent) (int, error) {
	if event == nil || event.Repository == nil {
		return 0, models.ErrInvalidPayload
	}
	repoURL := event.RepositoryURL()

	triggered := 0
	err := auth.RunAsSystem(ctx, func(ctx context.Context) error {
		all, err := d.registry.ListJobs(ctx)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		for _, job := range all {
			trigger := d.TriggerFor(job)
			if trigger == nil {
				continue
			}
			if !scm.MatchesRepository(job.SCM, repoURL) {
				d.logger.Debug("skipping job, repository does not match", "job", job.Name, "repository", repoURL)
				continue
			}
			if err := trigger.OnPost(event); err != nil {
				d.logger.Warn("failed to enqueue push task", "job", job.Name, "error", err)
				continue
			}
			triggered++
		}
		return nil
	})
	return triggered, err
}

// TriggerFor returns the job's push trigger, or nil when it has none
func (d *PushDispatcher) TriggerFor(job *models.Job) *PushTrigger {
	if job == nil || !job.PushTrigger {
		return nil
	}
	return &PushTrigger{job: job, dispatcher: d}
}

// PushTrigger binds one job to the dispatcher's queue
type PushTrigger struct {
	job        *models.Job
	dispatcher *PushDispatcher
}

// Job returns the job the trigger belongs to
func (t *PushTrigger) Job() *models.Job {
	return t.job
}

// OnPost queues a poll-then-build task for the job
func (t *PushTrigger) OnPost(event *models.PushEvent) error {
	job := t.job
	d := t.dispatcher
	return d.queue.Execute(jobs.Task{
		Name: "gitbucket-push:" + job.Name,
		Run: func(ctx context.Context) error {
			return d.run(ctx, job, event)
		},
	})
}

func (d *PushDispatcher) run(ctx context.Context, job *models.Job, event *models.PushEvent) error {
	d.logger.Info(fmt.Sprintf("%s triggered.", job.Name), "job", job.Name)

	changed, pollingLog, err := d.poll(ctx, job, event)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	cause := NewPushCause(event.PusherName(), pollingLog)
	params := map[string]string{}
	if last, ok := event.LastCommit(); ok {
		params[ShaParameter] = last.ID
	}

	scheduled, err := d.scheduler.ScheduleBuild(ctx, job, cause, params)
	if err != nil {
		d.logger.Error("failed to schedule build", "job", job.Name, "error", err)
		return fmt.Errorf("schedule build for %s: %w", job.Name, err)
	}
	if scheduled {
		d.logger.Info(fmt.Sprintf("SCM changes detected in %s. Triggering build", job.Name), "job", job.Name, ShaParameter, params[ShaParameter])
	} else {
		d.logger.Info(fmt.Sprintf("SCM changes detected in %s. Job is already in the queue.", job.Name), "job", job.Name)
	}
	return nil
}

// poll runs the job's poller, recording progress in its polling log. The
// returned string is the log text of this run.
func (d *PushDispatcher) poll(ctx context.Context, job *models.Job, event *models.PushEvent) (bool, string, error) {
	file, err := d.logs.Create(job.Name)
	if err != nil {
		d.logger.Error("Failed to record SCM polling", "job", job.Name, "error", err)
		return false, "", fmt.Errorf("%w: %v", ErrPollingFailed, err)
	}
	defer file.Close()

	var captured bytes.Buffer
	log := io.MultiWriter(file, &captured)

	start := d.now()
	fmt.Fprintf(log, "Started on %s\n", start.Format(time.RFC1123))

	changed, err := d.poller.Poll(ctx, job, log)
	if err != nil {
		fmt.Fprintf(log, "ERROR: Failed to record SCM polling\n%v\n", err)
		d.logger.Error("Failed to record SCM polling", "job", job.Name, "error", err)
		return false, captured.String(), fmt.Errorf("%w for %s: %w", ErrPollingFailed, job.Name, err)
	}

	fmt.Fprintf(log, "Done. Took %s\n", d.now().Sub(start).Round(time.Millisecond))
	if changed {
		fmt.Fprintln(log, "Changes found")
		if job.Link.HasURL() {
			writeCommitLinks(log, NewRepositoryBrowser(job.Link.URL), event.Commits)
		}
	} else {
		fmt.Fprintln(log, "No changes")
	}
	return changed, captured.String(), nil
}

// writeCommitLinks lists the pushed commits and their files as GitBucket
// links. Edited files link to their diff when the parent commit is part of
// the push.
func writeCommitLinks(w io.Writer, browser *RepositoryBrowser, commits []models.Commit) {
	parent := ""
	for _, c := range commits {
		cs := ChangeSetFromCommit(c, parent)
		fmt.Fprintf(w, "Commit %s %s\n", c.ShortID(), browser.ChangeSetLink(cs))
		for _, p := range cs.Paths {
			link := browser.DiffLink(cs, p)
			if link == "" {
				link = browser.FileLink(cs, p)
			}
			fmt.Fprintf(w, "  %s %s %s\n", p.EditType, p.Path, link)
		}
		parent = c.ID
	}
}
