package handlers

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"os"

	"github.com/bucketbridge/bucketbridge/internal/models"
	"github.com/bucketbridge/bucketbridge/internal/services"
)

// JobLookup finds a job by name
type JobLookup interface {
	GetJob(ctx context.Context, name string) (*models.Job, error)
}

// PollLogReader returns the last poll log of a job
type PollLogReader interface {
	Read(jobName string) (string, error)
}

// JobAction is one entry of a job's action list
type JobAction struct {
	DisplayName string `json:"displayName"`
	URLName     string `json:"urlName"`
	IconFile    string `json:"iconFileName,omitempty"`
}

// JobResponse is the JSON view of a job
type JobResponse struct {
	Name        string      `json:"name"`
	PushTrigger bool        `json:"pushTrigger"`
	Actions     []JobAction `json:"actions"`
}

// JobHandler serves the per-job pages under /job/{name}/
type JobHandler struct {
	jobs      JobLookup
	logs      PollLogReader
	annotator *services.LinkAnnotator
	logger    *slog.Logger
}

// NewJobHandler creates a job page handler
func NewJobHandler(jobs JobLookup, logs PollLogReader, annotator *services.LinkAnnotator, logger *slog.Logger) *JobHandler {
	if annotator == nil {
		annotator = services.NewLinkAnnotator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{jobs: jobs, logs: logs, annotator: annotator, logger: logger}
}

// lookup resolves {name}, writing the error response when it fails
func (h *JobHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing job name")
		return nil, false
	}

	job, err := h.jobs.GetJob(r.Context(), name)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return nil, false
		}
		h.logger.Error("failed to look up job", "job", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to look up job")
		return nil, false
	}
	return job, true
}

// PollLog handles GET /job/{name}/GitBucketPollLog
func (h *JobHandler) PollLog(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	text, err := h.logs.Read(job.Name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "no polling log")
			return
		}
		h.logger.Error("failed to read polling log", "job", job.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read polling log")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

// Link handles GET /job/{name}/gitbucket, redirecting to the repository
func (h *JobHandler) Link(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	action := job.LinkAction()
	if action == nil {
		writeError(w, http.StatusNotFound, "gitbucket link is not configured")
		return
	}
	http.Redirect(w, r, action.URL, http.StatusFound)
}

// Annotate handles GET /job/{name}/annotate?text=..., returning the
// escaped text with issue and wiki references turned into links
func (h *JobHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	text := services.NewMarkupText(html.EscapeString(r.URL.Query().Get("text")))
	h.annotator.AnnotateJob(job, text)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text.String()))
}

// Describe handles GET /job/{name}/api/json
func (h *JobHandler) Describe(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	resp := JobResponse{Name: job.Name, PushTrigger: job.PushTrigger, Actions: []JobAction{}}
	if job.PushTrigger {
		resp.Actions = append(resp.Actions, JobAction{
			DisplayName: "GitBucket Hook Log",
			URLName:     "GitBucketPollLog",
			IconFile:    "clipboard.png",
		})
	}
	if link := job.LinkAction(); link != nil {
		resp.Actions = append(resp.Actions, JobAction{
			DisplayName: link.DisplayName,
			URLName:     "gitbucket",
			IconFile:    link.IconFile,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
