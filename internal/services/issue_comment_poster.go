package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bucketbridge/bucketbridge/internal/models"
)

// CommentResult summarizes one Perform call
type CommentResult struct {
	IssueIDs []int
	Posted   int
	Failed   int
}

// IssueCommentPoster posts the build result to every issue closed by a
// commit in the build's changelog. Posting is best effort: failures are
// logged per issue and never fail the build.
type IssueCommentPoster struct {
	commenter IssueCommenter
	secrets   SecretResolver
	rootURL   string
	logger    *slog.Logger
}

// NewIssueCommentPoster creates a poster; rootURL is the build server's
// public root used for badge and build links
func NewIssueCommentPoster(commenter IssueCommenter, secrets SecretResolver, rootURL string, logger *slog.Logger) *IssueCommentPoster {
	if secrets == nil {
		secrets = StaticSecrets{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IssueCommentPoster{
		commenter: commenter,
		secrets:   secrets,
		rootURL:   models.NormalizeBaseURL(rootURL),
		logger:    logger,
	}
}

// ExtractIssueIDs returns the ids closed by the changelog, in changelog
// order and by position within a message. Duplicates are kept.
func ExtractIssueIDs(changes []models.ChangeLogEntry) []int {
	var ids []int
	for _, entry := range changes {
		for _, m := range MatchIssues(entry.Msg, ClosingPatterns) {
			id, err := strconv.Atoi(m.ID)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// ComposeComment renders the Markdown comment for a finished build
func (p *IssueCommentPoster) ComposeComment(build *models.Build) string {
	var b strings.Builder
	b.WriteString("Integrated to ")
	fmt.Fprintf(&b, "![%s](%simages/16x16/%s)", build.Result, p.rootURL, build.StatusIcon)
	fmt.Fprintf(&b, "[%s No.%s](%s%s)", build.JobDisplayName, build.ID, p.rootURL, build.URL)
	return b.String()
}

// Perform posts one comment per referenced issue id. It returns
// ErrConfigurationAbsent when the job has no base URL or token, which
// callers treat as the feature being disabled.
func (p *IssueCommentPoster) Perform(ctx context.Context, job *models.Job, build *models.Build) (*CommentResult, error) {
	result := &CommentResult{IssueIDs: ExtractIssueIDs(build.Changes)}
	if len(result.IssueIDs) == 0 {
		return result, nil
	}

	if !job.Link.HasURL() {
		return result, fmt.Errorf("%w: job %s has no url", ErrConfigurationAbsent, job.Name)
	}
	token, err := p.secrets.Resolve(ctx, job.Link.APIToken)
	if err != nil {
		p.logger.Warn("failed to resolve api token", "job", job.Name, "error", err)
		return result, fmt.Errorf("%w: resolve token: %v", ErrConfigurationAbsent, err)
	}
	if token == "" {
		return result, fmt.Errorf("%w: job %s has no api token", ErrConfigurationAbsent, job.Name)
	}

	body := p.ComposeComment(build)
	for _, id := range result.IssueIDs {
		if err := p.commenter.CreateIssueComment(ctx, job.Link.URL, token, id, body); err != nil {
			result.Failed++
			p.logger.Warn("failed to comment on issue", "job", job.Name, "issue", id,
				"error", fmt.Errorf("%w: %v", ErrCommentPostFailed, err))
			continue
		}
		result.Posted++
		p.logger.Info("commented on issue", "job", job.Name, "issue", id)
	}
	return result, nil
}
