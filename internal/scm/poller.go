package scm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"

	"github.com/bucketbridge/bucketbridge/internal/models"
)

// Commander runs an external program and returns its combined output
type Commander interface {
	RunProgram(ctx context.Context, path string, args ...string) ([]byte, error)
}

// ExecCommander runs programs with os/exec
type ExecCommander struct{}

// RunProgram implements Commander
func (ExecCommander) RunProgram(ctx context.Context, path string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	return cmd.CombinedOutput()
}

// HeadStore remembers the last seen heads of each job remote
type HeadStore interface {
	// GetHeads returns the stored ref -> sha map; ok is false when the
	// remote has never been polled for this job
	GetHeads(ctx context.Context, jobName, remoteURL string) (heads map[string]string, ok bool, err error)
	SaveHeads(ctx context.Context, jobName, remoteURL string, heads map[string]string) error
}

// GitPoller detects new commits by comparing `git ls-remote` output with
// the heads recorded on the previous poll
type GitPoller struct {
	gitPath   string
	commander Commander
	store     HeadStore
}

// NewGitPoller creates a poller; gitPath defaults to "git"
func NewGitPoller(gitPath string, commander Commander, store HeadStore) *GitPoller {
	if gitPath == "" {
		gitPath = "git"
	}
	if commander == nil {
		commander = ExecCommander{}
	}
	return &GitPoller{gitPath: gitPath, commander: commander, store: store}
}

// Poll reports whether any configured remote of the job has heads that differ
// from the last poll. Progress is written to log.
func (p *GitPoller) Poll(ctx context.Context, job *models.Job, log io.Writer) (bool, error) {
	urls := RemoteURLs(job.SCM)
	if len(urls) == 0 {
		fmt.Fprintln(log, "No git repositories configured")
		return false, nil
	}

	changed := false
	polled := make(map[string]map[string]string, len(urls))
	for _, url := range urls {
		fmt.Fprintf(log, "Polling %s\n", url)

		heads, err := p.lsRemote(ctx, url, job.SCM.Branches)
		if err != nil {
			return false, fmt.Errorf("ls-remote %s: %w", url, err)
		}

		previous, ok, err := p.store.GetHeads(ctx, job.Name, url)
		if err != nil {
			return false, fmt.Errorf("load heads for %s: %w", url, err)
		}

		diff := diffHeads(previous, heads)
		if !ok || len(diff) > 0 {
			changed = true
		}
		for _, line := range diff {
			fmt.Fprintf(log, "  %s\n", line)
		}
		polled[url] = heads
	}

	// heads are only recorded once every remote answered, so a failed poll
	// reports the same changes again next time
	for _, url := range urls {
		if err := p.store.SaveHeads(ctx, job.Name, url, polled[url]); err != nil {
			return false, fmt.Errorf("save heads for %s: %w", url, err)
		}
	}
	return changed, nil
}

func (p *GitPoller) lsRemote(ctx context.Context, url string, branches []string) (map[string]string, error) {
	out, err := p.commander.RunProgram(ctx, p.gitPath, "ls-remote", "--heads", url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return parseLsRemote(out, branches), nil
}

// parseLsRemote parses "sha<TAB>ref" lines, keeping only the given branches
// when any are configured
func parseLsRemote(out []byte, branches []string) map[string]string {
	wanted := make(map[string]bool, len(branches))
	for _, b := range branches {
		b = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(b), "*/"), "refs/heads/")
		if b != "" && b != "*" && b != "**" {
			wanted["refs/heads/"+b] = true
		}
	}

	heads := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || !strings.HasPrefix(fields[1], "refs/") {
			continue
		}
		if len(wanted) > 0 && !wanted[fields[1]] {
			continue
		}
		heads[fields[1]] = fields[0]
	}
	return heads
}

func diffHeads(previous, current map[string]string) []string {
	var lines []string
	for ref, sha := range current {
		old, ok := previous[ref]
		switch {
		case !ok:
			lines = append(lines, fmt.Sprintf("%s: new head %s", ref, sha))
		case old != sha:
			lines = append(lines, fmt.Sprintf("%s: %s -> %s", ref, old, sha))
		}
	}
	for ref := range previous {
		if _, ok := current[ref]; !ok {
			lines = append(lines, fmt.Sprintf("%s: removed", ref))
		}
	}
	sort.Strings(lines)
	return lines
}
