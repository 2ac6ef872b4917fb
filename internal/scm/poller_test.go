package scm

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucketbridge/bucketbridge/internal/models"
)

type fakeCommander struct {
	outputs map[string]string
	err     error
	failing map[string]bool
	calls   [][]string
}

func (f *fakeCommander) RunProgram(ctx context.Context, path string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{path}, args...))
	if f.err != nil {
		return []byte("fatal: repository not found"), f.err
	}
	if f.failing[args[len(args)-1]] {
		return []byte("fatal: unable to access"), errors.New("exit status 128")
	}
	return []byte(f.outputs[args[len(args)-1]]), nil
}

func TestGitPoller_FirstPollReportsChanges(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{
		"http://h/a.git": "aaa111\trefs/heads/master\nbbb222\trefs/heads/dev\n",
	}}
	poller := NewGitPoller("", cmd, NewMemoryHeadStore())
	job := &models.Job{Name: "a", SCM: gitSCM("http://h/a.git")}

	var log bytes.Buffer
	changed, err := poller.Poll(context.Background(), job, &log)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, log.String(), "Polling http://h/a.git")
	assert.Equal(t, []string{"git", "ls-remote", "--heads", "http://h/a.git"}, cmd.calls[0])
}

func TestGitPoller_DetectsChangedHead(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{
		"http://h/a.git": "aaa111\trefs/heads/master\n",
	}}
	store := NewMemoryHeadStore()
	poller := NewGitPoller("git", cmd, store)
	job := &models.Job{Name: "a", SCM: gitSCM("http://h/a.git")}

	var log bytes.Buffer
	_, err := poller.Poll(context.Background(), job, &log)
	require.NoError(t, err)

	changed, err := poller.Poll(context.Background(), job, &log)
	require.NoError(t, err)
	assert.False(t, changed, "same heads should not report changes")

	cmd.outputs["http://h/a.git"] = "ccc333\trefs/heads/master\n"
	log.Reset()
	changed, err = poller.Poll(context.Background(), job, &log)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, log.String(), "refs/heads/master: aaa111 -> ccc333")
}

func TestGitPoller_BranchFilter(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{
		"http://h/a.git": "aaa111\trefs/heads/master\nbbb222\trefs/heads/dev\n",
	}}
	store := NewMemoryHeadStore()
	poller := NewGitPoller("git", cmd, store)
	job := &models.Job{Name: "a", SCM: gitSCM("http://h/a.git")}
	job.SCM.Branches = []string{"*/master"}

	var log bytes.Buffer
	_, err := poller.Poll(context.Background(), job, &log)
	require.NoError(t, err)

	heads, ok, err := store.GetHeads(context.Background(), "a", "http://h/a.git")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"refs/heads/master": "aaa111"}, heads)

	cmd.outputs["http://h/a.git"] = "aaa111\trefs/heads/master\nccc333\trefs/heads/dev\n"
	changed, err := poller.Poll(context.Background(), job, &log)
	require.NoError(t, err)
	assert.False(t, changed, "changes on unwatched branches are ignored")
}

func TestGitPoller_CommandFailure(t *testing.T) {
	cmd := &fakeCommander{err: errors.New("exit status 128")}
	poller := NewGitPoller("git", cmd, NewMemoryHeadStore())
	job := &models.Job{Name: "a", SCM: gitSCM("http://h/a.git")}

	var log bytes.Buffer
	changed, err := poller.Poll(context.Background(), job, &log)

	require.Error(t, err)
	assert.False(t, changed)
	assert.Contains(t, err.Error(), "repository not found")
}

func TestGitPoller_FailedRemoteKeepsPendingChanges(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]string{
		"http://h/a.git": "aaa111\trefs/heads/master\n",
		"http://h/b.git": "bbb222\trefs/heads/master\n",
	}}
	store := NewMemoryHeadStore()
	poller := NewGitPoller("git", cmd, store)
	job := &models.Job{Name: "a", SCM: gitSCM("http://h/a.git", "http://h/b.git")}

	var log bytes.Buffer
	_, err := poller.Poll(context.Background(), job, &log)
	require.NoError(t, err)

	cmd.outputs["http://h/a.git"] = "ccc333\trefs/heads/master\n"
	cmd.failing = map[string]bool{"http://h/b.git": true}
	changed, err := poller.Poll(context.Background(), job, &log)
	require.Error(t, err)
	assert.False(t, changed)

	heads, _, err := store.GetHeads(context.Background(), "a", "http://h/a.git")
	require.NoError(t, err)
	assert.Equal(t, "aaa111", heads["refs/heads/master"], "heads must not be saved when a remote fails")

	cmd.failing = nil
	log.Reset()
	changed, err = poller.Poll(context.Background(), job, &log)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, log.String(), "refs/heads/master: aaa111 -> ccc333")
}

func TestGitPoller_NoRemotes(t *testing.T) {
	poller := NewGitPoller("git", &fakeCommander{}, NewMemoryHeadStore())
	job := &models.Job{Name: "a", SCM: models.SCM{Type: "svn"}}

	var log bytes.Buffer
	changed, err := poller.Poll(context.Background(), job, &log)

	require.NoError(t, err)
	assert.False(t, changed)
}

func TestParseLsRemote_SkipsNoise(t *testing.T) {
	out := []byte("warning: redirecting\naaa\trefs/heads/master\nbbb\tHEAD\n")
	assert.Equal(t, map[string]string{"refs/heads/master": "aaa"}, parseLsRemote(out, nil))
}
