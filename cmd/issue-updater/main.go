// Command issue-updater comments on the GitBucket issues closed by a
// finished build. It is meant to run as a post-build step and never fails
// the build once the job and build report have been loaded.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bucketbridge/bucketbridge/internal/bridge"
	"github.com/bucketbridge/bucketbridge/internal/clients"
	"github.com/bucketbridge/bucketbridge/internal/config"
	"github.com/bucketbridge/bucketbridge/internal/models"
	"github.com/bucketbridge/bucketbridge/internal/services"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, logOut io.Writer) error {
	flags := pflag.NewFlagSet("issue-updater", pflag.ContinueOnError)
	loader := config.NewLoader(flags)
	jobName := flags.String("job", "", "name of the job that ran the build")
	buildFile := flags.String("build", "-", "build report JSON file, - for stdin")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *jobName == "" {
		return errors.New("--job is required")
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel, logOut)
	if err != nil {
		return err
	}

	build, err := readBuild(*buildFile, stdin)
	if err != nil {
		return err
	}

	res, err := bridge.NewOpener(logger).Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	job, err := res.Jobs.GetJob(ctx, *jobName)
	if err != nil {
		return err
	}

	poster := services.NewIssueCommentPoster(clients.NewGitBucketClient(), res.Secrets, cfg.RootURL, logger)
	result, err := poster.Perform(ctx, job, build)
	switch {
	case errors.Is(err, services.ErrConfigurationAbsent):
		logger.Info("issue comments disabled", "job", job.Name, "reason", err)
	case err != nil:
		logger.Warn("issue comments failed", "job", job.Name, "error", err)
	}

	fmt.Fprintf(stdout, "issues=%v posted=%d failed=%d\n", result.IssueIDs, result.Posted, result.Failed)
	return nil
}

func readBuild(path string, stdin io.Reader) (*models.Build, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open build report: %w", err)
		}
		defer f.Close()
		r = f
	}

	var build models.Build
	if err := json.NewDecoder(r).Decode(&build); err != nil {
		return nil, fmt.Errorf("decode build report: %w", err)
	}
	return &build, nil
}
