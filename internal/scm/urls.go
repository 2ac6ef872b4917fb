// Package scm inspects job source-control configuration: it collects the
// configured git remote URLs and polls those remotes for new heads.
package scm

import (
	"strings"

	"github.com/bucketbridge/bucketbridge/internal/models"
)

// CollectRepositoryURLs returns the git remote URLs configured for a job,
// trimmed and lower-cased. Non-git and unknown SCMs yield an empty slice.
func CollectRepositoryURLs(spec models.SCM) []string {
	urls := []string{}
	for _, u := range RemoteURLs(spec) {
		urls = append(urls, strings.ToLower(u))
	}
	return urls
}

// RemoteURLs returns the trimmed git remote URLs of a job as configured.
// A multi SCM contributes the remotes of its git members only.
func RemoteURLs(spec models.SCM) []string {
	switch strings.ToLower(spec.Type) {
	case models.SCMTypeGit:
		return gitRemoteURLs(spec)
	case models.SCMTypeMulti:
		var urls []string
		for _, member := range spec.Members {
			if strings.EqualFold(member.Type, models.SCMTypeGit) {
				urls = append(urls, gitRemoteURLs(member)...)
			}
		}
		return urls
	default:
		return nil
	}
}

func gitRemoteURLs(spec models.SCM) []string {
	var urls []string
	for _, remote := range spec.Remotes {
		for _, u := range remote.URLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// MatchesRepository reports whether repositoryURL, compared case-insensitively,
// is one of the job's configured remote URLs
func MatchesRepository(spec models.SCM, repositoryURL string) bool {
	if repositoryURL == "" {
		return false
	}
	want := strings.ToLower(repositoryURL)
	for _, u := range CollectRepositoryURLs(spec) {
		if u == want {
			return true
		}
	}
	return false
}
