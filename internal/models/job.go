package models

import "strings"

// SCM types understood by the repository URL collector
const (
	SCMTypeGit   = "git"
	SCMTypeMulti = "multi"
)

// Remote is one configured git remote and its fetch URLs
type Remote struct {
	Name string   `json:"name" mapstructure:"name"`
	URLs []string `json:"urls" mapstructure:"urls"`
}

// SCM describes a job's source control configuration.
// A "git" SCM carries remotes, a "multi" SCM carries member SCMs, anything
// else is opaque to the bridge.
type SCM struct {
	Type     string   `json:"type" mapstructure:"type"`
	Remotes  []Remote `json:"remotes,omitempty" mapstructure:"remotes"`
	Branches []string `json:"branches,omitempty" mapstructure:"branches"`
	Members  []SCM    `json:"members,omitempty" mapstructure:"members"`
}

// JobLinkConfig is the per-job GitBucket configuration.
// URL is normalized: either empty or ending with exactly one slash.
// APIToken is an opaque secret reference resolved at use time.
type JobLinkConfig struct {
	URL         string `json:"url" mapstructure:"url"`
	LinkEnabled bool   `json:"link_enabled" mapstructure:"link_enabled"`
	APIToken    string `json:"api_token" mapstructure:"api_token"`
}

// NewJobLinkConfig builds a link config with a normalized URL and token
func NewJobLinkConfig(url, token string, linkEnabled bool) JobLinkConfig {
	return JobLinkConfig{
		URL:         NormalizeBaseURL(url),
		LinkEnabled: linkEnabled,
		APIToken:    strings.TrimSpace(token),
	}
}

// HasURL reports whether a base URL is configured
func (c JobLinkConfig) HasURL() bool {
	return c.URL != ""
}

// Normalized returns a copy with URL and token normalized, for configs that
// were decoded without going through NewJobLinkConfig
func (c JobLinkConfig) Normalized() JobLinkConfig {
	return NewJobLinkConfig(c.URL, c.APIToken, c.LinkEnabled)
}

// NormalizeBaseURL trims whitespace and ensures a single trailing slash.
// Empty or whitespace-only input yields "".
func NormalizeBaseURL(url string) string {
	u := strings.TrimSpace(url)
	if u == "" {
		return ""
	}
	u = strings.TrimRight(u, "/")
	if u == "" {
		return ""
	}
	return u + "/"
}

// Job is a build job as seen by the bridge
type Job struct {
	Name        string        `json:"name" mapstructure:"name"`
	SCM         SCM           `json:"scm" mapstructure:"scm"`
	PushTrigger bool          `json:"push_trigger" mapstructure:"push_trigger"`
	Link        JobLinkConfig `json:"gitbucket" mapstructure:"gitbucket"`
}

// LinkAction is the sidebar link to the job's GitBucket repository
type LinkAction struct {
	DisplayName string
	IconFile    string
	URL         string
}

// LinkAction returns the sidebar link, or nil when no URL is configured
func (j *Job) LinkAction() *LinkAction {
	if !j.Link.HasURL() {
		return nil
	}
	return &LinkAction{
		DisplayName: "GitBucket",
		IconFile:    "/plugin/gitbucket/images/24x24/gitbucket.png",
		URL:         j.Link.URL,
	}
}
