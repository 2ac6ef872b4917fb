package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GitBucket API error definitions
var (
	ErrGitBucketAuthentication = errors.New("GitBucket authentication failed")
	ErrGitBucketAPIError       = errors.New("GitBucket API error")
	ErrInvalidBaseURL          = errors.New("invalid GitBucket base URL")
)

const (
	gitBucketTimeout      = 10 * time.Second
	gitBucketMaxRedirects = 3
	gitBucketUserAgent    = "Jenkins GitBucket Plugin"
)

// GitBucketRepo is the subset of the repository resource used by the bridge
type GitBucketRepo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url"`
	CloneURL string `json:"clone_url"`
}

// GitBucketClient talks to the GitBucket v3 API of a repository given by its
// browser base URL
type GitBucketClient struct {
	client *http.Client
}

// NewGitBucketClient creates a client with 10s connect and read timeouts and
// at most 3 redirects
func NewGitBucketClient() *GitBucketClient {
	return newGitBucketClient(gitBucketTimeout)
}

func newGitBucketClient(timeout time.Duration) *GitBucketClient {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
	return NewGitBucketClientWithHTTP(&http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > gitBucketMaxRedirects {
				return fmt.Errorf("stopped after %d redirects", gitBucketMaxRedirects)
			}
			return nil
		},
	})
}

// NewGitBucketClientWithHTTP creates a client using the given http.Client
func NewGitBucketClientWithHTTP(client *http.Client) *GitBucketClient {
	return &GitBucketClient{client: client}
}

// RepositoryAPIURL maps a repository base URL such as
// http://host:8080/gitbucket/owner/repo/ to its API resource
// http://host:8080/api/v3/repos/gitbucket/owner/repo.
func RepositoryAPIURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	api := url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   "/api/v3/repos" + strings.TrimRight(u.Path, "/"),
	}
	return api.String(), nil
}

// CreateIssueComment posts body as a comment on issue issueID
func (c *GitBucketClient) CreateIssueComment(ctx context.Context, baseURL, token string, issueID int, body string) error {
	api, err := RepositoryAPIURL(baseURL)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}

	reqURL := fmt.Sprintf("%s/issues/%d/comments", api, issueID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	_, err = c.do(req)
	return err
}

// GetRepository fetches the repository resource, verifying URL and token
func (c *GitBucketClient) GetRepository(ctx context.Context, baseURL, token string) (*GitBucketRepo, error) {
	api, err := RepositoryAPIURL(baseURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, token)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var repo GitBucketRepo
	if err := json.Unmarshal(body, &repo); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &repo, nil
}

func (c *GitBucketClient) setHeaders(req *http.Request, token string) {
	req.Header.Set("Accept-Charset", "utf-8")
	req.Header.Set("User-Agent", gitBucketUserAgent)
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
}

func (c *GitBucketClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call GitBucket API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrGitBucketAuthentication
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d: %s", ErrGitBucketAPIError, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// CheckRepository reports whether the repository is reachable with token
func (c *GitBucketClient) CheckRepository(ctx context.Context, baseURL, token string) error {
	_, err := c.GetRepository(ctx, baseURL, token)
	return err
}
