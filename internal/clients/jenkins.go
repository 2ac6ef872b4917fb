package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bucketbridge/bucketbridge/internal/models"
	"github.com/bucketbridge/bucketbridge/internal/services"
)

// ErrJenkinsAPIError is returned for unexpected Jenkins responses
var ErrJenkinsAPIError = errors.New("Jenkins API error")

// JenkinsClient schedules builds through the Jenkins remote access API
type JenkinsClient struct {
	baseURL string
	user    string
	token   string
	client  *http.Client
}

// NewJenkinsClient creates a client for the Jenkins instance at baseURL.
// user and token are sent as basic auth when user is set.
func NewJenkinsClient(baseURL, user, token string) *JenkinsClient {
	return &JenkinsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// ScheduleBuild implements services.BuildScheduler. Jenkins answers 201 when
// it queued a new item; any other success status means the job was already
// waiting in the queue.
func (c *JenkinsClient) ScheduleBuild(ctx context.Context, job *models.Job, cause *services.PushCause, params map[string]string) (bool, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	if cause != nil {
		form.Set("cause", cause.ShortDescription())
	}

	reqURL := fmt.Sprintf("%s/job/%s/buildWithParameters", c.baseURL, url.PathEscape(job.Name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call Jenkins: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusCreated:
		return true, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return false, nil
	default:
		return false, fmt.Errorf("%w: status %d scheduling %s", ErrJenkinsAPIError, resp.StatusCode, job.Name)
	}
}
