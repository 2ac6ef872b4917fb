package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bucketbridge/bucketbridge/internal/models"
)

type failingJobs struct{}

func (failingJobs) GetJob(ctx context.Context, name string) (*models.Job, error) {
	return nil, errors.New("db down")
}

func newJobMux(h *JobHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /job/{name}/GitBucketPollLog", h.PollLog)
	mux.HandleFunc("GET /job/{name}/gitbucket", h.Link)
	mux.HandleFunc("GET /job/{name}/annotate", h.Annotate)
	mux.HandleFunc("GET /job/{name}/api/json", h.Describe)
	return mux
}

func testJobs() mockJobs {
	return mockJobs{
		"linked": {
			Name:        "linked",
			PushTrigger: true,
			Link:        models.NewJobLinkConfig("http://gitbucket.local/alice/repo", "", true),
		},
		"unlinked": {Name: "unlinked"},
		"nolinks": {
			Name: "nolinks",
			Link: models.NewJobLinkConfig("http://gitbucket.local/alice/repo", "", false),
		},
	}
}

func serve(mux http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestJobHandler_PollLog(t *testing.T) {
	logs := mockLogs{"linked": "Started on Mon\nPolling http://x\nDone. Took 1s\n"}
	mux := newJobMux(NewJobHandler(testJobs(), logs, nil, discardLogger()))

	rr := serve(mux, "/job/linked/GitBucketPollLog")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != logs["linked"] {
		t.Errorf("body = %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	if rr := serve(mux, "/job/unlinked/GitBucketPollLog"); rr.Code != http.StatusNotFound {
		t.Errorf("missing log status = %d, want 404", rr.Code)
	}
	if rr := serve(mux, "/job/ghost/GitBucketPollLog"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", rr.Code)
	}
}

func TestJobHandler_Link(t *testing.T) {
	mux := newJobMux(NewJobHandler(testJobs(), mockLogs{}, nil, discardLogger()))

	rr := serve(mux, "/job/linked/gitbucket")
	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "http://gitbucket.local/alice/repo/" {
		t.Errorf("Location = %q", loc)
	}

	if rr := serve(mux, "/job/unlinked/gitbucket"); rr.Code != http.StatusNotFound {
		t.Errorf("unlinked status = %d, want 404", rr.Code)
	}
}

func TestJobHandler_Annotate(t *testing.T) {
	mux := newJobMux(NewJobHandler(testJobs(), mockLogs{}, nil, discardLogger()))

	tests := []struct {
		job  string
		text string
		want string
	}{
		{
			job:  "linked",
			text: "refs #7",
			want: "<a href='http://gitbucket.local/alice/repo/issues/7'>refs #7</a>",
		},
		{
			job:  "linked",
			text: "<b>pull #2</b>",
			want: "&lt;b&gt;<a href='http://gitbucket.local/alice/repo/pulls/2'>pull #2</a>&lt;/b&gt;",
		},
		{job: "nolinks", text: "refs #7", want: "refs #7"},
		{job: "unlinked", text: "refs #7", want: "refs #7"},
	}

	for _, tt := range tests {
		t.Run(tt.job+"/"+tt.text, func(t *testing.T) {
			rr := serve(mux, "/job/"+tt.job+"/annotate?text="+url.QueryEscape(tt.text))
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			if rr.Body.String() != tt.want {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.want)
			}
		})
	}
}

func TestJobHandler_Describe(t *testing.T) {
	mux := newJobMux(NewJobHandler(testJobs(), mockLogs{}, nil, discardLogger()))

	rr := serve(mux, "/job/linked/api/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp JobResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Actions) != 2 {
		t.Fatalf("actions = %+v, want 2", resp.Actions)
	}
	if resp.Actions[0].DisplayName != "GitBucket Hook Log" || resp.Actions[0].URLName != "GitBucketPollLog" {
		t.Errorf("first action = %+v", resp.Actions[0])
	}
	if resp.Actions[1].URLName != "gitbucket" {
		t.Errorf("second action = %+v", resp.Actions[1])
	}

	rr = serve(mux, "/job/unlinked/api/json")
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Actions) != 0 {
		t.Errorf("unlinked actions = %+v, want none", resp.Actions)
	}
}

func TestJobHandler_LookupError(t *testing.T) {
	mux := newJobMux(NewJobHandler(failingJobs{}, mockLogs{}, nil, discardLogger()))

	if rr := serve(mux, "/job/any/gitbucket"); rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}
