package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestGenerateCrumb_ReturnsUniqueTokens(t *testing.T) {
	c1, err := GenerateCrumb()
	if err != nil {
		t.Fatalf("GenerateCrumb failed: %v", err)
	}
	c2, _ := GenerateCrumb()
	if c1 == "" || c1 == c2 {
		t.Errorf("expected unique non-empty crumbs, got %q and %q", c1, c2)
	}
}

func TestValidateCrumb(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		form   string
		want   bool
	}{
		{"matching", "abc", "abc", true},
		{"different", "abc", "abd", false},
		{"empty cookie", "", "abc", false},
		{"empty form", "abc", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCrumb(tt.cookie, tt.form); got != tt.want {
				t.Errorf("ValidateCrumb(%q, %q) = %v, want %v", tt.cookie, tt.form, got, tt.want)
			}
		})
	}
}

func TestCrumbMiddleware_GETPasses(t *testing.T) {
	handler := CrumbMiddleware(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/job/x/GitBucketPollLog", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", rr.Code)
	}
}

func TestCrumbMiddleware_POSTWithoutCrumbRejected(t *testing.T) {
	handler := CrumbMiddleware(okHandler(), NewWebhookCrumbExclusion("gitbucket-webhook"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/job/x/build", nil))

	if rr.Code != http.StatusForbidden {
		t.Errorf("POST without crumb status = %d, want 403", rr.Code)
	}
}

func TestCrumbMiddleware_POSTWithCrumbPasses(t *testing.T) {
	handler := CrumbMiddleware(okHandler())

	form := url.Values{}
	form.Set(CrumbFieldName, "crumb-value")
	req := httptest.NewRequest(http.MethodPost, "/job/x/build", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CrumbCookieName, Value: "crumb-value"})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("POST with crumb status = %d, want 200", rr.Code)
	}
}

func TestCrumbMiddleware_WebhookExclusion(t *testing.T) {
	handler := CrumbMiddleware(okHandler(), NewWebhookCrumbExclusion("gitbucket-webhook"))

	tests := []struct {
		path string
		want int
	}{
		{"/gitbucket-webhook/", http.StatusOK},
		{"/gitbucket-webhook", http.StatusForbidden},
		{"/gitbucket-webhook/extra", http.StatusForbidden},
		{"/other-webhook/", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tt.path, nil))
			if rr.Code != tt.want {
				t.Errorf("POST %s status = %d, want %d", tt.path, rr.Code, tt.want)
			}
		})
	}
}

func TestEnsureCrumb_SetsCookieOnce(t *testing.T) {
	rr := httptest.NewRecorder()
	crumb, err := EnsureCrumb(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("EnsureCrumb failed: %v", err)
	}
	if crumb == "" {
		t.Fatal("expected a crumb")
	}
	if len(rr.Result().Cookies()) != 1 {
		t.Errorf("expected one cookie, got %d", len(rr.Result().Cookies()))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CrumbCookieName, Value: "existing"})
	rr = httptest.NewRecorder()
	crumb, _ = EnsureCrumb(rr, req)
	if crumb != "existing" {
		t.Errorf("EnsureCrumb() = %q, want existing", crumb)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("expected no new cookie when crumb exists")
	}
}
