package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"os"
)

// CrumbCookieName is the name of the crumb cookie
const CrumbCookieName = "bridge_crumb"

// CrumbFieldName is the form field (and header) carrying the crumb
const CrumbFieldName = "Jenkins-Crumb"

// CrumbLength is the number of random bytes in a crumb
const CrumbLength = 32

// GenerateCrumb generates a base64 URL-encoded crumb of CrumbLength random bytes
func GenerateCrumb() (string, error) {
	b := make([]byte, CrumbLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidateCrumb compares the cookie crumb with the submitted crumb in constant time
func ValidateCrumb(cookieCrumb, formCrumb string) bool {
	if cookieCrumb == "" || formCrumb == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieCrumb), []byte(formCrumb)) == 1
}

// SetCrumbCookie stores the crumb in a SameSite=Strict cookie
func SetCrumbCookie(w http.ResponseWriter, crumb string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CrumbCookieName,
		Value:    crumb,
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
		Secure:   os.Getenv("BRIDGE_SECURE_COOKIES") == "true",
	})
}

// CrumbFromRequest reads the crumb from the form field, falling back to the header
func CrumbFromRequest(r *http.Request) string {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			if crumb := r.FormValue(CrumbFieldName); crumb != "" {
				return crumb
			}
		}
	}
	return r.Header.Get(CrumbFieldName)
}

// CrumbFromCookie reads the crumb cookie
func CrumbFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(CrumbCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// CrumbExclusion exempts exactly one path from crumb validation.
// Path is compared verbatim against r.URL.Path.
type CrumbExclusion struct {
	Path string
}

// NewWebhookCrumbExclusion exempts "/{webhookPath}/"
func NewWebhookCrumbExclusion(webhookPath string) CrumbExclusion {
	return CrumbExclusion{Path: "/" + webhookPath + "/"}
}

// Matches reports whether the request path is the excluded one
func (e CrumbExclusion) Matches(r *http.Request) bool {
	return e.Path != "" && r.URL.Path == e.Path
}

// CrumbMiddleware validates crumbs on POST, PUT, PATCH and DELETE requests,
// except for requests matching one of the exclusions.
// Returns 403 Forbidden when the crumb is missing or invalid.
func CrumbMiddleware(next http.Handler, exclusions ...CrumbExclusion) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut ||
			r.Method == http.MethodPatch || r.Method == http.MethodDelete {

			for _, ex := range exclusions {
				if ex.Matches(r) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if !ValidateCrumb(CrumbFromCookie(r), CrumbFromRequest(r)) {
				http.Error(w, "Forbidden - No valid crumb was included in the request", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// EnsureCrumb returns the request's crumb, issuing a new cookie when absent
func EnsureCrumb(w http.ResponseWriter, r *http.Request) (string, error) {
	if crumb := CrumbFromCookie(r); crumb != "" {
		return crumb, nil
	}

	crumb, err := GenerateCrumb()
	if err != nil {
		return "", err
	}
	SetCrumbCookie(w, crumb)
	return crumb, nil
}
