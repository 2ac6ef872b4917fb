package handlers

import (
	"net/http"

	"github.com/bucketbridge/bucketbridge/internal/auth"
)

// CrumbResponse mirrors the crumb issuer JSON API
type CrumbResponse struct {
	Crumb             string `json:"crumb"`
	CrumbRequestField string `json:"crumbRequestField"`
}

// CrumbIssuer handles GET /crumbIssuer/api/json, setting the crumb cookie
// when the client has none
func CrumbIssuer(w http.ResponseWriter, r *http.Request) {
	crumb, err := auth.EnsureCrumb(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue crumb")
		return
	}
	writeJSON(w, http.StatusOK, CrumbResponse{Crumb: crumb, CrumbRequestField: auth.CrumbFieldName})
}
