package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"lvfs/services/hosting"
)

// Error codes carried in JSON error bodies.
const (
	codeDatabase   = "database"
	codeStorage    = "storage"
	codeInternal   = "internal"
	codeBadRequest = "bad_request"
	codeNotFound   = "not_found"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code string, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error(), "code": code})
}

// respondFault maps an infrastructure error from the hosting service to a
// structured 500 response. Details stay in the log.
func respondFault(w http.ResponseWriter, r *http.Request, err error) {
	code := errorCode(err)
	hlog.FromRequest(r).Error().Err(err).Str("code", code).Msg("request failed")
	respondError(w, http.StatusInternalServerError, code, errors.New(code+" error"))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, hosting.ErrStorage):
		return codeStorage
	case errors.Is(err, hosting.ErrDatabase):
		return codeDatabase
	default:
		return codeInternal
	}
}

// wantsJSON reports whether the client asked for a JSON outcome instead of a
// redirect to the result page.
func wantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/json" {
			return true
		}
	}
	return false
}

// respondOutcome serializes out once at the boundary: JSON for API clients,
// a 303 to the result page otherwise.
func respondOutcome(w http.ResponseWriter, r *http.Request, out *hosting.Outcome) {
	if wantsJSON(r) {
		respondJSON(w, http.StatusOK, out)
		return
	}
	http.Redirect(w, r, "/result?"+out.Values().Encode(), http.StatusSeeOther)
}

func (a *API) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	body, err := a.renderer.Render(name, data)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("render")
		respondError(w, http.StatusInternalServerError, codeInternal, errors.New("render error"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
