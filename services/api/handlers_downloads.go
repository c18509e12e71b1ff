package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"lvfs/pkg/db"
	"lvfs/pkg/storage"
	"lvfs/services/hosting"
)

// handleDownload streams a stored cabinet by its content name.
func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	checksum, ok := strings.CutSuffix(name, storage.Extension)
	if !ok {
		respondError(w, http.StatusNotFound, codeNotFound, errors.New("not found"))
		return
	}

	fw, rc, err := a.hosting.OpenFirmware(r.Context(), checksum)
	if err != nil {
		if errors.Is(err, hosting.ErrNotFound) {
			respondError(w, http.StatusNotFound, codeNotFound, errors.New("not found"))
			return
		}
		respondFault(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/vnd.ms-cab-compressed")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("ETag", `"`+fw.Checksum+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("checksum", fw.Checksum).Msg("download interrupted")
	}
}

// handleFirmwareList returns the upload history as JSON.
func (a *API) handleFirmwareList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := db.WithTimeout(r.Context())
	defer cancel()

	entries, err := a.hosting.History(ctx)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	if entries == nil {
		entries = []hosting.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"firmware": entries})
}
