package api

import (
	"errors"
	"fmt"
	"net/http"

	"lvfs/pkg/db"
	"lvfs/services/hosting"
)

func (a *API) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}

	req := hosting.AdminRequest{
		Action:      hosting.Op(r.PostFormValue("action")),
		MasterToken: r.PostFormValue("master"),
		Target:      r.PostFormValue("guid"),
		Name:        r.PostFormValue("name"),
		Contact:     r.PostFormValue("contact"),
	}

	ctx, cancel := db.WithTimeout(r.Context())
	defer cancel()

	out, err := a.hosting.Administer(ctx, req)
	if err != nil {
		if errors.Is(err, hosting.ErrUnknownAction) {
			respondError(w, http.StatusBadRequest, codeBadRequest, err)
			return
		}
		a.metrics.fault(req.Action, errorCode(err))
		respondFault(w, r, err)
		return
	}
	a.metrics.observe(out)
	respondOutcome(w, r, out)
}
