package api

import (
	"fmt"
	"net/http"

	"lvfs/pkg/db"
	"lvfs/services/hosting"
)

type checkView struct {
	Label  string
	Passed bool
}

type resultView struct {
	Title   string
	Checks  []checkView
	OK      bool
	Success string
	Token   string
}

var (
	opTitles = map[hosting.Op]string{
		hosting.OpUpload:  "Firmware upload",
		hosting.OpAdd:     "Add vendor",
		hosting.OpDisable: "Disable vendor",
		hosting.OpRemove:  "Remove vendor",
	}
	opSuccess = map[hosting.Op]string{
		hosting.OpUpload:  "The firmware was accepted and is now available for download.",
		hosting.OpAdd:     "The vendor was added.",
		hosting.OpDisable: "The vendor was disabled.",
		hosting.OpRemove:  "The vendor and its firmware were removed.",
	}
)

func checkLabel(op hosting.Op, c hosting.Check) string {
	switch c {
	case hosting.CheckAuthKey:
		if op == hosting.OpUpload {
			return "Vendor token is valid and enabled"
		}
		return "Master token is valid"
	case hosting.CheckSize:
		return fmt.Sprintf("File size is between %d and %d bytes", hosting.MinFirmwareSize, hosting.MaxFirmwareSize)
	case hosting.CheckFileType:
		return "File is a cabinet archive"
	case hosting.CheckMetadata:
		return "Archive contains .metainfo.xml metadata"
	case hosting.CheckExists:
		switch op {
		case hosting.OpUpload:
			return "Firmware has not been uploaded before"
		case hosting.OpAdd:
			return "Vendor does not already exist"
		default:
			return "Vendor exists"
		}
	}
	return string(c)
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.renderPage(w, r, "index.tmpl", map[string]any{
		"MinSize": hosting.MinFirmwareSize,
		"MaxSize": hosting.MaxFirmwareSize,
	})
}

func (a *API) handleResult(w http.ResponseWriter, r *http.Request) {
	out, err := hosting.ParseOutcome(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	view := resultView{
		Title:   opTitles[out.Op],
		OK:      out.OK(),
		Success: opSuccess[out.Op],
		Token:   out.Token,
	}
	for _, res := range out.Results() {
		view.Checks = append(view.Checks, checkView{Label: checkLabel(out.Op, res.Check), Passed: res.Passed})
	}
	a.renderPage(w, r, "result.tmpl", view)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := db.WithTimeout(r.Context())
	defer cancel()

	entries, err := a.hosting.History(ctx)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	a.renderPage(w, r, "history.tmpl", map[string]any{"Entries": entries})
}
