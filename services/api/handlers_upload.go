package api

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"lvfs/pkg/db"
	"lvfs/services/hosting"
)

// handleUpload streams a multipart form with guid, contact and file fields.
// Validation failures are outcomes, not HTTP errors: an oversized file is
// read one byte past the firmware limit and the rest is discarded, so it
// still reaches the size check.
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	up, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, codeBadRequest, errors.New("request body too large"))
			return
		}
		respondError(w, http.StatusBadRequest, codeBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}
	up.Addr = clientAddr(r)

	ctx, cancel := db.WithTimeout(r.Context())
	defer cancel()

	out, fw, err := a.hosting.Upload(ctx, up)
	if err != nil {
		a.metrics.fault(hosting.OpUpload, errorCode(err))
		respondFault(w, r, err)
		return
	}
	a.metrics.observe(out)
	if fw != nil {
		a.metrics.uploadBytes.Observe(float64(len(up.Data)))
		hlog.FromRequest(r).Debug().Str("checksum", fw.Checksum).Msg("upload stored")
	}
	respondOutcome(w, r, out)
}

// readUpload walks the multipart parts in order. A missing file part leaves
// Data empty, which fails the content checks.
func readUpload(r *http.Request) (hosting.Upload, error) {
	var up hosting.Upload
	mr, err := r.MultipartReader()
	if err != nil {
		return up, err
	}
	seenFile := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return up, nil
		}
		if err != nil {
			return up, err
		}
		switch name := part.FormName(); {
		case name == "file" && !seenFile:
			seenFile = true
			up.Filename = part.FileName()
			up.Data, err = io.ReadAll(io.LimitReader(part, hosting.MaxFirmwareSize+1))
		case name == "guid":
			up.Token, err = readField(part)
		case name == "contact":
			up.Contact, err = readField(part)
		}
		if err == nil {
			_, err = io.Copy(io.Discard, part)
		}
		_ = part.Close()
		if err != nil {
			return up, err
		}
	}
}

func readField(part io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
	return string(b), err
}

// clientAddr is the request's remote address without the port. RealIP has
// already replaced it from forwarding headers when present.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
