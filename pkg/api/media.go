package api

import (
	"net/http"

	"courierdb/pkg/auth"
	"courierdb/pkg/logger"
	"courierdb/pkg/telemetry"
	"courierdb/pkg/utils"
)

// defaultMaxUploadBytes caps a single attachment unless configured.
const defaultMaxUploadBytes = 32 << 20

func (a *API) maxUpload() int64 {
	if a.MaxUpload > 0 {
		return a.MaxUpload
	}
	return defaultMaxUploadBytes
}

// uploadMedia stores one multipart file and returns the media
// descriptor the client embeds in its next send.
func (a *API) uploadMedia(w http.ResponseWriter, r *http.Request) {
	user, status, msg := auth.ResolveUserFromRequest(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if a.Media == nil {
		utils.JSONError(w, http.StatusNotImplemented, "media storage not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload())
	if err := r.ParseMultipartForm(a.maxUpload()); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer f.Close()

	ct := hdr.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	m, err := a.Media.Put(r.Context(), hdr.Filename, ct, f, hdr.Size)
	if err != nil {
		logger.Error("media_upload_failed", "user", user, "name", hdr.Filename, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	telemetry.IncMediaUpload()
	logger.Info("media_uploaded", "user", user, "name", hdr.Filename, "url", m.URL)
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}
