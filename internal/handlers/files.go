package handlers

import (
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/rs/zerolog"
)

// HandleFile serves a stored image, thumbnail or report PDF.
func (h *Handler) HandleFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rc, err := h.files.Open(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if path.Ext(name) == ".pdf" {
		// Draft PDFs are regenerated under the same name
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=86400")
	}
	if _, err := io.Copy(w, rc); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("file", name).Msg("Failed to stream file")
	}
}
