package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/core/ingestion_engine"
	"github.com/markdave123-py/prescodata/internal/services"
)

var spreadsheetTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
}

type ArchiveHandler struct {
	metadata *services.MetadataService
	archive  *services.ArchiveService
	rs       *respond.Responder
	logger   *slog.Logger
}

func NewArchiveHandler(metadata *services.MetadataService, archive *services.ArchiveService, rs *respond.Responder, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		metadata: metadata,
		archive:  archive,
		rs:       rs,
		logger:   logger.With("component", "archive"),
	}
}

// Download handles GET /api/collections/{name}/file and streams back the
// workbook of the latest upload to that collection.
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	collection := ingestion_engine.CleanHeader(chi.URLParam(r, "name"))
	meta, err := h.metadata.Get(r.Context(), collection)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if meta == nil {
		h.rs.Error(w, r, apperr.NotFound("No upload metadata found"))
		return
	}

	body, err := h.archive.Open(r.Context(), meta.ArchiveKey)
	if errors.Is(err, services.ErrNotArchived) {
		h.rs.Error(w, r, apperr.NotFound("No archived file for collection '"+collection+"'"))
		return
	}
	if err != nil {
		h.rs.Error(w, r, apperr.Internal(err))
		return
	}
	defer body.Close()

	filename := filepath.Base(meta.OriginalFileName)
	contentType, ok := spreadsheetTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("archived file transfer interrupted", "collection", collection, "error", err)
	}
}
