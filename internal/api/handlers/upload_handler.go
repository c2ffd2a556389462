package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/auth"
	"github.com/markdave123-py/prescodata/internal/core/ingestion_engine"
	"github.com/markdave123-py/prescodata/internal/services"
)

const (
	// multipart parts above this size spill to temporary files.
	formMemory = 32 << 20
	// room for boundaries, part headers and form fields around the file.
	multipartOverhead = 1 << 20
)

var allowedExtensions = map[string]bool{".xlsx": true, ".xls": true}

type UploadHandler struct {
	ingestor  ingestion_engine.Ingestor
	archive   *services.ArchiveService
	rs        *respond.Responder
	uploadDir string
	maxBytes  int64
	logger    *slog.Logger
}

func NewUploadHandler(ing ingestion_engine.Ingestor, archive *services.ArchiveService, rs *respond.Responder, uploadDir string, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		ingestor:  ing,
		archive:   archive,
		rs:        rs,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		logger:    logger.With("component", "upload"),
	}
}

// Upload stores the multipart "file" on disk, archives it when object storage is
// configured and replaces the target collection with its rows.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rs.Error(w, r, h.tooLarge())
			return
		}
		h.rs.Error(w, r, apperr.Wrap(apperr.KindValidation, "Please upload a file", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.rs.Error(w, r, apperr.Wrap(apperr.KindValidation, "Please upload a file", err))
		return
	}
	defer file.Close()
	if header.Size > h.maxBytes {
		h.rs.Error(w, r, h.tooLarge())
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		h.rs.Error(w, r, apperr.Validation("Only .xlsx and .xls files are allowed"))
		return
	}

	path, err := h.save(file, ext)
	if err != nil {
		h.rs.Error(w, r, apperr.Internal(err))
		return
	}
	// The parser removes the file; this covers the paths that never reach it.
	defer os.Remove(path)

	collection := r.FormValue("collectionName")
	uploadedBy := ""
	if claims, ok := auth.FromContext(r.Context()); ok {
		uploadedBy = claims.Email
	}

	archiveKey := h.archiveCopy(r, path, collection, header.Filename, header.Header.Get("Content-Type"))

	res, err := h.ingestor.Ingest(r.Context(), ingestion_engine.IngestRequest{
		FilePath:         path,
		OriginalFileName: header.Filename,
		CollectionName:   collection,
		UploadedBy:       uploadedBy,
		ArchiveKey:       archiveKey,
	})
	if err != nil {
		if rmErr := h.archive.Remove(r.Context(), archiveKey); rmErr != nil {
			h.logger.Warn("could not remove archived upload", "key", archiveKey, "error", rmErr)
		}
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, res, nil)
}

func (h *UploadHandler) tooLarge() error {
	if h.maxBytes < 1<<20 {
		return apperr.Validationf("File too large, the limit is %d bytes", h.maxBytes)
	}
	return apperr.Validationf("File too large, the limit is %d MB", h.maxBytes>>20)
}

func (h *UploadHandler) save(src io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := fmt.Sprintf("file-%d-%d%s", time.Now().UnixMilli(), rand.Int64N(1_000_000_000), ext)
	path := filepath.Join(h.uploadDir, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

// archiveCopy uploads the saved file to object storage. Failures are logged and
// the upload proceeds without an archive key.
func (h *UploadHandler) archiveCopy(r *http.Request, path, collection, filename, contentType string) string {
	if !h.archive.Enabled() {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		h.logger.Warn("could not reopen upload for archiving", "error", err)
		return ""
	}
	defer f.Close()

	key, err := h.archive.Archive(r.Context(), ingestion_engine.CleanHeader(collection), filename, contentType, f)
	if err != nil {
		h.logger.Warn("archiving failed", "file", filename, "error", err)
		return ""
	}
	return key
}
