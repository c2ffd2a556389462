package ingestion_engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/markdave123-py/prescodata/internal/core/registry"
	"github.com/markdave123-py/prescodata/internal/models"
)

// IngestConfig tunes the ingestion pipeline.
//
// BatchSize:  documents per store insert (default 1000).
// SheetIndex: worksheet to read, 0 for the first.
type IngestConfig struct {
	BatchSize  int
	SheetIndex int
}

// Extractor parses an uploaded workbook into rows.
type Extractor interface {
	Extract(ctx context.Context, path string, sheetIndex int) (*Sheet, error)
}

// MetadataRecorder stores the summary of a finished upload.
type MetadataRecorder interface {
	Record(ctx context.Context, meta *models.UploadMetadata) error
}

// SheetIngestor runs an upload end to end:
//
// extractor: workbook parser.
// registry:  dynamic collection definitions.
// loader:    clear + batched insert.
// metadata:  per-collection upload summary.
type SheetIngestor struct {
	extractor Extractor
	registry  *registry.Registry
	loader    *BatchLoader
	metadata  MetadataRecorder
	cfg       IngestConfig
	logger    *slog.Logger
	now       func() time.Time
}

// IngestRequest describes one uploaded file.
type IngestRequest struct {
	FilePath         string
	OriginalFileName string
	// CollectionName defaults to the cleaned sheet name when empty.
	CollectionName string
	UploadedBy     string
	ArchiveKey     string
}

// IngestResult is returned to the uploader.
type IngestResult struct {
	UploadID       string    `json:"uploadId"`
	CollectionName string    `json:"collectionName"`
	TotalRows      int       `json:"totalRows"`
	FailedRows     int       `json:"failedRows"`
	ClearedRows    int64     `json:"clearedRows"`
	Fields         []string  `json:"fields"`
	IgnoredFields  []string  `json:"ignoredFields"`
	UploadedAt     time.Time `json:"uploadedAt"`
	ArchiveKey     string    `json:"archiveKey,omitempty"`
}
