package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/core"
	"github.com/markdave123-py/prescodata/internal/core/registry"
	"github.com/markdave123-py/prescodata/internal/models"
)

const maxCollectionName = 64

// NewSheetIngestor wires the pipeline stages together.
func NewSheetIngestor(db core.DbClient, reg *registry.Registry, ext Extractor, meta MetadataRecorder, cfg IngestConfig, logger *slog.Logger) *SheetIngestor {
	return &SheetIngestor{
		extractor: ext,
		registry:  reg,
		loader:    NewBatchLoader(db, cfg.BatchSize, logger),
		metadata:  meta,
		cfg:       cfg,
		logger:    logger.With("component", "ingestor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ingest parses the file, replaces the target collection's contents and
// records the upload. The file at req.FilePath is consumed.
func (i *SheetIngestor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	var name string
	if req.CollectionName != "" {
		var err error
		if name, err = CollectionName(req.CollectionName); err != nil {
			return nil, err
		}
	}

	sheet, err := i.extractor.Extract(ctx, req.FilePath, i.cfg.SheetIndex)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if name == "" {
		if name, err = CollectionName(sheet.SheetName); err != nil {
			return nil, err
		}
	}

	log := i.logger.With("collection", name, "file", req.OriginalFileName)
	log.Info("spreadsheet parsed", "rows", len(sheet.Rows), "columns", len(sheet.Headers))

	var (
		schema  *models.CollectionSchema
		convert func(models.Row) (core.Document, error)
	)
	if builtin, ok := i.registry.Builtin(name); ok {
		schema = builtin
		convert = recordDocument
	} else {
		if schema, err = i.registry.GetOrCreate(ctx, name, sheet.Fields); err != nil {
			return nil, err
		}
		convert = projector(schema)
	}

	cleared, err := i.loader.Clear(ctx, name)
	if err != nil {
		return nil, err
	}

	// rows -> documents -> batched inserts.
	g, gctx := errgroup.WithContext(ctx)
	docs := make(chan core.Document, i.loader.batchSize)
	rejected := 0
	g.Go(func() error {
		defer close(docs)
		for n, row := range sheet.Rows {
			doc, err := convert(row)
			if err != nil {
				rejected++
				log.Debug("row rejected", "row", n+2, "error", err)
				continue
			}
			select {
			case docs <- doc:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	var stats LoadStats
	g.Go(func() error {
		var err error
		stats, err = i.loader.Consume(gctx, name, docs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal(fmt.Errorf("load %s: %w", name, err))
	}

	result := &IngestResult{
		UploadID:       ulid.Make().String(),
		CollectionName: name,
		TotalRows:      stats.Inserted,
		FailedRows:     stats.Failed + rejected,
		ClearedRows:    cleared,
		Fields:         schema.FieldNames(),
		IgnoredFields:  ignoredFields(sheet.Headers, schema),
		UploadedAt:     i.now(),
		ArchiveKey:     req.ArchiveKey,
	}

	meta := &models.UploadMetadata{
		UploadID:         result.UploadID,
		CollectionName:   name,
		OriginalFileName: req.OriginalFileName,
		TotalRows:        result.TotalRows,
		FailedRows:       result.FailedRows,
		Fields:           result.Fields,
		UploadedAt:       result.UploadedAt,
		UploadedBy:       req.UploadedBy,
		ArchiveKey:       req.ArchiveKey,
	}
	if err := i.metadata.Record(ctx, meta); err != nil {
		return nil, err
	}

	log.Info("upload ingested",
		"upload_id", result.UploadID, "inserted", result.TotalRows, "failed", result.FailedRows,
		"cleared", cleared, "batches", stats.Batches)
	return result, nil
}

// CollectionName cleans a requested collection name and rejects unusable ones.
func CollectionName(raw string) (string, error) {
	name := CleanHeader(raw)
	switch {
	case name == "" || isUnderscores(name):
		return "", apperr.Validation("Collection name must contain letters or digits")
	case len(name) > maxCollectionName:
		return "", apperr.Validationf("Collection name must be at most %d characters", maxCollectionName)
	case models.IsReserved(name):
		return "", apperr.Validationf("Collection name %q is reserved", name)
	}
	return name, nil
}

func isUnderscores(s string) bool {
	for _, r := range s {
		if r != '_' {
			return false
		}
	}
	return true
}

func recordDocument(row models.Row) (core.Document, error) {
	r, err := models.RecordFromRow(row)
	if err != nil {
		return nil, err
	}
	return r.ToDocument(), nil
}

// projector maps a row onto the registered fields: unknown columns are
// dropped, missing ones stored as null.
func projector(schema *models.CollectionSchema) func(models.Row) (core.Document, error) {
	return func(row models.Row) (core.Document, error) {
		doc := make(core.Document, len(schema.Fields))
		for _, f := range schema.Fields {
			doc[f.Name] = row[f.Name]
		}
		return doc, nil
	}
}

func ignoredFields(headers []string, schema *models.CollectionSchema) []string {
	ignored := []string{}
	for _, h := range headers {
		if _, ok := schema.Field(h); !ok {
			ignored = append(ignored, h)
		}
	}
	return ignored
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyFile):
		return apperr.Wrap(apperr.KindValidation, "Uploaded file is empty or has no data rows", err)
	case errors.Is(err, ErrFileNotFound):
		return apperr.Wrap(apperr.KindNotFound, "Uploaded file not found", err)
	case errors.Is(err, ErrUnsupported):
		return apperr.Wrap(apperr.KindValidation, "Only .xlsx and .xls files are allowed", err)
	case errors.Is(err, ErrNoSuchSheet):
		return apperr.Wrap(apperr.KindValidation, "Workbook has no such sheet", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Internal(err)
	}
	return apperr.Wrap(apperr.KindValidation, "Could not read spreadsheet", err)
}
