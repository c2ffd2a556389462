package ingestion_engine

import "context"

type Ingestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
}

var _ Ingestor = (*SheetIngestor)(nil)
