package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/prescodata/internal/core"
)

// DefaultBatchSize is the number of documents sent to the store per insert.
const DefaultBatchSize = 1000

// LoadStats counts the outcome of a bulk load.
type LoadStats struct {
	Inserted int `json:"inserted"`
	Failed   int `json:"failed"`
	Batches  int `json:"batches"`
}

// BatchLoader replaces the contents of a collection in fixed-size batches.
type BatchLoader struct {
	db        core.DbClient
	batchSize int
	logger    *slog.Logger
}

func NewBatchLoader(db core.DbClient, batchSize int, logger *slog.Logger) *BatchLoader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchLoader{db: db, batchSize: batchSize, logger: logger.With("component", "loader")}
}

// Clear removes every document from collection.
func (l *BatchLoader) Clear(ctx context.Context, collection string) (int64, error) {
	n, err := l.db.DeleteAll(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", collection, err)
	}
	l.logger.Debug("collection cleared", "collection", collection, "deleted", n)
	return n, nil
}

// Insert loads docs batch by batch. Per-document failures are counted; any
// other store failure stops the load. Batches already written stay written.
func (l *BatchLoader) Insert(ctx context.Context, collection string, docs []core.Document) (LoadStats, error) {
	var stats LoadStats
	for start := 0; start < len(docs); start += l.batchSize {
		end := min(start+l.batchSize, len(docs))
		if err := l.flush(ctx, collection, docs[start:end], &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Consume is Insert for a stream of documents; it returns once in is closed.
func (l *BatchLoader) Consume(ctx context.Context, collection string, in <-chan core.Document) (LoadStats, error) {
	var stats LoadStats
	batch := make([]core.Document, 0, l.batchSize)

	for doc := range in {
		batch = append(batch, doc)
		if len(batch) == l.batchSize {
			if err := l.flush(ctx, collection, batch, &stats); err != nil {
				return stats, err
			}
			batch = make([]core.Document, 0, l.batchSize)
		}
	}
	// Final tail.
	if err := l.flush(ctx, collection, batch, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (l *BatchLoader) flush(ctx context.Context, collection string, batch []core.Document, stats *LoadStats) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := l.db.InsertMany(ctx, collection, batch)
	if err != nil {
		return fmt.Errorf("insert batch %d into %s: %w", stats.Batches+1, collection, err)
	}
	stats.Batches++
	stats.Inserted += len(batch) - len(res.Failed)
	stats.Failed += len(res.Failed)
	if len(res.Failed) > 0 {
		l.logger.Warn("documents rejected by the store",
			"collection", collection, "batch", stats.Batches, "failed", len(res.Failed), "first", res.Failed[0].Error())
	}
	return nil
}
