package ingestion_engine

import (
	"context"
	"errors"
	"testing"

	"github.com/markdave123-py/prescodata/internal/core"
	db "github.com/markdave123-py/prescodata/internal/core/database"
	"github.com/markdave123-py/prescodata/internal/logging"
)

func numberedDocs(n int) []core.Document {
	docs := make([]core.Document, n)
	for i := range docs {
		docs[i] = core.Document{"code": int64(i)}
	}
	return docs
}

func TestInsertCountsPerDocumentFailures(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryClient()
	_ = store.EnsureIndexes(ctx, "c", []core.IndexSpec{{Name: "code_unique", Fields: []string{"code"}, Unique: true}})

	docs := numberedDocs(2500)
	// The second batch repeats a code from the first.
	docs[1500] = core.Document{"code": int64(10)}

	loader := NewBatchLoader(store, 1000, logging.Discard())
	stats, err := loader.Insert(ctx, "c", docs)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if stats.Inserted != 2499 || stats.Failed != 1 || stats.Batches != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if store.Calls("InsertMany") != 3 {
		t.Fatalf("InsertMany called %d times", store.Calls("InsertMany"))
	}
	n, _ := store.Count(ctx, "c", core.MatchAll())
	if n != 2499 {
		t.Fatalf("stored %d documents", n)
	}
}

func TestInsertStopsOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	store := db.NewMemoryClient().FailNth("InsertMany", 2, boom)

	loader := NewBatchLoader(store, 1000, logging.Discard())
	stats, err := loader.Insert(ctx, "c", numberedDocs(2500))
	if !errors.Is(err, boom) {
		t.Fatalf("expected the store error, got %v", err)
	}
	if stats.Inserted != 1000 || stats.Batches != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	// The first batch is not rolled back.
	n, _ := store.Count(ctx, "c", core.MatchAll())
	if n != 1000 {
		t.Fatalf("stored %d documents", n)
	}
	if store.Calls("InsertMany") != 2 {
		t.Fatalf("loader kept going after a fatal error")
	}
}

func TestConsumeFlushesTail(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryClient()
	loader := NewBatchLoader(store, 4, logging.Discard())

	in := make(chan core.Document)
	go func() {
		defer close(in)
		for _, d := range numberedDocs(10) {
			in <- d
		}
	}()
	stats, err := loader.Consume(ctx, "c", in)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if stats.Inserted != 10 || stats.Batches != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryClient()
	loader := NewBatchLoader(store, 0, logging.Discard())
	_, _ = loader.Insert(ctx, "c", numberedDocs(3))

	n, err := loader.Clear(ctx, "c")
	if err != nil || n != 3 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	if left, _ := store.Count(ctx, "c", core.MatchAll()); left != 0 {
		t.Fatalf("%d documents left", left)
	}
}
