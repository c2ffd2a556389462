package ingestion_engine

import (
	"context"
	"testing"

	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/core"
	db "github.com/markdave123-py/prescodata/internal/core/database"
	"github.com/markdave123-py/prescodata/internal/core/registry"
	"github.com/markdave123-py/prescodata/internal/logging"
	"github.com/markdave123-py/prescodata/internal/models"
)

type storeRecorder struct{ db core.DbClient }

func (s storeRecorder) Record(ctx context.Context, m *models.UploadMetadata) error {
	return s.db.Upsert(ctx, models.MetadataCollection, "collectionName", m.ToDocument())
}

func newIngestor(t *testing.T) (*SheetIngestor, *db.MemoryClient) {
	t.Helper()
	store := db.NewMemoryClient()
	reg := registry.New(store, logging.Discard())
	if err := reg.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	ing := NewSheetIngestor(store, reg, NewSpreadsheetExtractor(), storeRecorder{store}, IngestConfig{BatchSize: 2}, logging.Discard())
	return ing, store
}

func TestIngestDynamicCollectionAndReupload(t *testing.T) {
	ctx := context.Background()
	ing, store := newIngestor(t)

	first := writeWorkbook(t, "Investors", [][]any{
		{"Full Name", "Units", "Email"},
		{"Ada Obi", 500, "ada@x.io"},
		{"Bola Ade", 250, "bola@x.io"},
	})
	res, err := ing.Ingest(ctx, IngestRequest{FilePath: first, OriginalFileName: "investors.xlsx", UploadedBy: "ops@x.io"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.CollectionName != "investors" || res.TotalRows != 2 || res.FailedRows != 0 || res.UploadID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Fields) != 3 || res.Fields[0] != "full_name" {
		t.Fatalf("fields = %q", res.Fields)
	}

	second := writeWorkbook(t, "Sheet1", [][]any{
		{"Full Name", "Units", "Phone"},
		{"Chi Eze", 100, "0803"},
		{"Dayo Ola", 75, "0805"},
		{"Efe Uko", 30, "0807"},
	})
	res2, err := ing.Ingest(ctx, IngestRequest{FilePath: second, CollectionName: "Investors", OriginalFileName: "v2.xlsx", UploadedBy: "ops@x.io"})
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if res2.ClearedRows != 2 || res2.TotalRows != 3 {
		t.Fatalf("unexpected re-upload result %+v", res2)
	}
	if len(res2.IgnoredFields) != 1 || res2.IgnoredFields[0] != "phone" {
		t.Fatalf("ignored fields = %q", res2.IgnoredFields)
	}

	docs, _ := store.Find(ctx, "investors", core.MatchAll(), core.FindOptions{})
	if len(docs) != 3 {
		t.Fatalf("collection holds %d documents, want only the new upload", len(docs))
	}
	for _, d := range docs {
		if _, ok := d["phone"]; ok {
			t.Fatalf("unregistered column stored: %v", d)
		}
		if v, ok := d["email"]; !ok || v != nil {
			t.Fatalf("missing registered column should be null: %v", d)
		}
	}

	n, _ := store.Count(ctx, models.MetadataCollection, core.Or(core.Equals("collectionName", "investors")))
	if n != 1 {
		t.Fatalf("expected exactly one metadata entry, got %d", n)
	}
	meta, _ := store.FindOne(ctx, models.MetadataCollection, core.MatchAll(), core.FindOptions{})
	got := models.UploadMetadataFromDocument(meta)
	if got.TotalRows != 3 || got.UploadID != res2.UploadID || got.OriginalFileName != "v2.xlsx" {
		t.Fatalf("metadata not replaced: %+v", got)
	}
}

func TestIngestRecordsCollection(t *testing.T) {
	ctx := context.Background()
	ing, store := newIngestor(t)

	path := writeWorkbook(t, "Sheet1", [][]any{
		{"S/No", "Account Number", "Name", "Address", "Units Held", "Rights Due", "Amount", "Mobile No", "Email"},
		{1, 1001, "Ada Obi", "Lagos", 500, 125, 2500, "08031234567", "ada@x.io"},
		{2, 1002, nil, "Abuja", 10, 2.5, 25, nil, nil},
		{3, 1003, "Chi Eze", "Enugu", 40, 10, 200, nil, nil},
	})
	res, err := ing.Ingest(ctx, IngestRequest{FilePath: path, CollectionName: "prescodatas"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.TotalRows != 2 || res.FailedRows != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}

	doc, err := store.FindOne(ctx, models.RecordsCollection, core.Or(core.Equals("account_number", int64(1003))), core.FindOptions{})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	r, err := models.RecordFromDocument(doc)
	if err != nil || r.Name != "Chi Eze" || r.MobileNo != nil {
		t.Fatalf("stored record = %+v, %v", r, err)
	}
	if n, _ := store.Count(ctx, models.SchemaCollection, core.MatchAll()); n != 0 {
		t.Fatal("the built-in collection must not be registered dynamically")
	}
}

func TestIngestRejectsBadCollectionNames(t *testing.T) {
	ing, _ := newIngestor(t)
	for _, name := range []string{"users", "UploadMetadatas", "---"} {
		path := writeWorkbook(t, "Sheet1", [][]any{{"a"}, {1}})
		_, err := ing.Ingest(context.Background(), IngestRequest{FilePath: path, CollectionName: name})
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("%q: expected a validation error, got %v", name, err)
		}
	}
}

func TestIngestEmptySheet(t *testing.T) {
	ing, store := newIngestor(t)
	path := writeWorkbook(t, "Sheet1", [][]any{{"name"}})
	_, err := ing.Ingest(context.Background(), IngestRequest{FilePath: path})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if store.Calls("DeleteAll") != 0 {
		t.Fatal("nothing may be cleared when the upload is unreadable")
	}
}

func TestCollectionName(t *testing.T) {
	got, err := CollectionName(" Q1 Investors ")
	if err != nil || got != "q1_investors" {
		t.Fatalf("CollectionName = %q, %v", got, err)
	}
}
