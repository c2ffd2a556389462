package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/markdave123-py/prescodata/internal/core"
	db "github.com/markdave123-py/prescodata/internal/core/database"
	"github.com/markdave123-py/prescodata/internal/logging"
	"github.com/markdave123-py/prescodata/internal/models"
)

func newRegistry(t *testing.T, store core.DbClient) *Registry {
	t.Helper()
	r := New(store, logging.Discard())
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func fieldsOf(names ...string) []models.FieldDef {
	out := make([]models.FieldDef, len(names))
	for i, n := range names {
		out[i] = models.FieldDef{Name: n, Type: models.FieldString}
	}
	return out
}

func TestGetOrCreateRegistersOnce(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryClient()
	r := newRegistry(t, store)

	first, err := r.GetOrCreate(ctx, "investors", fieldsOf("full_name", "units", "email_address", "phone_no"))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(first.Fields) != 4 || !first.Fields[0].Text || first.Fields[1].Text {
		t.Fatalf("unexpected definition %+v", first.Fields)
	}

	again, err := r.GetOrCreate(ctx, "investors", fieldsOf("something_else"))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(again.Fields) != 4 || again.Fields[0].Name != "full_name" {
		t.Fatalf("existing definition was changed: %+v", again.Fields)
	}

	n, _ := store.Count(ctx, models.SchemaCollection, core.MatchAll())
	if n != 1 {
		t.Fatalf("expected one persisted definition, got %d", n)
	}

	var text *core.IndexSpec
	for _, ix := range store.Indexes("investors") {
		if ix.Text {
			ix := ix
			text = &ix
		}
	}
	if text == nil || len(text.Fields) != 3 {
		t.Fatalf("expected one text index over three fields, got %+v", text)
	}
}

func TestGetOrCreateWithoutTextFields(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryClient()
	r := newRegistry(t, store)
	if _, err := r.GetOrCreate(ctx, "prices", fieldsOf("ticker", "close")); err != nil {
		t.Fatal(err)
	}
	for _, ix := range store.Indexes("prices") {
		if ix.Text {
			t.Fatal("no text index expected when no field looks like a name or contact")
		}
	}
	if got := len(store.Indexes("prices")); got != 2 {
		t.Fatalf("expected one index per field, got %d", got)
	}
}

func TestGetOrCreateCapsIndexes(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryClient()
	r := newRegistry(t, store)

	names := make([]string, 70)
	for i := range names {
		names[i] = fmt.Sprintf("col_%d", i)
	}
	s, err := r.GetOrCreate(ctx, "wide", fieldsOf(names...))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	indexed := 0
	for _, f := range s.Fields {
		if f.Indexed {
			indexed++
		}
	}
	if indexed != MaxIndexedFields || len(s.Fields) != 70 {
		t.Fatalf("indexed %d of %d fields", indexed, len(s.Fields))
	}
}

func TestGetOrCreateConcurrentFirstCalls(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryClient()
	// Two registries model two server processes sharing one store.
	regs := []*Registry{newRegistry(t, store), newRegistry(t, store)}

	const callers = 16
	results := make([]*models.CollectionSchema, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = regs[i%2].GetOrCreate(ctx, "race", fieldsOf(fmt.Sprintf("field_%d", i)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	want := results[0].Fields[0].Name
	for i, s := range results {
		if s.Fields[0].Name != want {
			t.Fatalf("caller %d saw %q, caller 0 saw %q", i, s.Fields[0].Name, want)
		}
	}
	n, _ := store.Count(ctx, models.SchemaCollection, core.MatchAll())
	if n != 1 {
		t.Fatalf("expected one persisted definition, got %d", n)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryClient()
	r := newRegistry(t, store)

	if _, err := r.Lookup(ctx, "missing"); !errors.Is(err, ErrUnknownCollection) || !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Lookup(missing) = %v", err)
	}

	if _, err := r.GetOrCreate(ctx, "investors", fieldsOf("full_name")); err != nil {
		t.Fatal(err)
	}
	// A fresh registry reads the persisted definition.
	s, err := newRegistry(t, store).Lookup(ctx, "investors")
	if err != nil || s.Fields[0].Name != "full_name" {
		t.Fatalf("Lookup = %+v, %v", s, err)
	}

	b, err := r.Lookup(ctx, models.RecordsCollection)
	if err != nil || !b.Builtin {
		t.Fatalf("built-in lookup = %+v, %v", b, err)
	}
}
