// Package registry keeps the field definitions of dynamically shaped collections.
//
// A collection's shape is fixed by its first upload. Definitions are persisted
// in the collectionschemas collection behind a unique index on name, cached in
// process, and created at most once per name even under concurrent uploads.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/markdave123-py/prescodata/internal/core"
	"github.com/markdave123-py/prescodata/internal/models"
)

// MaxIndexedFields caps single-field indexes per collection, below the
// store's 64 index limit to leave room for _id and the text index.
const MaxIndexedFields = 60

const textIndexName = "text_search"

// ErrUnknownCollection is returned by Lookup for names with no definition.
var ErrUnknownCollection = fmt.Errorf("collection not registered: %w", core.ErrNotFound)

type Registry struct {
	db     core.DbClient
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*models.CollectionSchema
	group singleflight.Group

	builtins map[string]*models.CollectionSchema
}

func New(db core.DbClient, logger *slog.Logger) *Registry {
	return &Registry{
		db:     db,
		logger: logger.With("component", "registry"),
		now:    func() time.Time { return time.Now().UTC() },
		cache:  make(map[string]*models.CollectionSchema),
		builtins: map[string]*models.CollectionSchema{
			models.RecordsCollection: {
				Name:    models.RecordsCollection,
				Fields:  models.RecordFields,
				Builtin: true,
			},
		},
	}
}

// Init creates the unique index that guards definitions against duplicate creation.
func (r *Registry) Init(ctx context.Context) error {
	return r.db.EnsureIndexes(ctx, models.SchemaCollection, []core.IndexSpec{
		{Name: "name_unique", Fields: []string{"name"}, Unique: true},
	})
}

// Builtin returns the fixed definition of a built-in collection.
func (r *Registry) Builtin(name string) (*models.CollectionSchema, bool) {
	s, ok := r.builtins[name]
	return s, ok
}

// Lookup returns the definition of name, or ErrUnknownCollection.
func (r *Registry) Lookup(ctx context.Context, name string) (*models.CollectionSchema, error) {
	if s, ok := r.Builtin(name); ok {
		return s, nil
	}
	if s, ok := r.cached(name); ok {
		return s, nil
	}
	s, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrUnknownCollection
	}
	return r.remember(ctx, s)
}

// GetOrCreate returns the existing definition of name unchanged, or registers
// one built from fields. Concurrent first calls agree on a single definition.
func (r *Registry) GetOrCreate(ctx context.Context, name string, fields []models.FieldDef) (*models.CollectionSchema, error) {
	if s, ok := r.Builtin(name); ok {
		return s, nil
	}
	if s, ok := r.cached(name); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		if s, ok := r.cached(name); ok {
			return s, nil
		}
		existing, err := r.load(ctx, name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return r.remember(ctx, existing)
		}

		def := r.define(name, fields)
		err = r.db.InsertOne(ctx, models.SchemaCollection, def.ToDocument())
		if errors.Is(err, core.ErrDuplicateKey) {
			// Another process registered it first; theirs wins.
			winner, lerr := r.load(ctx, name)
			if lerr != nil {
				return nil, lerr
			}
			if winner == nil {
				return nil, fmt.Errorf("collection %q: definition vanished after duplicate insert", name)
			}
			return r.remember(ctx, winner)
		}
		if err != nil {
			return nil, fmt.Errorf("register collection %q: %w", name, err)
		}
		r.logger.Info("registered collection", "collection", name, "fields", len(def.Fields))
		return r.remember(ctx, def)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.CollectionSchema), nil
}

// define builds a new definition: every field indexed up to the cap, and the
// fields that look like names or contact details marked for text search.
func (r *Registry) define(name string, fields []models.FieldDef) *models.CollectionSchema {
	def := &models.CollectionSchema{Name: name, CreatedAt: r.now()}
	for i, f := range fields {
		f.Indexed = i < MaxIndexedFields
		f.Text = IsTextField(f.Name)
		def.Fields = append(def.Fields, f)
	}
	if len(fields) > MaxIndexedFields {
		r.logger.Warn("too many columns to index them all",
			"collection", name, "columns", len(fields), "indexed", MaxIndexedFields)
	}
	return def
}

// IsTextField reports whether a cleaned column name takes part in the text index.
func IsTextField(name string) bool {
	return strings.Contains(name, "name") || strings.Contains(name, "email") || strings.Contains(name, "phone")
}

// IndexesFor lists the indexes a collection with this definition needs.
func IndexesFor(s *models.CollectionSchema) []core.IndexSpec {
	var (
		specs []core.IndexSpec
		text  []string
	)
	for _, f := range s.Fields {
		if f.Indexed {
			specs = append(specs, core.IndexSpec{Name: f.Name + "_1", Fields: []string{f.Name}})
		}
		if f.Text {
			text = append(text, f.Name)
		}
	}
	if len(text) > 0 {
		specs = append(specs, core.IndexSpec{Name: textIndexName, Fields: text, Text: true})
	}
	return specs
}

func (r *Registry) cached(name string) (*models.CollectionSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.cache[name]
	return s, ok
}

// remember makes sure the collection's indexes exist, then caches the definition.
func (r *Registry) remember(ctx context.Context, s *models.CollectionSchema) (*models.CollectionSchema, error) {
	if err := r.db.EnsureIndexes(ctx, s.Name, IndexesFor(s)); err != nil {
		return nil, fmt.Errorf("index collection %q: %w", s.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[s.Name]; ok {
		return existing, nil
	}
	r.cache[s.Name] = s
	return s, nil
}

func (r *Registry) load(ctx context.Context, name string) (*models.CollectionSchema, error) {
	doc, err := r.db.FindOne(ctx, models.SchemaCollection, core.Or(core.Equals("name", name)), core.FindOptions{})
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load collection %q: %w", name, err)
	}
	return models.SchemaFromDocument(doc)
}
