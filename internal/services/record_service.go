package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/core"
	"github.com/markdave123-py/prescodata/internal/core/ingestion_engine"
	"github.com/markdave123-py/prescodata/internal/core/registry"
	"github.com/markdave123-py/prescodata/internal/models"
)

const maxPageLimit = 1000

// recordSearchFields are the columns of the records collection that field search accepts.
var recordSearchFields = []string{
	"name", "email", "mobile_no", "account_number", "address",
	"s_no", "units_held", "rights_due", "amount",
}

// RecordService answers the read side: search, listing, lookup and upload stats.
type RecordService struct {
	db       core.DbClient
	registry *registry.Registry
	metadata *MetadataService
	logger   *slog.Logger
}

func NewRecordService(db core.DbClient, reg *registry.Registry, meta *MetadataService, logger *slog.Logger) *RecordService {
	return &RecordService{
		db:       db,
		registry: reg,
		metadata: meta,
		logger:   logger.With("component", "records"),
	}
}

// Init creates the indexes of the records collection.
func (s *RecordService) Init(ctx context.Context) error {
	schema, _ := s.registry.Builtin(models.RecordsCollection)
	return s.db.EnsureIndexes(ctx, models.RecordsCollection, registry.IndexesFor(schema))
}

// Page selects a window of a listing. Limit 0 means everything.
type Page struct {
	Page  int
	Limit int
}

// ParsePage validates the page and limit query values; both are optional.
func ParsePage(page, limit string) (Page, error) {
	p := Page{Page: 1}
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return p, apperr.Validation("Page must be a positive integer")
		}
		p.Page = n
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > maxPageLimit {
			return p, apperr.Validationf("Limit must be between 1 and %d", maxPageLimit)
		}
		p.Limit = n
	}
	if p.Limit > 0 && int64(p.Page-1) > math.MaxInt64/int64(p.Limit) {
		return p, apperr.Validation("Page is out of range")
	}
	return p, nil
}

// Skip is the number of documents before the page.
func (p Page) Skip() int64 {
	if p.Limit <= 0 || p.Page <= 1 {
		return 0
	}
	return int64(p.Page-1) * int64(p.Limit)
}

type ListResult struct {
	Records []any
	Total   int64
}

type StatsResult struct {
	Metadata *models.UploadMetadata `json:"metadata"`
	Count    int64                  `json:"count"`
}

// FreeText searches the name-like columns of a collection. On the records
// collection a numeric query also matches the account number exactly.
func (s *RecordService) FreeText(ctx context.Context, query, collection string) ([]any, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("Search query is required")
	}
	schema, err := s.resolve(ctx, collection)
	if err != nil {
		return nil, err
	}

	var conds []core.Condition
	if schema.Builtin {
		conds = append(conds,
			core.Contains("name", query),
			core.Contains("email", query),
			core.Contains("mobile_no", query),
		)
		if n, ok := core.ParseNumber(query); ok {
			conds = append(conds, core.Equals("account_number", n))
		}
	} else {
		for _, f := range schema.Fields {
			if strings.Contains(f.Name, "name") {
				conds = append(conds, fieldConditions(f, query)...)
			}
		}
	}
	if len(conds) == 0 {
		return []any{}, nil
	}
	return s.find(ctx, schema, core.Or(conds...))
}

// ByField searches one column. Number columns match exactly, text columns by substring.
func (s *RecordService) ByField(ctx context.Context, field, value, collection string) ([]any, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, apperr.Validation("Search value is required")
	}
	schema, err := s.resolve(ctx, collection)
	if err != nil {
		return nil, err
	}

	allowed := schema.FieldNames()
	if schema.Builtin {
		allowed = recordSearchFields
	}
	def, ok := schema.Field(field)
	if !ok || !slices.Contains(allowed, field) {
		return nil, apperr.Validationf("Invalid search field %q", field).
			WithDetails(map[string]any{"allowedFields": allowed})
	}

	var conds []core.Condition
	switch def.Type {
	case models.FieldNumber:
		n, ok := core.ParseNumber(value)
		if !ok {
			return nil, apperr.Validationf("Field %q expects a numeric value", field)
		}
		conds = []core.Condition{core.Equals(field, n)}
	case models.FieldBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, apperr.Validationf("Field %q expects true or false", field)
		}
		conds = []core.Condition{core.Equals(field, b)}
	default:
		conds = fieldConditions(def, value)
	}
	return s.find(ctx, schema, core.Or(conds...))
}

// List returns the records of a collection, one page of them when a limit is set.
func (s *RecordService) List(ctx context.Context, collection string, page Page) (*ListResult, error) {
	schema, err := s.resolve(ctx, collection)
	if err != nil {
		return nil, err
	}
	opts := core.FindOptions{}
	if page.Limit > 0 {
		opts.Skip = page.Skip()
		opts.Limit = int64(page.Limit)
	}

	var (
		docs  []core.Document
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = s.db.Find(gctx, schema.Name, core.MatchAll(), opts)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.db.Count(gctx, schema.Name, core.MatchAll())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal(err)
	}

	records := make([]any, len(docs))
	for i, d := range docs {
		records[i] = d
	}
	return &ListResult{Records: records, Total: total}, nil
}

// ByAccount finds a single record by account number.
func (s *RecordService) ByAccount(ctx context.Context, id, collection string) (any, error) {
	notFound := apperr.NotFound("Record not found")
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validation("Account number is required")
	}
	schema, err := s.resolve(ctx, collection)
	if err != nil {
		return nil, err
	}
	def, ok := schema.Field("account_number")
	if !ok {
		return nil, notFound
	}

	var conds []core.Condition
	n, numeric := core.ParseNumber(id)
	switch def.Type {
	case models.FieldNumber:
		if !numeric {
			return nil, notFound
		}
		conds = []core.Condition{core.Equals(def.Name, n)}
	case models.FieldString:
		conds = []core.Condition{core.Equals(def.Name, id)}
	default:
		conds = []core.Condition{core.Equals(def.Name, id)}
		if numeric {
			conds = append(conds, core.Equals(def.Name, n))
		}
	}

	doc, err := s.db.FindOne(ctx, schema.Name, core.Or(conds...), core.FindOptions{})
	if errors.Is(err, core.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if schema.Builtin {
		r, err := models.RecordFromDocument(doc)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		return r.View(), nil
	}
	return doc, nil
}

// Stats returns the upload summary of collection (or of the latest upload when
// collection is empty) together with the live document count.
func (s *RecordService) Stats(ctx context.Context, collection string) (*StatsResult, error) {
	if strings.TrimSpace(collection) == "" {
		meta, err := s.metadata.Latest(ctx)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			return nil, apperr.NotFound("No upload metadata found")
		}
		n, err := s.db.Count(ctx, meta.CollectionName, core.MatchAll())
		if err != nil {
			return nil, apperr.Internal(err)
		}
		return &StatsResult{Metadata: meta, Count: n}, nil
	}

	name := ingestion_engine.CleanHeader(collection)
	var res StatsResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res.Metadata, err = s.metadata.Get(gctx, name)
		return err
	})
	g.Go(func() error {
		var err error
		if res.Count, err = s.db.Count(gctx, name, core.MatchAll()); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if res.Metadata == nil {
		return nil, apperr.NotFound("No upload metadata found")
	}
	return &res, nil
}

// Collections lists every uploaded collection, newest first.
func (s *RecordService) Collections(ctx context.Context) ([]*models.UploadMetadata, error) {
	return s.metadata.List(ctx)
}

// resolve maps the collection query value to its definition. Empty means the records collection.
func (s *RecordService) resolve(ctx context.Context, collection string) (*models.CollectionSchema, error) {
	name := models.RecordsCollection
	if strings.TrimSpace(collection) != "" {
		name = ingestion_engine.CleanHeader(collection)
	}
	if models.IsReserved(name) {
		return nil, apperr.NotFound("Collection '" + name + "' not found")
	}
	schema, err := s.registry.Lookup(ctx, name)
	if errors.Is(err, registry.ErrUnknownCollection) {
		return nil, apperr.NotFound("Collection '" + name + "' not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return schema, nil
}

func (s *RecordService) find(ctx context.Context, schema *models.CollectionSchema, filter core.Filter) ([]any, error) {
	docs, err := s.db.Find(ctx, schema.Name, filter, core.FindOptions{})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		if !schema.Builtin {
			out = append(out, d)
			continue
		}
		r, err := models.RecordFromDocument(d)
		if err != nil {
			s.logger.Warn("skipping malformed record", "id", d[core.FieldID], "error", err)
			continue
		}
		out = append(out, r.View())
	}
	return out, nil
}

// fieldConditions matches value against one column according to its type.
func fieldConditions(f models.FieldDef, value string) []core.Condition {
	n, numeric := core.ParseNumber(value)
	switch f.Type {
	case models.FieldNumber:
		if numeric {
			return []core.Condition{core.Equals(f.Name, n)}
		}
		return nil
	case models.FieldString:
		return []core.Condition{core.Contains(f.Name, value)}
	case models.FieldBool:
		if b, err := strconv.ParseBool(value); err == nil {
			return []core.Condition{core.Equals(f.Name, b)}
		}
		return nil
	}
	conds := []core.Condition{core.Contains(f.Name, value)}
	if numeric {
		conds = append(conds, core.Equals(f.Name, n))
	}
	return conds
}
