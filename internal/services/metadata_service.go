package services

import (
	"context"
	"errors"

	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/core"
	"github.com/markdave123-py/prescodata/internal/models"
)

const metadataKey = "collectionName"

// MetadataService keeps one summary per collection, replaced on every upload.
type MetadataService struct {
	db core.DbClient
}

func NewMetadataService(db core.DbClient) *MetadataService {
	return &MetadataService{db: db}
}

func (s *MetadataService) Init(ctx context.Context) error {
	return s.db.EnsureIndexes(ctx, models.MetadataCollection, []core.IndexSpec{
		{Name: "collectionName_unique", Fields: []string{metadataKey}, Unique: true},
	})
}

// Record stores m as the summary of its collection.
func (s *MetadataService) Record(ctx context.Context, m *models.UploadMetadata) error {
	if err := s.db.Upsert(ctx, models.MetadataCollection, metadataKey, m.ToDocument()); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Get returns the summary of collection, or nil when it was never uploaded.
func (s *MetadataService) Get(ctx context.Context, collection string) (*models.UploadMetadata, error) {
	return s.findOne(ctx, core.Or(core.Equals(metadataKey, collection)))
}

// Latest returns the most recently uploaded summary, or nil when there is none.
func (s *MetadataService) Latest(ctx context.Context) (*models.UploadMetadata, error) {
	return s.findOne(ctx, core.MatchAll())
}

// List returns every summary, newest upload first.
func (s *MetadataService) List(ctx context.Context) ([]*models.UploadMetadata, error) {
	docs, err := s.db.Find(ctx, models.MetadataCollection, core.MatchAll(), core.FindOptions{NewestFirst: true})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]*models.UploadMetadata, len(docs))
	for i, d := range docs {
		out[i] = models.UploadMetadataFromDocument(d)
	}
	return out, nil
}

func (s *MetadataService) findOne(ctx context.Context, filter core.Filter) (*models.UploadMetadata, error) {
	doc, err := s.db.FindOne(ctx, models.MetadataCollection, filter, core.FindOptions{NewestFirst: true})
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return models.UploadMetadataFromDocument(doc), nil
}
