package core

import (
	"context"
	"io"
)

// DbClient defines all persistence operations the services need.
// It abstracts the document store (MongoDB, Postgres JSONB or memory) so higher
// layers never depend on a specific database.
type DbClient interface {
	// EnsureIndexes creates the given indexes on a collection if they are missing.
	EnsureIndexes(ctx context.Context, collection string, indexes []IndexSpec) error

	// InsertMany inserts docs without stopping at the first failure. Per-document
	// failures (duplicate key, validation) are reported in the result; the error is
	// reserved for failures that invalidate the whole call.
	InsertMany(ctx context.Context, collection string, docs []Document) (InsertResult, error)
	// InsertOne returns ErrDuplicateKey when a unique index rejects the document.
	InsertOne(ctx context.Context, collection string, doc Document) error
	// Upsert replaces the fields of the document whose keyField equals doc[keyField],
	// inserting it when absent.
	Upsert(ctx context.Context, collection, keyField string, doc Document) error
	DeleteAll(ctx context.Context, collection string) (int64, error)

	Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error)
	// FindOne returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, collection string, filter Filter, opts FindOptions) (Document, error)
	Count(ctx context.Context, collection string, filter Filter) (int64, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
