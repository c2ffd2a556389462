package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/markdave123-py/prescodata/internal/core"
)

// ErrNotArchived is returned by Open when archiving is disabled or the key is empty.
var ErrNotArchived = errors.New("upload was not archived")

// ArchiveService keeps a copy of every raw upload in object storage.
// A nil storage client disables archiving.
type ArchiveService struct {
	storage core.ObjectClient
	bucket  string
	logger  *slog.Logger
	now     func() time.Time
}

func NewArchiveService(storage core.ObjectClient, bucket string, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		storage: storage,
		bucket:  bucket,
		logger:  logger.With("component", "archive"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *ArchiveService) Enabled() bool { return s != nil && s.storage != nil && s.bucket != "" }

// Archive uploads data under a key derived from the collection and file name
// and returns that key. It returns "" without error when archiving is disabled.
func (s *ArchiveService) Archive(ctx context.Context, collection, filename, contentType string, data io.Reader) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := s.objectKey(collection, filename)
	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", filename, err)
	}
	s.logger.Info("upload archived", "key", key, "url", url)
	return key, nil
}

// Remove deletes an archived upload; used when ingestion fails after archiving.
func (s *ArchiveService) Remove(ctx context.Context, key string) error {
	if !s.Enabled() || key == "" {
		return nil
	}
	return s.storage.DeleteFile(ctx, s.bucket, key)
}

// Open streams an archived upload back; the caller closes the reader.
func (s *ArchiveService) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if !s.Enabled() || key == "" {
		return nil, ErrNotArchived
	}
	body, err := s.storage.GetObjectReader(ctx, s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("open archived %s: %w", key, err)
	}
	return body, nil
}

// objectKey creates a consistent S3 key layout.
func (s *ArchiveService) objectKey(collection, filename string) string {
	filename = strings.ReplaceAll(strings.TrimSpace(filepath.Base(filename)), " ", "_")
	if collection == "" {
		collection = "_unnamed"
	}
	id := ulid.MustNew(ulid.Timestamp(s.now()), ulid.DefaultEntropy()).String()
	return path.Join("uploads", collection, id, filename)
}
