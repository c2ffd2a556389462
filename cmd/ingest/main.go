// Command ingest loads a local spreadsheet through the same pipeline as the
// upload endpoint.
//
//	ingest -file investors.xlsx [-collection name] [-by ops@presco.io]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/markdave123-py/prescodata/internal/app"
	"github.com/markdave123-py/prescodata/internal/config"
	"github.com/markdave123-py/prescodata/internal/core/ingestion_engine"
	"github.com/markdave123-py/prescodata/internal/logging"
)

func main() {
	file := flag.String("file", "", "path to a .xlsx or .xls workbook")
	collection := flag.String("collection", "", "target collection (defaults to the sheet name)")
	by := flag.String("by", "cli", "recorded as the uploader")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *file, *collection, *by); err != nil {
		logger.Error("ingest failed", "file", *file, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, file, collection, by string) error {
	// The pipeline deletes what it parses, so it gets a copy.
	tmp, err := copyToTemp(file)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.DB.Close(context.Background())

	res, err := svc.Ingestor.Ingest(ctx, ingestion_engine.IngestRequest{
		FilePath:         tmp,
		OriginalFileName: filepath.Base(file),
		CollectionName:   collection,
		UploadedBy:       by,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "ingest-*"+filepath.Ext(path))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("copy %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
