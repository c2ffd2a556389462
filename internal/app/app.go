// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/prescodata/internal/auth"
	"github.com/markdave123-py/prescodata/internal/config"
	"github.com/markdave123-py/prescodata/internal/core"
	db "github.com/markdave123-py/prescodata/internal/core/database"
	"github.com/markdave123-py/prescodata/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/prescodata/internal/core/object-client"
	"github.com/markdave123-py/prescodata/internal/core/registry"
	"github.com/markdave123-py/prescodata/internal/services"
)

type App struct {
	DBClient core.DbClient
	Services *Services
	Server   *Server
	logger   *slog.Logger
}

// Services groups the long-lived components shared by the binaries.
type Services struct {
	DB       core.DbClient
	Tokens   *auth.TokenManager
	Registry *registry.Registry
	Users    *services.UserService
	Metadata *services.MetadataService
	Records  *services.RecordService
	Archive  *services.ArchiveService
	Ingestor ingestion_engine.Ingestor
}

// NewServices builds the services on top of an open store and creates the
// indexes they rely on. obj may be nil, which disables archiving.
func NewServices(ctx context.Context, cfg *config.Config, dbClient core.DbClient, obj core.ObjectClient, logger *slog.Logger) (*Services, error) {
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; tokens are signed with a random key and will not survive a restart")
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpire)
	reg := registry.New(dbClient, logger)
	meta := services.NewMetadataService(dbClient)
	users := services.NewUserService(dbClient, tokens, logger)
	records := services.NewRecordService(dbClient, reg, meta, logger)

	inits := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"registry", reg.Init},
		{"users", users.Init},
		{"metadata", meta.Init},
		{"records", records.Init},
	}
	for _, in := range inits {
		if err := in.fn(ctx); err != nil {
			return nil, fmt.Errorf("init %s indexes: %w", in.name, err)
		}
	}

	bucket := ""
	if obj != nil {
		bucket = cfg.BucketName
	}
	ingestor := ingestion_engine.NewSheetIngestor(
		dbClient, reg, ingestion_engine.NewSpreadsheetExtractor(), meta,
		ingestion_engine.IngestConfig{BatchSize: cfg.IngestBatchSize},
		logger,
	)

	return &Services{
		DB:       dbClient,
		Tokens:   tokens,
		Registry: reg,
		Users:    users,
		Metadata: meta,
		Records:  records,
		Archive:  services.NewArchiveService(obj, bucket, logger),
		Ingestor: ingestor,
	}, nil
}

// Open connects the store and, when a bucket is configured, object storage.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	dbClient, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")

	var obj core.ObjectClient
	if cfg.ArchiveEnabled() {
		s3, err := objectclient.NewS3Client(ctx, cfg, logger)
		if err != nil {
			_ = dbClient.Close(context.Background())
			return nil, err
		}
		obj = s3
	} else {
		logger.Info("BUCKET_NAME not set; uploads will not be archived")
	}

	svc, err := NewServices(ctx, cfg, dbClient, obj, logger)
	if err != nil {
		_ = dbClient.Close(context.Background())
		return nil, err
	}
	return svc, nil
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	svc, err := Open(appCtx, cfg, logger)
	if err != nil {
		return nil, err
	}

	server := NewServer(cfg, NewRouter(cfg, svc, logger), logger)
	return &App{DBClient: svc.DB, Services: svc, Server: server, logger: logger}, nil
}

func (a *App) Close(ctx context.Context) {
	if a.DBClient != nil {
		if err := a.DBClient.Close(ctx); err != nil {
			a.logger.Warn("closing database", "error", err)
		}
	}
}
