// Command bootstrap creates the administrator account from ADMIN_EMAIL and
// ADMIN_PASSWORD. Running it again is harmless.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/markdave123-py/prescodata/internal/app"
	"github.com/markdave123-py/prescodata/internal/config"
	"github.com/markdave123-py/prescodata/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg)

	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		logger.Error("ADMIN_EMAIL and ADMIN_PASSWORD must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer svc.DB.Close(context.Background())

	created, err := svc.Users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		logger.Error("could not create administrator", "error", err)
		os.Exit(1)
	}
	if created {
		logger.Info("administrator created", "email", cfg.AdminEmail)
	} else {
		logger.Info("administrator already exists", "email", cfg.AdminEmail)
	}
}
