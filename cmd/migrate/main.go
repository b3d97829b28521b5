package main

import (
	"flag"
	"log"

	"github.com/noah-isme/psychometric-api/pkg/config"
	"github.com/noah-isme/psychometric-api/pkg/database"
	"github.com/noah-isme/psychometric-api/pkg/logger"
)

func main() {
	var direction string
	flag.StringVar(&direction, "direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	migrator, err := database.NewMigrator(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("migrator init failed", "error", err)
	}

	switch direction {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	default:
		logr.Sugar().Fatalw("unknown direction", "direction", direction)
	}
	if err != nil {
		logr.Sugar().Fatalw("migration failed", "direction", direction, "error", err)
	}
	logr.Sugar().Infow("migrations complete", "direction", direction, "database", cfg.Database.Name)
}
