// Command migrate applies the SQL files in MIGRATIONS_DIR to DATABASE_URL and exits.
package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/wirebuddy/ledger-service/internal/config"
	"github.com/wirebuddy/ledger-service/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=migrate msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=migrate msg=\"config load failed\" err=%v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("level=fatal component=migrate msg=\"database url must be configured\" env=DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	applied, err := store.RunMigrations(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("level=fatal component=migrate msg=\"migration failed\" err=%v", err)
	}
	for _, name := range applied {
		log.Printf("level=info component=migrate msg=\"applied\" file=%s", name)
	}
	log.Printf("level=info component=migrate msg=\"done\" applied=%d", len(applied))
}
