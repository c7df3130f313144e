// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

// seedFiles run in order; contacts before campaigns.
var seedFiles = []string{
	"contacts.sql",
	"campaigns.sql",
}

func main() {
	seedDir := flag.String("seed", "", "directory with seed SQL files; empty applies the schema only")
	flag.Parse()

	_ = godotenv.Load()
	ctx := context.Background()
	log := logger.New(os.Getenv("APP_LOG_LEVEL"))

	var cfg struct {
		Database config.DatabaseConfig `env:",prefix=DB_"`
	}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load database config")
	}

	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	log.Info().Msg("schema applied")

	if *seedDir == "" {
		return
	}
	for _, name := range seedFiles {
		file := filepath.Join(*seedDir, name)
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("failed to read seed file")
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("failed to execute seed file")
		}
		log.Info().Str("file", file).Msg("seeded")
	}
	fmt.Println("Database seeding completed successfully!")
}
