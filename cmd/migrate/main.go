package main

import (
	"github.com/rs/zerolog/log"

	"studyplan/backend/internal/config"
	"studyplan/backend/internal/db"
	"studyplan/backend/internal/logging"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, true)

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	log.Info().Msg("migrations applied successfully")
}
