package main

import (
	"github.com/rs/zerolog/log"

	"studyplan/backend/internal/clock"
	"studyplan/backend/internal/config"
	"studyplan/backend/internal/db"
	"studyplan/backend/internal/handler"
	"studyplan/backend/internal/logging"
	"studyplan/backend/internal/repository"
	"studyplan/backend/internal/router"
	"studyplan/backend/internal/service"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, false)

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	clk := clock.SystemClock{}
	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	statsRepo := repository.NewStatisticsRepository(database)
	subjectRepo := repository.NewSubjectRepository(database)

	authService := service.NewAuthService(userRepo, clk, cfg.JWTSecret, cfg.TokenTTL)
	statsService := service.NewStatisticsService(statsRepo, clk)
	sessionService := service.NewSessionService(sessionRepo, statsService, subjectRepo, clk, cfg.SessionPolicy())

	authHandler := handler.NewAuthHandler(authService)
	sessionHandler := handler.NewSessionHandler(sessionService)

	engine := router.New(authService, authHandler, sessionHandler, cfg.CORSOrigins)
	log.Info().Str("port", cfg.Port).Msg("backend listening")
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("run server")
	}
}
