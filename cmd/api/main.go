package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/announcehq/broadcastq/internal/broadcast"
	"github.com/announcehq/broadcastq/internal/job"
	"github.com/announcehq/broadcastq/internal/models"
	"github.com/announcehq/broadcastq/internal/schedule"
	"github.com/announcehq/broadcastq/internal/storage/postgres"
	"github.com/announcehq/broadcastq/middleware"
)

type apiConfig struct {
	Listen string `env:"API_LISTEN,default=:8080"`
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx := context.Background()
	var apiCfg apiConfig
	if err := envconfig.Process(ctx, &apiCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load api config")
	}
	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load db config")
	}

	db, err := postgres.ConnectDB(dbCfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	if err := postgres.MigrateModels(db,
		&models.Job{}, &models.Broadcast{}, &models.Recipient{}, &models.Schedule{},
	); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	jobRepo := postgres.NewJobRepository(db)
	broadcastRepo := postgres.NewBroadcastRepository(db)
	recipientRepo := postgres.NewRecipientRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)

	jobHandler := job.NewJobHandler(job.NewJobService(jobRepo))
	broadcastHandler := broadcast.NewHandler(broadcast.NewService(broadcastRepo, recipientRepo, jobRepo))
	scheduleHandler := schedule.NewHandler(schedule.NewService(scheduleRepo))

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.ErrorHandler())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/jobs", jobHandler.Create)
		v1.GET("/jobs", jobHandler.List)
		v1.GET("/jobs/:id", jobHandler.Get)
		v1.POST("/jobs/:id/retry", jobHandler.Retry)
		v1.GET("/queues/:queue/stats", jobHandler.Stats)

		v1.POST("/broadcasts", broadcastHandler.Create)
		v1.GET("/broadcasts/:id", broadcastHandler.Get)
		v1.POST("/broadcasts/:id/cancel", broadcastHandler.Cancel)
		v1.GET("/broadcasts/:id/recipients", broadcastHandler.Recipients)

		v1.POST("/schedules", scheduleHandler.Create)
		v1.GET("/schedules/:id", scheduleHandler.Get)
		v1.POST("/schedules/:id/cancel", scheduleHandler.Cancel)
	}

	log.Info().Str("listen", apiCfg.Listen).Msg("api listening")
	if err := r.Run(apiCfg.Listen); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
