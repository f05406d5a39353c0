package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/announcehq/broadcastq/internal/broadcast"
	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/gateway"
	"github.com/announcehq/broadcastq/internal/gateway/telegram"
	"github.com/announcehq/broadcastq/internal/history"
	"github.com/announcehq/broadcastq/internal/models"
	"github.com/announcehq/broadcastq/internal/queue"
	"github.com/announcehq/broadcastq/internal/schedule"
	"github.com/announcehq/broadcastq/internal/storage/postgres"
)

type workerConfig struct {
	Queue     queue.Config
	Engine    broadcast.EngineConfig
	Scheduler schedule.SchedulerConfig
	Telegram  telegram.Config
	Valkey    history.ValkeyConfig

	AudienceFile string `env:"AUDIENCE_FILE"`
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg workerConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker config")
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

	var gw gateway.Gateway
	if cfg.Telegram.Token != "" {
		gw, err = telegram.New(cfg.Telegram, log)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram gateway init failed")
		}
	} else {
		log.Warn().Msg("no gateway credentials, running with dry-run gateway")
		gw = gateway.NewDryRun(log)
	}

	var hist history.Store
	if cfg.Valkey.Address != "" {
		valkeyStore, err := history.NewValkey(cfg.Valkey)
		if err != nil {
			log.Fatal().Err(err).Msg("valkey init failed")
		}
		defer valkeyStore.Close()
		hist = valkeyStore
	} else {
		hist = history.NewMemory()
	}

	var audience broadcast.AudienceProvider
	if cfg.AudienceFile != "" {
		audience, err = broadcast.LoadStaticAudience(cfg.AudienceFile)
		if err != nil {
			log.Fatal().Err(err).Msg("audience load failed")
		}
	} else {
		audience = broadcast.NewStaticAudience(nil)
	}

	engine := broadcast.NewEngine(cfg.Engine, broadcastRepo, recipientRepo, audience, gw, hist, log)

	dispatcher := queue.NewDispatcher(cfg.Queue, jobRepo, log)
	dispatcher.Register(config.JobTypeBroadcastSend, engine.Process)
	dispatcher.Start(ctx)

	scheduler := schedule.NewScheduler(cfg.Scheduler, scheduleRepo, broadcastRepo, jobRepo, log)
	scheduler.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("shutting down")
	dispatcher.Stop()
	log.Info().Msg("shutdown complete")
}
