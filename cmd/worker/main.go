package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/pharmacare-api/internal/config"
	"github.com/jwalitptl/pharmacare-api/internal/repository/postgres"
	notificationService "github.com/jwalitptl/pharmacare-api/internal/service/notification"
	"github.com/jwalitptl/pharmacare-api/internal/worker"
	"github.com/jwalitptl/pharmacare-api/pkg/logger"
	"github.com/jwalitptl/pharmacare-api/pkg/messaging/redis"
	"github.com/jwalitptl/pharmacare-api/pkg/metrics"
)

// WorkerConfig holds the worker-only knobs, read from the environment.
type WorkerConfig struct {
	ReminderInterval   time.Duration `envconfig:"REMINDER_INTERVAL" default:"1m"`
	ReminderBatchSize  int           `envconfig:"REMINDER_BATCH_SIZE" default:"100"`
	AuditRetentionDays int           `envconfig:"AUDIT_RETENTION_DAYS" default:"365"`
	AuditCleanupEvery  time.Duration `envconfig:"AUDIT_CLEANUP_INTERVAL" default:"24h"`
	HealthPort         int           `envconfig:"HEALTH_PORT" default:"8081"`
}

func main() {
	var wcfg WorkerConfig
	if err := envconfig.Process("worker", &wcfg); err != nil {
		log.Fatal().Err(err).Msg("failed to read worker configuration")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Setup(cfg.Server.LogLevel, cfg.Server.LogPretty)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("pharmacare", "worker")

	appointmentRepo := postgres.NewAppointmentRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	notifier := notificationService.NewService(notificationRepo, broker, cfg.SMTP)

	reminders := worker.NewReminderWorker(appointmentRepo, notifier, m, wcfg.ReminderInterval, wcfg.ReminderBatchSize)
	auditCleanup := worker.NewAuditCleanupWorker(auditRepo, wcfg.AuditRetentionDays, wcfg.AuditCleanupEvery)

	setupHealthCheck(wcfg.HealthPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down workers")
		cancel()
	}()

	go auditCleanup.Start(ctx)
	reminders.Start(ctx)
}

func setupHealthCheck(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":"+strconv.Itoa(port), mux); err != nil {
			log.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}
