package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/pharmacare-api/internal/config"
	"github.com/jwalitptl/pharmacare-api/internal/handler"
	analyticsHandler "github.com/jwalitptl/pharmacare-api/internal/handler/analytics"
	appointmentHandler "github.com/jwalitptl/pharmacare-api/internal/handler/appointment"
	resourceHandler "github.com/jwalitptl/pharmacare-api/internal/handler/resource"
	suggestionHandler "github.com/jwalitptl/pharmacare-api/internal/handler/suggestion"
	"github.com/jwalitptl/pharmacare-api/internal/middleware"
	"github.com/jwalitptl/pharmacare-api/internal/repository/postgres"
	"github.com/jwalitptl/pharmacare-api/internal/router"
	analyticsService "github.com/jwalitptl/pharmacare-api/internal/service/analytics"
	appointmentService "github.com/jwalitptl/pharmacare-api/internal/service/appointment"
	auditService "github.com/jwalitptl/pharmacare-api/internal/service/audit"
	availabilityService "github.com/jwalitptl/pharmacare-api/internal/service/availability"
	directoryService "github.com/jwalitptl/pharmacare-api/internal/service/directory"
	notificationService "github.com/jwalitptl/pharmacare-api/internal/service/notification"
	suggestionService "github.com/jwalitptl/pharmacare-api/internal/service/suggestion"
	"github.com/jwalitptl/pharmacare-api/pkg/locker"
	"github.com/jwalitptl/pharmacare-api/pkg/logger"
	"github.com/jwalitptl/pharmacare-api/pkg/messaging/redis"
	"github.com/jwalitptl/pharmacare-api/pkg/metrics"
)

func main() {
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

	m := metrics.NewMetrics("pharmacare", "scheduling")

	// Repositories
	appointmentRepo := postgres.NewAppointmentRepository(db)
	resourceRepo := postgres.NewResourceRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Services
	redisBroker := broker.(*redis.RedisBroker)
	resourceLocker := locker.NewRedisResourceLocker(redisBroker.Client(), cfg.Scheduling.LockTTL())

	directorySvc := directoryService.NewService(resourceRepo)
	availabilitySvc := availabilityService.NewService(appointmentRepo, directorySvc)
	auditSvc := auditService.NewService(auditRepo)
	notificationSvc := notificationService.NewService(notificationRepo, broker, cfg.SMTP)
	appointmentSvc := appointmentService.NewService(
		appointmentRepo,
		availabilitySvc,
		resourceLocker,
		notificationSvc,
		auditSvc,
		m,
		cfg.Scheduling,
	)
	suggestionSvc := suggestionService.NewService(appointmentRepo, directorySvc, cfg.Scoring, cfg.Scheduling, m)
	analyticsSvc := analyticsService.NewService(appointmentRepo, directorySvc, cfg.Analytics, cfg.Scheduling.SlotStepMinutes, m)

	// Handlers
	h := handler.NewHandler(db)
	appointmentH := appointmentHandler.NewHandler(appointmentSvc, availabilitySvc)
	suggestionH := suggestionHandler.NewHandler(suggestionSvc)
	analyticsH := analyticsHandler.NewHandler(analyticsSvc)
	resourceH := resourceHandler.NewHandler(directorySvc)

	r := router.NewRouter(appointmentH, suggestionH, analyticsH, resourceH, h, router.Config{
		RateLimit:     rate.Limit(cfg.Server.RateLimitRPS),
		RateBurst:     cfg.Server.RateLimitBurst,
		Timeout:       time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		CORSConfig:    middleware.DefaultCORSConfig(),
		MetricsPrefix: "pharmacare_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
