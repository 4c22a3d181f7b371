package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edubill/backend/internal/bootstrap"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/event"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/edubill/backend/internal/interfaces/http/handler"
	"github.com/edubill/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//	@title			Education Agency Billing API
//	@version		1.0
//	@description	Payment schedules, billing transactions and their audit trail for education agencies
//	@BasePath		/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	base, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = base.Sync() }()

	ctx := context.Background()
	rt, err := bootstrap.Open(ctx, cfg, base)
	if err != nil {
		base.Fatal("Failed to initialize runtime", zap.Error(err))
	}
	log := rt.Logger
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			base.Error("Error releasing runtime", zap.Error(err))
		}
	}()

	log.Info("Starting billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Billing events fan out to the notification dispatcher after commit
	bus := event.NewInMemoryEventBus(log.Named("events"))
	services := rt.Services(bus)
	bus.Subscribe(services.Dispatcher)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := bus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()
	log.Info("Event handlers registered", zap.Strings("notification_events", services.Dispatcher.EventTypes()))

	if cfg.Scheduler.Enabled {
		jobs, err := bootstrap.StartJobs(ctx, cfg.Scheduler, services, log.Named("scheduler"))
		if err != nil {
			log.Fatal("Failed to start billing scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := jobs.Stop(stopCtx); err != nil {
				log.Error("Error stopping billing scheduler", zap.Error(err))
			}
		}()
		log.Info("Billing scheduler enabled", zap.String("daily_cron", cfg.Scheduler.DailyCron))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := router.NewEngine(router.EngineOptions{
		HTTP:        cfg.HTTP,
		APIVersion:  cfg.App.APIVersion,
		ServiceName: cfg.Telemetry.ServiceName,
		Tracing:     rt.Tracer.IsEnabled(),
		Profiling:   rt.Profiler.IsEnabled(),
		Meters:      rt.Meters,
		Checker:     services.Guard,
		Logger:      log,
		Handlers: router.Handlers{
			Agencies:     handler.NewAgencyHandler(services.Agencies),
			Schedule:     handler.NewScheduleHandler(services.Schedule),
			Transactions: handler.NewTransactionHandler(services.Transactions),
			History:      handler.NewHistoryHandler(services.History),
		},
		System: handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion, rt.Database),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	log.Info("Server exited gracefully")
}
