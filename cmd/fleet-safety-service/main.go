package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-safety-service/internal/auth"
	"fleet-safety-service/internal/config"
	"fleet-safety-service/internal/db"
	"fleet-safety-service/internal/gateway"
	httphandler "fleet-safety-service/internal/http"
	"fleet-safety-service/internal/http/middleware"
	"fleet-safety-service/internal/logger"
	"fleet-safety-service/internal/repository"
	"fleet-safety-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	locks := repository.NewEntityLocks()
	vehicleRepo := repository.NewVehicleRepository(database, locks)
	driverRepo := repository.NewDriverRepository(database, locks)
	tripRepo := repository.NewTripRepository(database, locks)
	routeRepo := repository.NewRouteRepository(database)
	telemetryRepo := repository.NewTelemetryRepository(database)
	alertRepo := repository.NewAlertRepository(database)
	analyticsRepo := repository.NewAnalyticsRepository(database)

	static := gateway.NewStaticGateway()
	maps := gateway.NewRetrying(static, cfg.Gateway.RetryAttempts, cfg.Gateway.RetryBaseDelay, log)

	plannerService := service.NewPlannerService(vehicleRepo, driverRepo, routeRepo, maps, cfg.Planner, log)
	scorerService := service.NewScorerService(routeRepo, maps, static, cfg.Scorer, log)
	monitorManager := service.NewMonitorManager(
		plannerService, scorerService,
		tripRepo, routeRepo, vehicleRepo, driverRepo, alertRepo,
		maps, static,
		cfg.Monitor, cfg.Orchestrator.TieBreakEpsilon, log,
	)
	telemetryService := service.NewTelemetryService(telemetryRepo, vehicleRepo, driverRepo, tripRepo, alertRepo, cfg.Telemetry, log)
	analyticsService := service.NewAnalyticsService(tripRepo, routeRepo, telemetryRepo, analyticsRepo, cfg.Analytics, log)
	orchestratorService := service.NewOrchestratorService(
		plannerService, scorerService, monitorManager, analyticsService,
		tripRepo, routeRepo, vehicleRepo, driverRepo, alertRepo, analyticsRepo,
		cfg.Orchestrator, log,
	)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(orchestratorService, telemetryService, log)
	router := httphandler.NewRouter(handler, middleware.Auth(tokenParser), cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := monitorManager.ResumeActive(ctx); err != nil {
		log.Error().Err(err).Msg("failed to resume in-flight trip monitoring")
	}

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("starting fleet safety service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	monitorManager.Shutdown()
	telemetryService.Shutdown()
}
