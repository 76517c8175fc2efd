package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fueldelivery/internal/blob"
	"fueldelivery/internal/config"
	"fueldelivery/internal/database"
	"fueldelivery/internal/handler"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/realtime"
	"fueldelivery/internal/service"
	"fueldelivery/internal/worker"
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.New("fuelstation", "info").Error("failed to load config", logger.Error(err))
		os.Exit(1)
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := database.Migrate(cfg.DatabaseURI); err != nil {
		log.Error("failed to migrate DB schema", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Error("failed to connect to DB", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	avatars, err := blob.NewAvatarStore(cfg.AvatarDir, cfg.AvatarSecret, cfg.PublicURL)
	if err != nil {
		log.Error("failed to init avatar store", logger.Error(err))
		os.Exit(1)
	}

	// Services
	authSvc := service.NewAuthService(db)
	orderSvc := service.NewOrderService(db)
	profileSvc := service.NewProfileService(db)
	feed := service.NewOrderFeed(db, log)
	hub := realtime.NewHub(log)

	// Background
	completionWorker := worker.NewCompletionWorker(orderSvc, log, cfg.CompletionInterval)
	go completionWorker.Start(ctx)
	go feed.Run(ctx, hub.Publish)

	router := handler.NewRouter(handler.Deps{
		Config:   cfg,
		Log:      log,
		Users:    authSvc,
		Orders:   orderSvc,
		Profiles: profileSvc,
		Avatars:  avatars,
		Hub:      hub,
		DB:       db,
	})

	// No WriteTimeout: websocket streams are long lived.
	srv := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Info("starting server", logger.String("addr", cfg.RunAddress))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", logger.Error(err))
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	log.Info("shutting down...")

	cancel() // stop worker and feed
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		log.Error("server shutdown failed", logger.Error(err))
	}

	log.Info("server stopped")
}
