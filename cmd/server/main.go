package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splitpay/server/internal/config"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/storage"
	"github.com/splitpay/server/pkg/splitpay"
)

func main() {
	// Missing .env is fine; production sets real environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log := logger.New(logger.Config{Level: "info", Format: "json"})
		log.Fatal().Err(err).Msg("server.config_failed")
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "splitpay",
		Environment: cfg.Logging.Environment,
	})

	store, err := storage.NewPostgresStore(cfg.Database.URL, cfg.Database.Pool)
	if err != nil {
		log.Fatal().Err(err).Msg("server.storage_failed")
	}
	defer store.Close()

	if err := storage.Migrate(store.DB()); err != nil {
		log.Fatal().Err(err).Msg("server.migrate_failed")
	}

	app, err := splitpay.NewApp(cfg,
		splitpay.WithStore(store),
		splitpay.WithRegistry(prometheus.DefaultRegisterer),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("server.bootstrap_failed")
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.RunOrderReconciler(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
		Handler:      app.Handler(),
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("server.started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server.listen_failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("server.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server.shutdown_failed")
	}
}
