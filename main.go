package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/api/config"
	"storefront/api/database"
	"storefront/api/handlers"
	"storefront/api/ingest"
	"storefront/api/logging"
	"storefront/api/store"
	"storefront/api/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, logger); err != nil {
		logging.For(logger, logging.ChannelStartup).Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	startupLog := logging.For(logger, logging.ChannelStartup)
	shutdownLog := logging.For(logger, logging.ChannelShutdown)
	dbLog := logging.For(logger, logging.ChannelDatabase)
	ingestLog := logging.For(logger, logging.ChannelIngest)

	if cfg.Server.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL (operator accounts) ---
	pg, err := database.NewPostgresDB(cfg.Postgres.URL, dbLog)
	if err != nil {
		return fmt.Errorf("initialize PostgreSQL: %w", err)
	}
	defer pg.Close()
	if err := database.EnsurePostgresSchema(ctx, pg.DB); err != nil {
		return err
	}

	// --- Analytics entry store ---
	var (
		entries store.EntryStore
		stats   store.StatsStore
	)
	switch cfg.Ingest.StoreDriver {
	case config.StoreDriverClickHouse:
		ch, err := database.NewClickHouseDB(cfg.ClickHouse, dbLog)
		if err != nil {
			return fmt.Errorf("initialize ClickHouse: %w", err)
		}
		defer ch.Close()
		if err := database.EnsureClickHouseSchema(ctx, ch.DB, cfg.Ingest.RetentionDays); err != nil {
			return err
		}
		chStore := store.NewAnalyticsStore(ch.DB, cfg.Ingest.Retention(), dbLog)
		entries, stats = chStore, chStore
	default:
		startupLog.Warn("Using in-memory analytics store; entries are lost on restart")
		entries = store.NewMemoryAnalyticsStore(cfg.Ingest.Retention())
	}

	// --- Ingestion pipeline ---
	var (
		sink      ingest.Sink = ingest.NewStoreSink(entries)
		relay     *ingest.Relay
		relayDone chan struct{}
	)
	if cfg.Ingest.Mode == config.IngestModeKafka {
		kafkaSink := ingest.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaSink.Close()
		sink = kafkaSink

		reader := ingest.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
		relay = ingest.NewRelay(reader, entries, cfg.Ingest.WriteTimeout, ingestLog)
		relayDone = make(chan struct{})
		go func() {
			defer close(relayDone)
			if err := relay.Run(ctx); err != nil {
				ingestLog.Error("Kafka relay stopped", "error", err)
			}
		}()
		startupLog.Info("Kafka ingestion enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}
	ingestor := ingest.NewIngestor(sink, cfg.Ingest.WriteTimeout, ingest.DefaultMaxInFlight, ingestLog)

	// --- HTTP ---
	tokens, err := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	authLog := logging.For(logger, logging.ChannelAuth)
	router, err := setupRouter(routerDeps{
		analytics: handlers.NewAnalyticsHandlers(ingestor, entries, stats, logging.For(logger, logging.ChannelHTTP)),
		auth:      handlers.NewAuthHandlers(store.NewAccountStore(pg.DB, dbLog), tokens, cfg.Auth.AllowSignup, gin.Mode() == gin.ReleaseMode, authLog),
		tokens:    tokens,
		apiKey:    cfg.Auth.DefaultKey,
		origins:   cfg.Server.Origins(),
		proxies:   cfg.Server.TrustedProxies,
		logger:    logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		startupLog.Info("API server starting", "port", cfg.Server.Port, "store", cfg.Ingest.StoreDriver, "ingestMode", cfg.Ingest.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
	}
	shutdownLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		shutdownLog.Error("Server forced to shutdown", "error", err)
	}

	ingestor.Wait()
	if relay != nil {
		stop()
		<-relayDone
		if err := relay.Close(); err != nil {
			shutdownLog.Error("Error closing Kafka reader", "error", err)
		}
	}

	shutdownLog.Info("Server exiting")
	return nil
}
