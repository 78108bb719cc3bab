/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shift engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the logger
  3. Initialize SQLite store
  4. Build the notification sink (log, plus Kafka when brokers are set)
     behind a queue, so requests never wait for delivery
  5. Create API handler and apply the seed file
  6. Start the consistency scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port
  -db      SQLite database path; ":memory:" for an in-memory database
  -seed    JSON seed with properties and travel estimates

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Drain the notification queue
  5. Flush the Kafka writer and close the database

EXAMPLES:
  ./server -db=":memory:" -seed=./seed.json
  KAFKA_BROKERS=localhost:9092 LOG_FORMAT=json ./server

SEE ALSO:
  - config/config.go: Environment keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/api"
	"github.com/warp/shift-engine/config"
	"github.com/warp/shift-engine/notify"
	"github.com/warp/shift-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	seedPath := flag.String("seed", cfg.SeedPath, "JSON seed file (properties, estimates)")
	flag.Parse()

	log := cfg.NewLogger()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	// Notification sink
	var sink notify.Sink = notify.LogSink{Log: log}
	var kafkaSink *notify.KafkaSink
	if cfg.KafkaEnabled() {
		kafkaSink = notify.NewKafkaSink(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		sink = notify.Fanout{sink, kafkaSink}
		log.WithFields(logrus.Fields{"brokers": cfg.KafkaBrokers, "topic": cfg.KafkaTopic}).Info("Publishing events to Kafka")
	}
	queue := notify.NewQueue(sink, log, cfg.NotifyQueueSize, cfg.NotifyTimeout)

	// Initialize handler
	handler := api.NewHandler(store, api.Config{
		Rates:               cfg.Rates,
		EstimatorTimeout:    cfg.EstimatorTimeout,
		EstimatorRatePerSec: cfg.EstimatorRatePerSec,
		DirectoryCacheTTL:   cfg.DirectoryCacheTTL,
		Sink:                queue,
		Log:                 log,
	})

	if *seedPath != "" {
		if err := loadSeed(handler, *seedPath); err != nil {
			log.WithError(err).Fatal("Failed to load seed")
		}
	}

	scheduler := api.NewConsistencyScheduler(handler, log)
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	queue.Close()
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Kafka writer")
		}
	}

	log.Info("Server stopped")
}

func loadSeed(h *api.Handler, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return h.LoadSeed(ctx, f)
}
