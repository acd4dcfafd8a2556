package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venuelink/rolodex/config"
	"github.com/venuelink/rolodex/internal/repositories/archive"
	"github.com/venuelink/rolodex/internal/repositories/duplicategroup"
	liaisonrepo "github.com/venuelink/rolodex/internal/repositories/liaison"
	"github.com/venuelink/rolodex/internal/repositories/person"
	"github.com/venuelink/rolodex/internal/repositories/structure"
	"github.com/venuelink/rolodex/pkg/detection"
	"github.com/venuelink/rolodex/pkg/events"
	"github.com/venuelink/rolodex/pkg/importer"
	"github.com/venuelink/rolodex/pkg/kafka"
	"github.com/venuelink/rolodex/pkg/liaison"
	"github.com/venuelink/rolodex/pkg/locking"
	"github.com/venuelink/rolodex/pkg/logging"
	"github.com/venuelink/rolodex/pkg/merging"
	"github.com/venuelink/rolodex/pkg/redis"
	"github.com/venuelink/rolodex/pkg/review"
	"github.com/venuelink/rolodex/pkg/routes/duplicates"
	"github.com/venuelink/rolodex/pkg/routes/health"
	"github.com/venuelink/rolodex/pkg/routes/imports"
	"github.com/venuelink/rolodex/pkg/routes/liaisons"
	"github.com/venuelink/rolodex/pkg/server"
	"github.com/venuelink/rolodex/pkg/store/mongostore"
	"github.com/venuelink/rolodex/pkg/tracing"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(cfg.PrettyLogs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := tracing.Init(ctx, cfg.AppName, tracing.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Insecure: cfg.OTLPInsecure,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutCtx); err != nil {
				logger.WithError(err).Warn("Tracing shutdown failed")
			}
		}()
	}

	entityStore, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase,
		mongostore.WithMaxBatchOps(cfg.MongoMaxBatchOps))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to the document database")
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = entityStore.Close(closeCtx)
	}()

	var locker locking.Locker = locking.NewLocal()
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis")
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = redis.NewLocker(redisClient, cfg.AppName)
	}

	var emitter *events.Emitter
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaContactTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	structures := structure.NewRepository(entityStore, logger)
	persons := person.NewRepository(entityStore, logger)
	liaisonRepo := liaisonrepo.NewRepository(entityStore, logger)
	groups := duplicategroup.NewRepository(entityStore, logger)
	archives := archive.NewRepository(entityStore, logger)

	detector := detection.NewDetector(structures, persons, groups, emitter, locker, logger, detection.Config{
		Threshold: cfg.DetectionThreshold,
		Workers:   cfg.DetectionWorkers,
	})
	liaisonManager := liaison.NewManager(liaisonRepo, persons, structures, emitter, logger)
	mergeEngine := merging.NewEngine(entityStore, liaisonRepo, emitter, locker, logger)
	reviewService := review.NewService(groups, mergeEngine, logger)
	importService := importer.NewService(structures, persons, liaisonManager, logger)

	srv := server.New(server.Config{
		AppName:             cfg.AppName,
		Port:                cfg.Port,
		ReadTimeoutSeconds:  cfg.HttpServerReadTimeoutSeconds,
		WriteTimeoutSeconds: cfg.HttpServerWriteTimeoutSeconds,
		IdleTimeoutSeconds:  cfg.HttpServerIdleTimeoutSeconds,
		AllowOrigins:        cfg.AllowOrigins,
		AllowMethods:        cfg.AllowMethods,
	}, logger)

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	checker := health.NewChecker(entityStore, redisPinger, version)
	checker.RegisterRoutes(srv.Echo())

	api := srv.Group("/api/v1")
	duplicates.NewHandler(detector, reviewService, archives).Register(api.Group("/duplicates"))
	liaisons.NewHandler(liaisonManager).Register(api.Group("/liaisons"))
	imports.NewHandler(importService).Register(api.Group("/import"))

	checker.SetReady(true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		checker.SetReady(false)

		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.WithError(err).Warn("HTTP server shutdown failed")
		}
	}
}
