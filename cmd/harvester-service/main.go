package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geopulse/harvester/pkg/adhoc"
	"github.com/geopulse/harvester/pkg/catalog"
	"github.com/geopulse/harvester/pkg/common/config"
	"github.com/geopulse/harvester/pkg/common/database"
	"github.com/geopulse/harvester/pkg/common/kafka"
	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/common/middleware"
	"github.com/geopulse/harvester/pkg/contentapi"
	"github.com/geopulse/harvester/pkg/exclusion"
	"github.com/geopulse/harvester/pkg/ingest"
	"github.com/geopulse/harvester/pkg/observability/metrics"
	"github.com/geopulse/harvester/pkg/poller"
	"github.com/geopulse/harvester/pkg/quota"
	"github.com/geopulse/harvester/pkg/settings"
	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	if err := catalog.AutoMigrate(db); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate catalog tables")
	}

	store := settings.NewStore(db)
	if err := store.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate settings table")
	}

	ledger := quota.NewLedger(db)
	if err := ledger.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate quota table")
	}

	locationRepo := catalog.NewLocationRepository(db)
	postRepo := catalog.NewPostRepository(db)
	spotRepo := catalog.NewSpotRepository(db)
	jobRepo := catalog.NewJobRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SpotSeedPath != "" {
		seed, err := catalog.LoadSeed(cfg.SpotSeedPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load spot seed")
		}
		if err := catalog.ApplySeed(ctx, spotRepo, seed); err != nil {
			logger.Log.WithError(err).Fatal("failed to apply spot seed")
		}
	}

	redisClient := database.GetRedis()
	quotaSvc := quota.NewService(ledger, store, redisClient)

	apiClient := contentapi.NewClient(contentapi.Options{
		BaseURL:      cfg.APIBaseURL,
		ClientID:     cfg.APIClientID,
		ClientSecret: cfg.APIClientSecret,
		RedirectURL:  cfg.APIRedirectURL,
		Timeout:      cfg.RequestTimeout,
	}, store, ledger)

	var producer ingest.EventProducer
	if cfg.HarvestTopic != "" {
		kafkaProducer := kafka.NewProducer(cfg.HarvestTopic)
		defer kafkaProducer.Close()
		producer = kafkaProducer
	}

	ingestSvc := ingest.NewService(apiClient, locationRepo, postRepo, producer)
	flag := exclusion.NewFlag(store)
	adhocRunner := adhoc.NewRunner(apiClient, ingestSvc, locationRepo, spotRepo, jobRepo, flag, cfg.DiscoveryRadiusM)
	pollRunner := poller.NewRunner(locationRepo, ingestSvc, flag, store)

	redisOpt := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	taskClient := asynq.NewClient(redisOpt)
	defer taskClient.Close()

	taskServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			cfg.AdhocQueue: 2,
			"default":      1,
		},
	})
	taskMux := asynq.NewServeMux()
	taskMux.HandleFunc(adhoc.TypeSearch, adhocRunner.HandleSearchTask)
	taskMux.HandleFunc(quota.TypeAccounting, quotaSvc.HandleAccountingTask)

	go func() {
		if err := taskServer.Run(taskMux); err != nil {
			logger.Log.WithError(err).Fatal("task server stopped")
		}
	}()

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register("@every 10m", quota.NewAccountingTask()); err != nil {
		logger.Log.WithError(err).Fatal("failed to register accounting schedule")
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Log.WithError(err).Error("scheduler stopped")
		}
	}()

	go pollRunner.Run(ctx)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.BodyLimit(cfg.MaxRequestBody))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(20, 40))
	ingest.NewHandler(ingestSvc, locationRepo).Register(api)
	adhoc.NewHandler(jobRepo, postRepo, taskClient, cfg.AdhocQueue).Register(api)
	quota.NewHandler(quotaSvc).Register(api)
	api.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if _, err := apiClient.ExchangeToken(r.Context()); err != nil {
			logger.Log.WithError(err).Error("token exchange failed")
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Harvester Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Harvester Service...")
	cancel()
	scheduler.Shutdown()
	taskServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("failed to close redis")
	}

	logger.Log.Info("Harvester Service stopped")
}
