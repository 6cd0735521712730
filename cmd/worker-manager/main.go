// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hotspot-selection/internal/common/camunda"
	"hotspot-selection/internal/common/config"
	"hotspot-selection/internal/common/database"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/observability"
	"hotspot-selection/internal/pipeline/storage"

	// Selection Workers (3)
	ah "hotspot-selection/internal/workers/selection/analyze-hotspot"
	ahb "hotspot-selection/internal/workers/selection/analyze-hotspot-batch"
	sh "hotspot-selection/internal/workers/selection/score-hotspots"

	// Data Access Workers (1)
	qs "hotspot-selection/internal/workers/data-access/query-suitability"
	"hotspot-selection/internal/workers/data-access/query-suitability/queries"

	// Communication Workers (1)
	nbs "hotspot-selection/internal/workers/communication/notify-batch-summary"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New("hotspot-selection").
		WithTracing(observability.NewTracing("hotspot-selection", cfg.Observability.JaegerEndpoint, cfg.Observability.SampleRatio))
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client ---
	zeebe, err := camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		RetryConfig: &camunda.RetryConfig{
			MaxRetries: 10,
			BaseDelay:  2 * time.Second,
			MaxDelay:   30 * time.Second,
		},
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("postgres migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	if err := esClient.EnsureIndex(ctx, cfg.Database.Elasticsearch.ResultIndex, storage.ResultMapping); err != nil {
		zapLog.Fatal("result index setup failed", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	if cfg.Features.CacheBackend == "redis" {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Pipeline ---
	c, err := buildComponents(ctx, cfg, pg, esClient, redis, obs, log)
	if err != nil {
		zapLog.Fatal("pipeline setup failed", zap.Error(err))
	}
	if cfg.Profiles.Watch {
		c.profiles.Watch()
	}
	validators := loadValidators(cfg.Registry.Path, zapLog)

	// --- START: Register Workers ---
	client := zeebe.GetClient()
	var workers []worker.JobWorker
	start := func(taskType string, h camunda.HandlerFunc) {
		if jw := camunda.StartWorker(client, taskType, config.GetWorkerConfig(cfg, taskType), h, obs, zapLog); jw != nil {
			workers = append(workers, jw)
		}
	}

	// --- 1. Selection Workers (3) ---
	if config.IsWorkerEnabled(cfg, ahb.TaskType) {
		handler, err := ahb.NewHandler(ahb.HandlerOptions{
			AppConfig: cfg,
			Pipeline:  c.pipeline,
			Validator: validators.For(ahb.TaskType),
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create analyze-hotspot-batch handler", zap.Error(err))
		}
		start(ahb.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, ah.TaskType) {
		handler, err := ah.NewHandler(ah.HandlerOptions{
			AppConfig: cfg,
			Analyzer:  c.pipeline,
			Validator: validators.For(ah.TaskType),
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create analyze-hotspot handler", zap.Error(err))
		}
		start(ah.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, sh.TaskType) {
		handler, err := sh.NewHandler(sh.HandlerOptions{
			AppConfig: cfg,
			Scorer:    c.pipeline,
			Validator: validators.For(sh.TaskType),
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create score-hotspots handler", zap.Error(err))
		}
		start(sh.TaskType, handler.Handle)
	}

	// --- 2. Data Access Workers (1) ---
	if config.IsWorkerEnabled(cfg, qs.TaskType) {
		handler := qs.NewHandler(qs.LoadConfig(cfg), queries.Sources{Index: c.index, Store: c.store}, log)
		start(qs.TaskType, handler.Handle)
	}

	// --- 3. Communication Workers (1) ---
	if config.IsWorkerEnabled(cfg, nbs.TaskType) && (cfg.Notifications.Email.Enabled || cfg.Notifications.SNS.Enabled) {
		publisher, mailer, err := buildNotifiers(ctx, cfg)
		if err != nil {
			zapLog.Fatal("failed to create aws clients", zap.Error(err))
		}
		handler, err := nbs.NewHandler(nbs.HandlerOptions{
			AppConfig: cfg,
			Publisher: publisher,
			Mailer:    mailer,
			Validator: validators.For(nbs.TaskType),
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create notify-batch-summary handler", zap.Error(err))
		}
		start(nbs.TaskType, handler.Handle)
	}

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{
			"zeebe":         errString(zeebe.HealthCheck(checkCtx)),
			"postgres":      errString(pg.Ping(checkCtx)),
			"elasticsearch": errString(esClient.Ping(checkCtx)),
		}
		if redis != nil {
			checks["redis"] = errString(redis.Ping(checkCtx))
		}

		status, code := "ready", http.StatusOK
		for _, v := range checks {
			if v != "ok" {
				status, code = "not_ready", http.StatusServiceUnavailable
			}
		}
		snap := c.profiles.Snapshot()
		body := map[string]interface{}{
			"status":          status,
			"checks":          checks,
			"profileVersion":  snap.Version(),
			"profilesLoaded":  snap.LoadedAt().Format(time.RFC3339),
			"platformsActive": snap.Names(),
			"time":            time.Now().Format(time.RFC3339),
		}
		if redis != nil && checks["redis"] == "ok" {
			if n, err := redis.CountKeys(checkCtx, cfg.Features.CachePrefix, 100000); err == nil {
				body["featureCacheEntries"] = n
			}
		}
		writeStatus(w, code, body)
	})
	http.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.App.HTTPPort)}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, jw := range workers {
		jw.Close()
		jw.AwaitClose()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func errString(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
