// cmd/notifier/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	commonaws "booking-notifications/internal/common/aws"
	"booking-notifications/internal/common/config"
	"booking-notifications/internal/common/database"
	"booking-notifications/internal/common/logger"
	"booking-notifications/internal/common/observability"
	"booking-notifications/internal/deliverylog"
	"booking-notifications/internal/intake"
	"booking-notifications/internal/notification/dispatch"
	"booking-notifications/internal/notification/preference"
	"booking-notifications/internal/notification/template"
	"booking-notifications/internal/transport"
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
		bootstrap := logger.New("info", "console")
		bootstrap.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notifier...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New("notifier")
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rd *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rd, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rd.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rd.Close()
	zapLog.Info("Redis connected successfully")

	// --- Template registry ---
	store := template.NewStore()
	loader, err := template.NewLoader(cfg.Templates.Path, store, log)
	if err != nil {
		zapLog.Fatal("template loader init failed", zap.Error(err))
	}
	if err := loader.Reload(); err != nil {
		zapLog.Fatal("template load failed", zap.Error(err))
	}

	// SIGHUP reloads templates in place; a bad manifest set keeps the
	// current registry serving.
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			if err := loader.Reload(); err != nil {
				zapLog.Error("template reload failed, keeping previous set", zap.Error(err))
			}
		}
	}()

	// --- Preference resolver ---
	cacheTTL := time.Duration(cfg.Notifications.PreferenceCacheTTL) * time.Second
	resolver := preference.NewResolver(
		preference.NewPostgresStore(pg.DB),
		preference.NewRedisCache(rd.Client, cacheTTL),
		log,
	)

	// --- Transports ---
	senders := map[dispatch.Channel]dispatch.Sender{}
	if cfg.Notifications.Email.Enabled {
		sesClient, err := commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		senders[dispatch.ChannelEmail] = transport.NewEmailSender(sesClient, cfg.Notifications.Email.FromEmail)
	}
	if cfg.Notifications.SMS.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		senders[dispatch.ChannelSMS] = transport.NewSMSSender(snsClient, cfg.Notifications.SMS.SenderID)
	}

	// --- Delivery log ---
	sinks := []deliverylog.Sink{deliverylog.NewPostgresSink(pg.DB)}
	if cfg.Database.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		sinks = append(sinks, deliverylog.NewElasticsearchSink(es.Client, cfg.Database.Elasticsearch.Index))
		zapLog.Info("Elasticsearch connected successfully")
	}
	recorder := deliverylog.NewRecorder(log, sinks...)

	// --- Orchestrator and intake ---
	orchestrator := dispatch.NewOrchestrator(store, resolver, senders, recorder, log)
	consumer := intake.NewConsumer(rd.Client, intake.Options{
		Stream:    cfg.Intake.Stream,
		Group:     cfg.Intake.Group,
		Consumer:  cfg.Intake.Consumer,
		BatchSize: int64(cfg.Intake.BatchSize),
		Block:     time.Duration(cfg.Intake.BlockMs) * time.Millisecond,
	}, orchestrator, obs, log)

	consumerDone := make(chan error, 1)
	go func() { consumerDone <- consumer.Run(ctx) }()

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if store.Len() == 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "no templates loaded"})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.Metrics.ListenAddr))
		if err := http.ListenAndServe(cfg.Metrics.ListenAddr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining intake...")
	cancel()

	select {
	case err := <-consumerDone:
		if err != nil {
			zapLog.Error("Intake consumer stopped with error", zap.Error(err))
		}
	case <-time.After(30 * time.Second):
		zapLog.Warn("Intake consumer did not stop within shutdown timeout")
	}

	zapLog.Info("Notifier stopped gracefully")
}
