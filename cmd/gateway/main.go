package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqcontracts "taskhub/contracts/mq"
	"taskhub/internal/config"
	"taskhub/internal/events"
	"taskhub/internal/httpserver"
	"taskhub/internal/mqhandler"
	"taskhub/internal/session"
	"taskhub/internal/workspace"
	"taskhub/pkg/circuitbreaker"
	pkgconfig "taskhub/pkg/config"
	"taskhub/pkg/db"
	"taskhub/pkg/logger"
	"taskhub/pkg/mq"
	redisclient "taskhub/pkg/redis"
	"taskhub/pkg/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var errMQDisconnected = errors.New("broker connection closed")

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	env := pkgconfig.GetConfigEnv()
	cfg, err := config.Load(env, pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatal("Failed to load config", zap.String("env", env), zap.Error(err))
	}

	instanceID := pkgconfig.GetEnv("INSTANCE_ID", uuid.NewString())
	log = log.With(zap.String("instance_id", instanceID))

	log.Info("Starting gateway...",
		zap.String("env", env),
		zap.String("api_base_url", cfg.API.BaseURL),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("mq_enabled", cfg.MQ.URL != ""),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var checks []httpserver.ReadinessCheck

	// Redis：会话存储或事件去重
	var rdb *redis.Client
	if cfg.Session.Backend == "redis" || (cfg.MQ.URL != "" && cfg.Redis.Addr != "") {
		rdb = redisclient.NewRedisClient(cfg.Redis)
		defer rdb.Close()
		if err := redisclient.Ping(ctx, rdb); err != nil {
			if cfg.Session.Backend == "redis" {
				log.Fatal("Failed to connect to redis", zap.Error(err))
			}
			log.Warn("Redis unavailable, task events will not be deduplicated", zap.Error(err))
			rdb = nil
		}
	}

	// Session store
	var store session.Store
	switch cfg.Session.Backend {
	case "redis":
		rs := session.NewRedisStore(rdb)
		store = rs
		checks = append(checks, httpserver.ReadinessCheck{Name: "redis", Check: rs.Ping})
	case "postgres":
		var pool *pgxpool.Pool
		pool, err = db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		defer pool.Close()
		ps := session.NewPostgresStore(pool)
		if err := ps.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to create sessions table", zap.Error(err))
		}
		store = ps
		checks = append(checks, httpserver.ReadinessCheck{Name: "db", Check: ps.Ping})
	default:
		store = session.NewMemoryStore()
	}

	var opts []workspace.Option
	if cfg.CircuitBreaker.Enabled {
		cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
			Timeout:          cfg.CircuitBreaker.Timeout,
		}.WithDefaults())
		opts = append(opts, workspace.WithBreaker(cb))
		log.Info("API circuit breaker enabled")
	}

	mqOpts := mq.Options{
		Exchange:       cfg.MQ.Exchange,
		ExchangeKind:   cfg.MQ.ExchangeKind,
		ConnectionName: "taskhub-gateway-" + instanceID,
	}

	// MQ Publisher：把本实例的任务事件转发给其它实例
	var publisher *mq.Publisher
	if cfg.MQ.URL != "" {
		publisher, err = mq.NewPublisher(cfg.MQ.URL, mqOpts)
		if err != nil {
			log.Fatal("Failed to init publisher", zap.Error(err))
		}
		defer publisher.Close()
		opts = append(opts, workspace.WithForwarder(events.NewForwarder(publisher, log)))
	}

	registry := workspace.NewRegistry(workspace.Config{
		APIBaseURL:         cfg.API.BaseURL,
		APITimeout:         cfg.API.Timeout,
		SessionTTL:         cfg.Session.TTL,
		MaxAttachmentBytes: cfg.Tasks.MaxAttachmentBytes,
	}, store, log, opts...)

	// MQ Consumer for task.*
	var consumer *mq.Consumer
	if cfg.MQ.URL != "" {
		log.Info("Initializing MQ consumer for task events...",
			zap.String("queue", cfg.MQ.Queue),
			zap.String("routing_key", mqcontracts.BindingTaskEvents),
		)
		consumer, err = mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Queue, mqcontracts.BindingTaskEvents, mqOpts, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.Error(err))
		}

		var dedup mqhandler.Deduper
		if rdb != nil {
			dedup = util.NewDeduper(rdb, cfg.DedupTTL, log)
		}
		consumer.SetHandler(mqhandler.NewTaskEventHandler(registry, dedup, instanceID, log).Handle)

		go func() {
			if err := consumer.StartConsuming(ctx); err != nil && ctx.Err() == nil {
				log.Error("Task event consumer stopped", zap.Error(err))
			}
		}()

		checks = append(checks, httpserver.ReadinessCheck{Name: "mq", Check: func(context.Context) error {
			if !consumer.IsConnected() || !publisher.IsConnected() {
				return errMQDisconnected
			}
			return nil
		}})
	}

	router := httpserver.NewRouter(httpserver.Deps{
		Registry: registry,
		Session:  cfg.Session,
		Checks:   checks,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gateway gracefully...")

	// 停止 MQ 消费者
	stop()
	if consumer != nil {
		consumer.Stop()
	}

	// 关闭 HTTP 服务器
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("Gateway shutdown complete", zap.Int("sessions_in_memory", registry.Len()))
}
