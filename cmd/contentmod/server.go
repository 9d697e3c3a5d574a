package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/contentmod/contentmod/automod"
	"github.com/contentmod/contentmod/automod/docstore"
	"github.com/contentmod/contentmod/automod/provider"
	"github.com/contentmod/contentmod/backfill"
	"github.com/contentmod/contentmod/events"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"gorm.io/plugin/opentelemetry/tracing"
)

// document store which upstream producers (and the records endpoint) can write to
type recordStore interface {
	docstore.Store
	Put(ctx context.Context, path string, data map[string]any) error
}

type Server struct {
	config    *automod.Config
	store     recordStore
	moderator *automod.Moderator
	backfill  *backfill.Scheduler
	publisher events.Publisher
	rdb       *redis.Client
	echo      *echo.Echo
	httpd     *http.Server
	logger    *slog.Logger
}

type ServerConfig struct {
	Logger            *slog.Logger
	DatabaseURL       string
	MaxDBConnections  int
	DBTracing         bool
	RedisURL          string
	KafkaBrokers      []string
	KafkaTopic        string
	WebhookURL        string
	BackfillRateLimit float64
	Bind              string
}

func NewServer(ctx context.Context, config *automod.Config, sc ServerConfig) (*Server, error) {
	logger := sc.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	prov, err := provider.New(config)
	if err != nil {
		return nil, err
	}

	var store recordStore
	if sc.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory document store")
		store = docstore.NewMemStore()
	} else {
		db, err := docstore.SetupDatabase(sc.DatabaseURL, sc.MaxDBConnections, logger)
		if err != nil {
			return nil, err
		}
		if sc.DBTracing {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		gs, err := docstore.NewGormStore(db)
		if err != nil {
			return nil, err
		}
		store = gs
	}

	var rdb *redis.Client
	var queue backfill.TaskQueue
	var runtime backfill.Runtime
	if sc.RedisURL != "" {
		rdb, err = backfill.NewRedisClient(ctx, sc.RedisURL)
		if err != nil {
			return nil, err
		}
		queue = backfill.NewRedisQueue(rdb)
		runtime = &backfill.RedisRuntime{Client: rdb}
	} else {
		logger.Info("redis not configured, backfill queue is in-memory")
		queue = backfill.NewMemQueue()
		runtime = backfill.NewMemRuntime()
	}
	runtime = &backfill.LogRuntime{Inner: runtime, Logger: logger.With("system", "backfill")}

	var publisher events.Publisher
	var notifier automod.Notifier
	if config.EnableEvents {
		publisher = configPublisher(sc, logger)
		notifier = events.NewEmitter(publisher, logger)
	}

	bfOpts := backfill.DefaultBackfillOptions()
	if sc.BackfillRateLimit > 0 {
		bfOpts.ProviderRequestsPerSecond = sc.BackfillRateLimit
	}

	srv := &Server{
		config:    config,
		store:     store,
		moderator: automod.NewModerator(config, prov, store, notifier, logger),
		backfill:  backfill.NewScheduler(config, store, prov, queue, runtime, logger, bfOpts),
		publisher: publisher,
		rdb:       rdb,
		logger:    logger,
	}
	srv.echo = srv.newEcho()
	srv.httpd = &http.Server{
		Handler:        srv.echo,
		Addr:           sc.Bind,
		WriteTimeout:   1 * time.Minute,
		ReadTimeout:    1 * time.Minute,
		MaxHeaderBytes: 1 * (1024 * 1024),
	}
	return srv, nil
}

func configPublisher(sc ServerConfig, logger *slog.Logger) events.Publisher {
	var pubs events.MultiPublisher
	if len(sc.KafkaBrokers) > 0 {
		logger.Info("publishing moderation events to kafka", "topic", sc.KafkaTopic)
		pubs = append(pubs, events.NewKafkaPublisher(sc.KafkaBrokers, sc.KafkaTopic))
	}
	if sc.WebhookURL != "" {
		logger.Info("publishing moderation events to webhook")
		pubs = append(pubs, events.NewWebhookPublisher(sc.WebhookURL))
	}
	if len(pubs) == 0 {
		logger.Warn("events enabled but no kafka brokers or webhook configured; events are kept in memory only")
		return events.NewMemPublisher()
	}
	if len(pubs) == 1 {
		return pubs[0]
	}
	return pubs
}

// request metrics collectors are registered globally, so the middleware is only built once per process
var httpMetricsMiddleware = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("contentmod")
})

func (srv *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(otelecho.Middleware("contentmod"))
	e.Use(httpMetricsMiddleware())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4M"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)
	e.POST("/v1/trigger", srv.HandleTrigger)
	e.POST("/v1/records", srv.HandlePutRecord)
	e.POST("/v1/backfill", srv.HandleStartBackfill)
	e.GET("/v1/backfill", srv.HandleBackfillStatus)
	return e
}

// Run serves HTTP and processes backfill tasks until an OS exit signal is received.
func (srv *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := srv.backfill.Run(ctx); err != nil {
			srv.logger.Error("backfill processor failed", "err", err)
		}
	}()

	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	// Wait for a signal to exit.
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exitSignals
	srv.logger.Info("received OS exit signal", "signal", sig)
	cancel()

	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
	}
	srv.logger.Info("graceful shutdown complete")
	return nil
}

// Processes queued backfill tasks in-process until the scan reaches a terminal state.
func (srv *Server) RunBackfillToCompletion(ctx context.Context) (*backfill.Status, error) {
	for {
		task, err := srv.backfill.Queue.Dequeue(ctx)
		if errors.Is(err, backfill.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := srv.backfill.HandleTask(ctx, task); err != nil {
			return nil, err
		}
	}
	st, err := srv.backfill.Runtime.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("backfill finished without reporting a status")
	}
	return st, nil
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if srv.publisher != nil {
		if err := srv.publisher.Close(); err != nil {
			srv.logger.Error("failed to close event publisher", "err", err)
		}
	}
	return srv.httpd.Shutdown(ctx)
}
