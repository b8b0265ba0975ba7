package main

import (
	"context"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tongjisync/internal/app"
	"tongjisync/internal/config"
	"tongjisync/internal/db"
	"tongjisync/internal/http/handlers"
	appmw "tongjisync/internal/http/middleware"
	"tongjisync/internal/ingest"
	"tongjisync/internal/logger"
	"tongjisync/internal/metrics"
	"tongjisync/internal/sink/clickhouse"
	"tongjisync/internal/tongji"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		stdlog.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dims, err := config.LoadDimensions(cfg.DimensionsFile)
	if err != nil {
		log.Fatal("failed to load dimensions", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	engine, err := app.NewEngine(ctx, cfg, dims, m, log)
	if err != nil {
		log.Fatal("failed to build engine", zap.Error(err))
	}
	defer func() { _ = engine.Close() }()

	var sqlDB *gorm.DB
	if cfg.Sink != "clickhouse" || cfg.DatabaseURL != "" {
		sqlDB, err = db.Connect(cfg, log)
		if err != nil {
			log.Fatal("failed to connect database", zap.Error(err))
		}
	}

	opts := ingest.Options{
		Assembler:   engine.Assembler,
		Metrics:     m,
		Log:         log.Named("ingest"),
		PageSize:    cfg.PageSize,
		RepollLimit: cfg.RepollLimit,
	}

	switch cfg.Sink {
	case "clickhouse":
		client, err := clickhouse.NewClient(ctx, cfg, log)
		if err != nil {
			log.Fatal("failed to connect ClickHouse", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		sink := clickhouse.NewSink(client.Conn(), dims.CustomTrackingParams, m, log.Named("clickhouse"))
		if err := sink.InitSchema(ctx); err != nil {
			log.Fatal("failed to initialize ClickHouse schema", zap.Error(err))
		}
		opts.Sink = sink
	default:
		sink, err := db.NewSink(ctx, sqlDB, dims.CustomTrackingParams, m, log.Named("postgres"))
		if err != nil {
			log.Fatal("failed to prepare postgres sink", zap.Error(err))
		}
		opts.Sink = sink
	}

	var tokens tongji.TokenStore
	r := router.New()
	r.SaveMatchedRoutePath = true

	if sqlDB != nil {
		records := db.Records{DB: sqlDB}
		tokens = db.NewTokenStore(sqlDB, cfg.TongjiAPIKey)
		opts.Archive = records.Archive(cfg.RawRetentionDays)
		opts.ActiveVisitors = records.ActiveVisitors

		db.StartRetentionWorker(ctx, sqlDB, log.Named("retention"))
		if cfg.CorrectionInterval > 0 {
			db.StartCorrectionWorker(ctx, sqlDB, cfg.CorrectionInterval, cfg.Location(), log.Named("correction"))
		}

		r.GET("/v1/sessions/{id}", handlers.SessionDetail(records))
		r.GET("/v1/visitors/{id}", handlers.VisitorDetail(records))
	}

	opts.Provider = engine.NewTongjiClient(cfg, tokens, log)
	svc := ingest.NewService(opts)
	svc.StartScheduler(ctx, cfg.SiteIDs, cfg.SyncInterval)

	r.GET("/healthz", handlers.Healthz)
	r.GET("/metrics", handlers.ExpositionHandler(prometheus.DefaultGatherer))
	r.GET("/v1/metrics", handlers.SiteMetricsHandler(prometheus.DefaultGatherer))
	r.POST("/v1/sites/{site}/sync", appmw.BearerAuth(cfg.APIToken)(handlers.SyncHandler(svc, log.Named("sync"))))

	// Global middleware chain: request id, request logger, instrumentation, then router
	handler := appmw.RequestID(handlers.RequestLogger(log)(appmw.Instrument(m)(r.Handler)))

	server := &fasthttp.Server{Handler: handler, Name: "tongjisync"}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown()
	}()

	log.Info("tongjisync listening", zap.String("addr", cfg.ListenAddr), zap.String("sink", cfg.Sink))
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
