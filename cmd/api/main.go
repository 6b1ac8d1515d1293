package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/imrishuroy/go-courier-orders/internal/aws"
	"github.com/imrishuroy/go-courier-orders/internal/config"
	"github.com/imrishuroy/go-courier-orders/internal/handlers"
	"github.com/imrishuroy/go-courier-orders/internal/idempotency"
	"github.com/imrishuroy/go-courier-orders/internal/metrics"
	"github.com/imrishuroy/go-courier-orders/internal/orders"
	"github.com/imrishuroy/go-courier-orders/internal/packets"
	"github.com/imrishuroy/go-courier-orders/internal/persist"
)

func setupRouter(cfg handlers.HandlerConfig, runLocal bool) *gin.Engine {
	if !runLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	handlers.RegisterHealthRoutes(r, cfg)
	handlers.RegisterOrdersRoutes(r, cfg)
	handlers.RegisterAdminRoutes(r, cfg)

	return r
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codec, err := orders.CodecByName(cfg.Codec)
	if err != nil {
		logger.Error("invalid codec", "error", err)
		os.Exit(1)
	}
	files := persist.NewFileStore(cfg.SnapshotPath, codec, logger)
	store, report, loadErr := files.Load()
	logger.Info("orders loaded", "path", files.Path(), "loaded", report.Loaded, "skipped", report.Skipped)

	var clients *aws.AWSClients
	if cfg.AWSEnabled() {
		clients, err = aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err != nil {
			logger.Error("failed to init aws clients", "error", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		wg        sync.WaitGroup
		notifiers orders.Notifiers
		mgr       *orders.Manager
	)
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	m := metrics.New(reg, func() orders.Statistics { return mgr.GetStatistics() })
	notifiers = append(notifiers, m)

	if clients != nil && cfg.QueueURL != "" {
		events := aws.NewEventPublisher(aws.NewPublisher(clients.SQS, cfg.QueueURL), 1024, logger)
		notifiers = append(notifiers, events)
		run(func() { events.Run(ctx) })
	}

	opts := []orders.Option{
		orders.WithMaxActivePerOwner(cfg.MaxActivePerPlayer),
		orders.WithExpiry(cfg.OrderExpiry, cfg.OrderRetention),
		orders.WithNotifier(notifiers),
		orders.WithLogger(logger),
	}
	couriers, _ := cfg.Couriers() // validated by config.Load
	if len(couriers) > 0 {
		opts = append(opts, orders.WithProfessions(orders.NewStaticProfessions(couriers...)))
	}
	mgr = orders.NewManager(store, opts...)

	idempStore := idempotency.NewStore(cfg.IdempotencyTTL)
	mgr.Reaper().Attach(idempStore)

	var mirror persist.Mirror
	if clients != nil && cfg.BackupTable != "" {
		mirror = aws.NewTableMirror(clients.DynamoDB, cfg.BackupTable, logger)
	}
	flusher := persist.NewFlusher(files, store, mirror, logger)
	if loadErr != nil {
		flusher.MarkDegraded(loadErr)
	}

	if clients != nil && cfg.CloudWatchNamespace != "" {
		reporter := aws.NewStatsReporter(clients.CloudWatch, cfg.CloudWatchNamespace, mgr.GetStatistics, logger)
		run(func() { reporter.Run(ctx, cfg.StatsInterval) })
	}
	run(func() { mgr.Reaper().Run(ctx, cfg.SweepInterval) })
	run(func() { flusher.Run(ctx, cfg.FlushInterval) })

	hcfg := handlers.HandlerConfig{
		Manager:   mgr,
		Processor: packets.NewProcessor(mgr, idempStore, m, logger),
		Files:     files,
		Flusher:   flusher,
		Metrics:   metrics.Handler(reg),
		Logger:    logger,
	}
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      setupRouter(hcfg, cfg.RunLocal),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	if err := srv.Shutdown(ctxShut); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// background loops observe ctx; the flusher writes a final snapshot
	wg.Wait()
	logger.Info("server stopped")
}
