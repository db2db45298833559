package main

import (
	"context"
	"errors"
	"flag"
	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	"github.com/ariefcatur/go-order-fulfillment/internal/httpx"
	"github.com/ariefcatur/go-order-fulfillment/internal/logx"
	"github.com/ariefcatur/go-order-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/unban"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit (for cron)")
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.ServiceName+"-unban", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	reg := metrics.NewRegistry()
	sw := &unban.Sweeper{
		Store:    &postgres.Store{DB: db, Log: logger},
		Log:      logger,
		Interval: cfg.UnbanInterval,
		Metrics:  reg,
	}
	if *once {
		if _, err := sw.SweepOnce(ctx); err != nil {
			logger.Fatal("unban sweep", zap.Error(err))
		}
		return
	}

	// /healthz and /metrics for the long-running mode
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(logger.Named("http"), reg.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("unban metrics listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listen", zap.Error(err))
		}
	}()

	logger.Info("unban sweeper started", zap.Duration("interval", cfg.UnbanInterval))
	_ = sw.Run(ctx)
	logger.Info("unban sweeper stopped")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx2)
}
