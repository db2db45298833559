package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	"github.com/ariefcatur/go-order-fulfillment/internal/httpx"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/logx"
	"github.com/ariefcatur/go-order-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-order-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-order-fulfillment/internal/notify"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/rabbitmq"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"github.com/ariefcatur/go-order-fulfillment/internal/unban"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type store interface {
	orders.Store
	inventory.Store
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	reg := metrics.NewRegistry()
	var st store
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store; state is lost on restart", zap.String("seed", cfg.SeedFile))
		ms := memstore.New()
		if err := ms.LoadFixtureFile(cfg.SeedFile, time.Now().UTC()); err != nil {
			logger.Fatal("seed memory store", zap.Error(err))
		}
		// no separate unban process can reach this store
		sweeper := &unban.Sweeper{Store: ms, Log: logger.Named("unban"), Interval: cfg.UnbanInterval, Metrics: reg}
		go func() { _ = sweeper.Run(ctx) }()
		st = ms
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		st = &postgres.Store{DB: db, Log: logger}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable; idempotency and status cache fall back to the store", zap.Error(err))
	}

	// Notification transport
	var sink notify.Sink
	switch cfg.NotifyTransport {
	case "kafka":
		p := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicNotifications, cfg.ServiceName)
		defer p.Close()
		sink = p
	case "rabbitmq":
		p, err := rabbitmq.Dial(cfg.RabbitMQURL, orders.ExchangeNotifications, cfg.ServiceName)
		if err != nil {
			logger.Fatal("rabbitmq", zap.Error(err))
		}
		defer p.Close()
		sink = p
	default:
		sink = notify.LogSink{Log: logger.Named("notify")}
	}

	dispatcher := notify.NewDispatcher(sink, notify.Config{
		QueueSize:  cfg.NotifyQueueSize,
		Workers:    cfg.NotifyWorkers,
		MaxRetries: uint64(max(cfg.NotifyRetries, 0)),
	}, logger.Named("notify"), reg)
	dispatcher.Start(ctx)

	ledger := inventory.NewLedger()
	svc := orders.NewService(st,
		orders.WithLedger(ledger),
		orders.WithBalancer(staff.NewBalancer(nil)),
		orders.WithNotifier(dispatcher),
		orders.WithMetrics(reg),
		orders.WithLogger(logger.Named("orders")),
		orders.WithHeartbeatTimeout(cfg.StaffHeartbeat),
	)
	stock := &inventory.Service{Store: st, Ledger: ledger, Logger: logger.Named("inventory")}

	router := httpx.NewRouter(logger.Named("http"), reg.Handler())
	(&httpx.OrdersHandler{Orders: svc, Redis: rdb, Log: logger}).Register(router)
	(&httpx.InventoryHandler{Stock: stock, Log: logger}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend), zap.String("notify", cfg.NotifyTransport))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	dispatcher.Close() // drain queued notifications
	cancel()
}
