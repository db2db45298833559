package main

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/logx"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
)

const dedupService = "notifier"

type handler struct {
	store *postgres.Store
	rdb   *redis.Client
	log   *zap.Logger
}

// handle persists one notification event and logs the push. The store insert
// is idempotent on event id; Redis only saves the round trip for redeliveries.
func (h *handler) handle(ctx context.Context, m kafka.Message) error {
	ev, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		h.log.Error("poison message skipped", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	key := redisx.DedupKey(dedupService, ev.EventID)
	claimed, err := redisx.Claim(ctx, h.rdb, key, redisx.TTLDedup)
	if err != nil {
		h.log.Warn("dedup unavailable", zap.Error(err))
		claimed = true
	}
	if !claimed {
		return nil
	}

	n, err := kafkax.UnwrapPayload[orders.Notification](ev.Payload)
	if err != nil {
		h.log.Error("bad payload skipped", zap.String("event_id", ev.EventID), zap.Error(err))
		return nil
	}
	inserted, err := h.store.SaveNotification(ctx, n)
	if err != nil {
		_ = redisx.Release(ctx, h.rdb, key)
		return fmt.Errorf("save notification %s: %w", n.ID, err)
	}
	if inserted {
		h.log.Info("push",
			zap.String("user_id", n.UserID),
			zap.String("kind", string(n.Kind)),
			zap.String("title", n.Title),
			zap.String("order_id", n.OrderID))
	}
	return nil
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.ServiceName+"-notifier", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := &handler{store: &postgres.Store{DB: db, Log: logger}, rdb: rdb, log: logger}

	// Consumer
	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicNotifications, workers, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("notifier consumer started",
			zap.String("group", group), zap.String("topic", orders.TopicNotifications), zap.Int("workers", workers))
		if err := cons.Start(ctx, h.handle); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer...")
	cancel()
	<-done
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
