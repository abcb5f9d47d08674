package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/ariefcatur/go-shop-orders/internal/telemetry"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.ServiceName+"-worker")

	if err := run(cfg, log); err != nil {
		log.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	sweeper := inventory.NewSweeper(&inventory.PGLedger{DB: db}, cfg.ReservationTTL, cfg.SweepInterval, log)
	g.Go(func() error { return sweeper.Run(gctx) })

	if len(cfg.KafkaBrokers) == 0 {
		log.Warn("KAFKA_BROKERS empty; low-stock monitor disabled")
	} else {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start()
		defer prod.Close()

		monitor := &inventory.LowStockMonitor{
			Stock:       &catalog.PGRepository{DB: db},
			Publisher:   prod,
			Threshold:   cfg.LowStockThreshold,
			ServiceName: cfg.ServiceName + "-worker",
			Log:         log.With("component", "low-stock-monitor"),
		}
		if cfg.RedisAddr != "" {
			rdb := redisx.New(cfg.RedisAddr)
			defer rdb.Close()
			monitor.Dedup = &redisx.Dedup{RDB: rdb}
		}

		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.TopicOrderPlaced, cfg.WorkerConcurrency, log)
		g.Go(func() error {
			log.Info("consumer started", "group", cfg.WorkerGroup, "topic", orders.TopicOrderPlaced, "workers", cfg.WorkerConcurrency)
			return cons.Start(gctx, monitor.HandleOrderPlaced)
		})
	}

	return g.Wait()
}
