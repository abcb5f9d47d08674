package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/checkout"
	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/httpx"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/pricing"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/ariefcatur/go-shop-orders/internal/telemetry"
	"github.com/ariefcatur/go-shop-orders/internal/txn"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// stores groups the persistence choices for one STORAGE mode.
type stores struct {
	products catalog.Repository
	ledger   inventory.Ledger
	carts    cart.Store
	orders   orders.Repository
	scope    txn.Scope
	close    func()

	// inProcess stores are invisible to cmd/worker, so the api sweeps them.
	inProcess bool
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.ServiceName)

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var (
		pub   kafkax.Publisher = kafkax.Discard{}
		cache orders.Cache
		idem  checkout.IdempotencyStore = checkout.NewMemoryIdempotency()
	)
	if len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start()
		defer prod.Close()
		pub = prod
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			return err
		}
		cache = &redisx.OrderCache{RDB: rdb}
		idem = &redisx.IdempotencyStore{RDB: rdb}
	}

	carts := cart.NewAggregator(st.carts, st.products)
	resolver := pricing.NewResolver(st.products)
	orderSvc := orders.NewService(orders.ServiceDeps{
		Repo:        st.orders,
		Scope:       st.scope,
		Stock:       st.ledger,
		Cache:       cache,
		Publisher:   pub,
		ServiceName: cfg.ServiceName,
		Logger:      log,
	})
	orch := checkout.New(checkout.Deps{
		Carts:   carts,
		Pricer:  resolver,
		Ledger:  st.ledger,
		Orders:  orderSvc,
		Scope:   st.scope,
		Idem:    idem,
		Timeout: cfg.CheckoutTimeout,
		Logger:  log,
	})

	router := httpx.NewRouter(httpx.Handlers{
		Auth:    auth.HeaderAuthenticator{},
		Catalog: &httpx.CatalogHandler{Products: st.products},
		Cart:    &httpx.CartHandler{Carts: carts, Pricing: resolver},
		Orders:  &httpx.OrdersHandler{Checkout: orch, Orders: orderSvc},
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if st.inProcess {
		sweeper := inventory.NewSweeper(st.ledger, cfg.ReservationTTL, cfg.SweepInterval, log)
		g.Go(func() error { return sweeper.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	if cfg.Storage == "memory" {
		log.Warn("using in-memory storage; data is lost on restart")
		products := catalog.NewMemoryRepository()
		return &stores{
			products: products,
			ledger:   inventory.NewMemoryLedger(products),
			carts:    cart.NewMemoryStore(),
			orders:   orders.NewMemoryRepository(),
			scope:    txn.Direct{},
			close:    func() {},

			inProcess: true,
		}, nil
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		products: &catalog.PGRepository{DB: db},
		ledger:   &inventory.PGLedger{DB: db},
		carts:    &cart.PGStore{DB: db},
		orders:   &orders.PGRepository{DB: db},
		scope:    postgres.NewTxScope(db),
		close:    db.Close,
	}, nil
}
