package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/scoreboard-relay/internal/config"
	"github.com/DoyleJ11/scoreboard-relay/internal/feed"
	"github.com/DoyleJ11/scoreboard-relay/internal/gesture"
	"github.com/DoyleJ11/scoreboard-relay/internal/httpapi"
	"github.com/DoyleJ11/scoreboard-relay/internal/hub"
	"github.com/DoyleJ11/scoreboard-relay/internal/logging"
	"github.com/DoyleJ11/scoreboard-relay/internal/metrics"
	"github.com/DoyleJ11/scoreboard-relay/internal/room"
	"github.com/DoyleJ11/scoreboard-relay/internal/store"
	"github.com/DoyleJ11/scoreboard-relay/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	st := store.New(repo, store.WithLogger(log), store.WithLocation(loc))

	mm := metrics.NewManager(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.HTTPLatencyBuckets),
	)
	g, gctx := errgroup.WithContext(ctx)

	// Redis update feed
	var publisher room.Publisher
	if cfg.RedisURL != "" {
		rdb, err := feed.Open(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		relay := feed.NewRelay(
			feed.NewStreamPublisher(rdb, cfg.RedisStreamMaxLen),
			4096,
			feed.WithCounter(mm),
			feed.WithLogger(log),
		)
		publisher = relay
		g.Go(func() error { return relay.Run(gctx) })
		log.Info("update feed enabled", zap.String("stream_prefix", feed.StreamPrefix))
	}

	h := hub.NewHub(ctx, hub.Config{
		Room: room.Config{
			Store:   st,
			Feed:    publisher,
			Metrics: mm,
			Log:     log.Named("room"),
			IdleTTL: cfg.RoomIdleTTL,
		},
		Gauge: mm,
		Log:   log,
	})
	defer h.Shutdown()

	// NATS gesture feed
	if cfg.NATSURL != "" {
		gcfg := gesture.DefaultConfig()
		gcfg.URL = cfg.NATSURL
		gcfg.Subject = cfg.GestureSubject
		gcfg.MinConfidence = cfg.GestureMinConfidence
		nc, err := gesture.Connect(gcfg, log.Named("nats"))
		if err != nil {
			return err
		}
		defer nc.Close()
		consumer := gesture.NewConsumer(gesture.HubRouter{Hub: h}, gcfg, mm, log)
		g.Go(func() error { return consumer.Run(gctx, nc) })
	}

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:     h,
		Store:   st,
		Metrics: mm,
		WS: ws.Options{
			AutoCreate:   cfg.AutoCreateOnJoin,
			OutboxSize:   cfg.OutboxSize,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			PingInterval: cfg.PingInterval,
			Conns:        mm,
		},
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openRepository(cfg *config.Config) (store.Repository, func(), error) {
	if cfg.StoreDriver == "memory" {
		return store.NewMemoryRepository(), func() {}, nil
	}
	db, err := store.OpenGorm(cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return store.NewGormRepository(db), func() { _ = sqlDB.Close() }, nil
}
