package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/auth"
	betcache "github.com/radieske/bet-escrow-poc/internal/escrow-service/cache"
	ehttp "github.com/radieske/bet-escrow-poc/internal/escrow-service/http"
	emetrics "github.com/radieske/bet-escrow-poc/internal/escrow-service/metrics"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/producer"
	erepo "github.com/radieske/bet-escrow-poc/internal/escrow-service/repo"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/ws"
	"github.com/radieske/bet-escrow-poc/internal/escrow/memstore"
	"github.com/radieske/bet-escrow-poc/internal/shared/cache"
	"github.com/radieske/bet-escrow-poc/internal/shared/config"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
	"github.com/radieske/bet-escrow-poc/internal/shared/kafka"
	"github.com/radieske/bet-escrow-poc/internal/shared/logger"
	"github.com/radieske/bet-escrow-poc/internal/shared/metrics"
	wrepo "github.com/radieske/bet-escrow-poc/internal/wallet-service/repo"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "escrow-service"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()
	log.Info("starting service",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreBackend),
		zap.Bool("authDisabled", cfg.AuthDisabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]metrics.HealthFunc{}

	// Store: Postgres (bets + carteira na mesma transação) ou memória para desenvolvimento
	var store escrow.Store
	switch cfg.StoreBackend {
	case "memory":
		wallet := memstore.NewWallet()
		if err := seedFunds(wallet, cfg.DevFunds); err != nil {
			log.Fatal("invalid DEV_FUNDS", zap.Error(err))
		}
		store = memstore.New(wallet)
	case "postgres":
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		defer pg.Close()
		store = erepo.NewPostgres(pg, wrepo.NewPostgres(pg))
		checks["postgres"] = pingPostgres(pg)
	default:
		log.Fatal("unknown STORE_BACKEND", zap.String("store", cfg.StoreBackend))
	}

	m := emetrics.New(prometheus.DefaultRegisterer)
	svc := escrow.NewService(store, escrow.NewMonotonicClock(escrow.SystemClock{}), escrow.Config{
		StakeCapacity: cfg.StakeCapacity,
		Hooks:         m.Hooks(),
	})

	// Kafka: eventos do ciclo de vida, chave = betId
	writer := kafka.NewWriter(cfg.Brokers(), cfg.TopicBetEvents)
	defer writer.Close()

	hub := ws.NewHub(log, func(*http.Request) bool { return true })
	verifier := auth.NewVerifier(cfg.AuthMaxSkew, cfg.AuthDisabled)
	api := &ehttp.API{
		Log:       log,
		Service:   svc,
		Publisher: producer.NewKafkaPublisher(writer, cfg.TopicBetEvents),
		Auth:      verifier.Middleware,
		WS:        hub.HandleWS,
	}

	// Redis é opcional no backend memory: sem ele não há cache nem feed WS
	var redisClient *redis.Client
	if rc, err := cache.ConnectRedis(cfg.RedisAddr); err != nil {
		if cfg.StoreBackend != "memory" {
			log.Fatal("redis connect", zap.Error(err))
		}
		log.Warn("redis unavailable, running without cache and ws feed", zap.Error(err))
	} else {
		redisClient = rc
		defer redisClient.Close()
		api.Cache = betcache.New(redisClient, cfg.BetCacheTTL)
		// assinaturas aceitas ficam visíveis para todas as réplicas
		verifier.Replay = auth.RedisReplay{R: redisClient}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, metrics.Checks(checks))

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api srv: %w", err)
		}
		return nil
	})
	if redisClient != nil {
		g.Go(func() error {
			log.Info("ws redis subscriber started", zap.String("channel", cfg.RedisPubSubChannel))
			return ws.RunRedisSubscriber(gctx, log, redisClient, cfg.RedisPubSubChannel, hub)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return apiSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("escrow-service stopped with error", zap.Error(err))
	}
	log.Info("escrow-service stopped")
}

func pingPostgres(pg *sql.DB) metrics.HealthFunc {
	return func(ctx context.Context) error { return pg.PingContext(ctx) }
}

// seedFunds credita saldos iniciais no formato "conta:denom:valor,..."
func seedFunds(w *memstore.Wallet, funds string) error {
	for _, item := range strings.Split(funds, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return fmt.Errorf("%q: want account:denomination:amount", item)
		}
		amount, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return fmt.Errorf("%q: %w", item, err)
		}
		if err := w.Deposit(auth.Canonical(parts[0]), parts[1], amount); err != nil {
			return fmt.Errorf("%q: %w", item, err)
		}
	}
	return nil
}
