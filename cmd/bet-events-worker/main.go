package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/bet-events/consumer"
	"github.com/radieske/bet-escrow-poc/internal/bet-events/pubsub"
	"github.com/radieske/bet-escrow-poc/internal/bet-events/repository"
	"github.com/radieske/bet-escrow-poc/internal/shared/cache"
	"github.com/radieske/bet-escrow-poc/internal/shared/config"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
	"github.com/radieske/bet-escrow-poc/internal/shared/kafka"
	"github.com/radieske/bet-escrow-poc/internal/shared/logger"
	"github.com/radieske/bet-escrow-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bet-events-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Consumer group bet-events; commit manual feito pelo processor
	reader := kafka.NewReader(cfg.Brokers(), cfg.TopicBetEvents, "bet-events")
	defer reader.Close()

	dlq := kafka.NewWriter(cfg.Brokers(), cfg.TopicBetEventsDLQ)
	defer dlq.Close()

	// Métricas Prometheus por estágio do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_events_messages_consumed_total", Help: "mensagens consumidas"})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_events_db_writes_total", Help: "eventos gravados na auditoria"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_events_duplicates_total", Help: "redeliveries já gravadas"})
	broadcasts := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_events_broadcasts_total", Help: "updates publicados no Redis"})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_events_dlq_total", Help: "mensagens enviadas à DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_events_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, persisted, duplicates, broadcasts, deadLettered, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Repo:        repository.NewPostgresRepo(pg),
		Broadcaster: pubsub.NewRedisBroadcaster(redisClient),
		Channel:     cfg.RedisPubSubChannel,
		DLQ:         dlq,
		Backoff:     300 * time.Millisecond,

		OnConsumed:  consumed.Inc,
		OnPersist:   persisted.Inc,
		OnDuplicate: duplicates.Inc,
		OnBroadcast: broadcasts.Inc,
		OnDLQ:       deadLettered.Inc,
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, metrics.Checks(map[string]metrics.HealthFunc{
		"postgres": pg.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("bet-events-worker started",
		zap.String("consume", cfg.TopicBetEvents),
		zap.String("dlq", cfg.TopicBetEventsDLQ),
		zap.String("broadcast", cfg.RedisPubSubChannel),
	)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("bet-events-worker stopped")
}
