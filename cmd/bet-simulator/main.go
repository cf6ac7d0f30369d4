package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/rand/v2"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/bet-simulator/client"
	"github.com/radieske/bet-escrow-poc/internal/bet-simulator/watcher"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/auth"
	"github.com/radieske/bet-escrow-poc/internal/shared/config"
	"github.com/radieske/bet-escrow-poc/internal/shared/logger"
	"github.com/radieske/bet-escrow-poc/internal/shared/metrics"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

const seedAmount = 1_000_000

var (
	// Catálogo fixo de perguntas usadas nas apostas simuladas
	questions = []string{
		"Flamengo vence o Palmeiras?",
		"Grêmio vence o Internacional?",
		"Corinthians marca mais de 1 gol contra o Santos?",
		"São Paulo vence o Vasco?",
	}

	// Métricas Prometheus do simulador
	simOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bet_simulator_requests_total",
		Help: "chamadas ao escrow por operação e resultado",
	}, []string{"op", "result"})
	simUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bet_simulator_ws_updates_total",
		Help: "updates recebidos pelo WebSocket por tipo",
	}, []string{"type"})
)

type sim struct {
	log      *zap.Logger
	c        *client.Client
	w        *watcher.Watcher
	cfg      config.Config
	accounts []*ecdsa.PrivateKey
}

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bet-simulator"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(simOps, simUpdates)
	metrics.StartMetricsServer(log, cfg.MetricsPort, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := &sim{log: log, c: client.New(cfg.EscrowURL, cfg.WalletURL), cfg: cfg}
	s.w = &watcher.Watcher{
		URL:   cfg.EscrowWSURL,
		Log:   log,
		Retry: 3 * time.Second,
		OnUpdate: func(betID string, ev events.BetEvent) {
			simUpdates.WithLabelValues(ev.Type).Inc()
			log.Info("bet update", zap.String("betId", betID), zap.String("type", ev.Type), zap.ByteString("payload", ev.Payload))
		},
	}
	go s.w.Start(ctx)

	if err := s.seed(ctx); err != nil {
		log.Fatal("seed accounts", zap.Error(err))
	}
	log.Info("bet simulator running",
		zap.Int("accounts", len(s.accounts)),
		zap.Duration("interval", cfg.SimInterval),
		zap.String("escrow", cfg.EscrowURL),
	)

	var wg sync.WaitGroup
	ticker := time.NewTicker(cfg.SimInterval)
	defer ticker.Stop()
	for {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.round(ctx)
		}()
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Info("bet simulator stopped")
			return
		case <-ticker.C:
		}
	}
}

// seed gera as chaves das contas e credita saldo inicial via wallet-service
func (s *sim) seed(ctx context.Context) error {
	for i := 0; i < max(s.cfg.SimAccounts, 2); i++ {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return err
		}
		account := string(auth.AccountOf(key))
		if _, err := s.c.Deposit(ctx, account, s.cfg.SimDenomination, seedAmount, "sim-seed:"+account); err != nil {
			return fmt.Errorf("deposit %s: %w", account, err)
		}
		s.accounts = append(s.accounts, key)
	}
	return nil
}

// round cria uma aposta, espalha stakes aleatórios, espera a expiração e resolve
func (s *sim) round(ctx context.Context) {
	creator := s.accounts[rand.IntN(len(s.accounts))]
	bet, err := s.c.CreateBet(ctx, creator, questions[rand.IntN(len(questions))], time.Now().Add(s.cfg.SimBetTTL), s.cfg.SimDenomination)
	if !s.record("create_bet", err) {
		return
	}
	_ = s.w.Watch(bet.ID)
	defer func() { _ = s.w.Forget(bet.ID) }()

	for _, staker := range s.accounts {
		if staker == creator {
			continue
		}
		_, err := s.c.PlaceStake(ctx, staker, bet.ID, uint64(rand.IntN(1000)+1), rand.IntN(2) == 0)
		s.record("place_stake", err)
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Until(bet.ExpiryTime) + time.Second):
	}

	res, err := s.c.Resolve(ctx, creator, bet.ID, rand.IntN(2) == 0)
	if !s.record("resolve", err) {
		return
	}
	s.log.Info("round finished",
		zap.String("betId", bet.ID),
		zap.Bool("outcome", res.Outcome),
		zap.Int("winners", len(res.Payouts)),
		zap.String("dust", res.Dust),
	)
}

func (s *sim) record(op string, err error) bool {
	if err == nil {
		simOps.WithLabelValues(op, "ok").Inc()
		return true
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		// rejeições de negócio (ex.: no_winning_stakes) fazem parte da simulação
		simOps.WithLabelValues(op, apiErr.Kind).Inc()
		s.log.Info("request rejected", zap.String("op", op), zap.String("kind", apiErr.Kind), zap.String("message", apiErr.Msg))
		return false
	}
	simOps.WithLabelValues(op, "error").Inc()
	s.log.Warn("request failed", zap.String("op", op), zap.Error(err))
	return false
}
