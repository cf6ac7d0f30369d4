package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

// Metrics agrupa os contadores do escrow
type Metrics struct {
	BetsCreated  prometheus.Counter
	StakesPlaced prometheus.Counter
	StakeVolume  *prometheus.CounterVec
	BetsResolved *prometheus.CounterVec
	PayoutVolume prometheus.Counter
	Rejections   *prometheus.CounterVec
}

// New cria e registra os contadores em reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BetsCreated:  prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_bets_created_total", Help: "apostas criadas"}),
		StakesPlaced: prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_stakes_placed_total", Help: "stakes aceitos"}),
		StakeVolume:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "escrow_stake_volume_total", Help: "valor depositado em vaults"}, []string{"denomination"}),
		BetsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "escrow_bets_resolved_total", Help: "apostas resolvidas por resultado"}, []string{"outcome"}),
		PayoutVolume: prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_payout_volume_total", Help: "valor pago aos vencedores"}),
		Rejections:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "escrow_rejections_total", Help: "operações rejeitadas por tipo de erro"}, []string{"op", "kind"}),
	}
	reg.MustRegister(m.BetsCreated, m.StakesPlaced, m.StakeVolume, m.BetsResolved, m.PayoutVolume, m.Rejections)
	return m
}

// Hooks conecta os contadores ao núcleo
func (m *Metrics) Hooks() escrow.Hooks {
	return escrow.Hooks{
		OnCreated: func(*escrow.Bet) { m.BetsCreated.Inc() },
		OnStaked: func(b *escrow.Bet, s escrow.Stake) {
			m.StakesPlaced.Inc()
			m.StakeVolume.WithLabelValues(b.Denomination).Add(float64(s.Amount))
		},
		OnResolved: func(r *escrow.Resolution) {
			outcome := "no"
			if r.Outcome {
				outcome = "yes"
			}
			m.BetsResolved.WithLabelValues(outcome).Inc()
			var paid float64
			for _, p := range r.Payouts {
				paid += float64(p.Amount)
			}
			m.PayoutVolume.Add(paid)
		},
		OnRejected: func(op, kind string) { m.Rejections.WithLabelValues(op, kind).Inc() },
	}
}
