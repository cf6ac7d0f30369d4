package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica o ciclo de vida das apostas no tópico bet_events, chave = betId
type KafkaPublisher struct {
	Writer MessageWriter
	Topic  string
}

func NewKafkaPublisher(w MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topic: topic}
}

func (p *KafkaPublisher) PublishBetCreated(ctx context.Context, b *escrow.Bet) error {
	return p.publish(ctx, events.TypeBetCreated, b.ID, b.CreatedAt, events.BetCreated{
		Creator:      string(b.Creator),
		Question:     b.Question,
		ExpiryTime:   b.ExpiryTime,
		Denomination: b.Denomination,
		Capacity:     b.Capacity,
		Vault:        string(b.Vault),
	})
}

func (p *KafkaPublisher) PublishStakePlaced(ctx context.Context, b *escrow.Bet, s escrow.Stake) error {
	return p.publish(ctx, events.TypeStakePlaced, b.ID, s.PlacedAt, events.StakePlaced{
		Staker:     string(s.Staker),
		Amount:     strconv.FormatUint(s.Amount, 10),
		Choice:     s.Choice,
		TotalStake: strconv.FormatUint(b.TotalStake, 10),
		StakeCount: len(b.Stakes),
	})
}

func (p *KafkaPublisher) PublishBetResolved(ctx context.Context, r *escrow.Resolution) error {
	payouts := make([]events.Payout, 0, len(r.Payouts))
	for _, po := range r.Payouts {
		payouts = append(payouts, events.Payout{Staker: string(po.Staker), Amount: strconv.FormatUint(po.Amount, 10)})
	}
	return p.publish(ctx, events.TypeBetResolved, r.BetID, r.ResolvedAt, events.BetResolved{
		Outcome:           r.Outcome,
		TotalStake:        strconv.FormatUint(r.TotalStake, 10),
		TotalWinningStake: strconv.FormatUint(r.TotalWinningStake, 10),
		Payouts:           payouts,
		Dust:              strconv.FormatUint(r.Dust, 10),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, typ, betID string, ts time.Time, payload any) error {
	ev, err := events.New(typ, betID, ts, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(betID), Value: b, Time: ts})
}
