package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/bet-events/pubsub"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

// MessageReader é o subconjunto de *kafka.Reader usado pelo processor.
// O commit é manual: a mensagem só é confirmada depois de gravada ou enviada à DLQ.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type EventRepo interface {
	InsertEvent(ctx context.Context, e events.BetEvent, partition int, offset int64) (bool, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

const (
	maxRetries       = 3
	broadcastTimeout = 500 * time.Millisecond
)

var errInvalidEvent = errors.New("invalid bet event")

// Processor consome eventos de aposta do Kafka, grava a auditoria no Postgres
// e repassa cada evento ao canal Redis lido pelo WebSocket do escrow-service
type Processor struct {
	Log         *zap.Logger
	Reader      MessageReader
	Repo        EventRepo
	Broadcaster Broadcaster
	Channel     string
	DLQ         MessageWriter // opcional
	Backoff     time.Duration // espera base entre tentativas; cresce linearmente

	OnConsumed  func()       // métricas (counter++)
	OnPersist   func()       // métricas
	OnDuplicate func()       // métricas
	OnBroadcast func()       // métricas
	OnDLQ       func()       // métricas
	OnError     func(string) // métricas por fase
}

// Run inicia o loop principal de consumo até o contexto ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.fail("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.Handle(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// para sem commit para não confirmar a mensagem junto com as seguintes;
			// o grupo reentrega a partir dela no restart
			return fmt.Errorf("partition %d offset %d: %w", m.Partition, m.Offset, err)
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.fail("commit")
		}
	}
}

// Handle processa uma mensagem. Devolve erro apenas quando a mensagem não foi
// gravada nem enviada à DLQ e portanto não pode ser confirmada.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	ev, err := decode(m.Value)
	if err != nil {
		p.Log.Warn("invalid message", zap.Int64("offset", m.Offset), zap.Error(err))
		p.fail("decode")
		return p.deadLetter(ctx, m, err)
	}

	inserted, err := p.persist(ctx, ev, m)
	if err != nil {
		p.Log.Warn("db insert failed after retries", zap.String("betId", ev.BetID), zap.Error(err))
		return p.deadLetter(ctx, m, err)
	}
	if inserted {
		if p.OnPersist != nil {
			p.OnPersist()
		}
	} else if p.OnDuplicate != nil {
		p.OnDuplicate()
	}

	// redelivery também é repassado: o cliente WS trata updates de forma idempotente
	p.broadcast(ctx, ev, m.Value)
	return nil
}

func (p *Processor) persist(ctx context.Context, ev events.BetEvent, m kafka.Message) (bool, error) {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 && !sleep(ctx, time.Duration(attempt)*p.Backoff) {
			return false, ctx.Err()
		}
		var inserted bool
		if inserted, err = p.Repo.InsertEvent(ctx, ev, m.Partition, m.Offset); err == nil {
			return inserted, nil
		}
		p.fail("db_insert")
	}
	return false, err
}

func (p *Processor) broadcast(ctx context.Context, ev events.BetEvent, raw []byte) {
	if p.Broadcaster == nil {
		return
	}
	b, err := json.Marshal(pubsub.Update{BetID: ev.BetID, Payload: raw})
	if err != nil {
		p.fail("broadcast")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, broadcastTimeout)
	defer cancel()
	if err := p.Broadcaster.Publish(ctx, p.Channel, b); err != nil {
		p.Log.Warn("ws broadcast publish failed", zap.String("betId", ev.BetID), zap.Error(err))
		p.fail("broadcast")
		return
	}
	if p.OnBroadcast != nil {
		p.OnBroadcast()
	}
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if p.DLQ == nil {
		return cause
	}
	dl := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(cause.Error())},
			{Key: "source", Value: []byte(fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset))},
		},
	}
	if err := p.DLQ.WriteMessages(ctx, dl); err != nil {
		p.fail("dlq")
		return fmt.Errorf("dlq write: %w (cause: %v)", err, cause)
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
	return nil
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func decode(b []byte) (events.BetEvent, error) {
	var ev events.BetEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, fmt.Errorf("%w: %w", errInvalidEvent, err)
	}
	switch ev.Type {
	case events.TypeBetCreated, events.TypeStakePlaced, events.TypeBetResolved:
	default:
		return ev, fmt.Errorf("%w: unknown type %q", errInvalidEvent, ev.Type)
	}
	if _, err := uuid.Parse(ev.BetID); err != nil {
		return ev, fmt.Errorf("%w: bet_id %q", errInvalidEvent, ev.BetID)
	}
	if len(ev.Payload) == 0 {
		return ev, fmt.Errorf("%w: payload required", errInvalidEvent)
	}
	return ev, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
