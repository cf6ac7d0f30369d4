package producer

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

type captureWriter struct{ msgs []kafka.Message }

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestPublishStakePlaced(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(w, "bet_events")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bet := &escrow.Bet{ID: "b1", TotalStake: math.MaxUint64, Stakes: make([]escrow.Stake, 3)}

	if err := p.PublishStakePlaced(context.Background(), bet, escrow.Stake{Staker: "0xabc", Amount: 9, Choice: true, PlacedAt: at}); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "b1" {
		t.Fatalf("messages = %+v", w.msgs)
	}

	var ev events.BetEvent
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != events.TypeStakePlaced || ev.BetID != "b1" || !ev.Ts.Equal(at) {
		t.Errorf("envelope = %+v", ev)
	}
	var sp events.StakePlaced
	if err := json.Unmarshal(ev.Payload, &sp); err != nil {
		t.Fatal(err)
	}
	if sp.TotalStake != "18446744073709551615" || sp.Amount != "9" || sp.StakeCount != 3 || !sp.Choice {
		t.Errorf("payload = %+v", sp)
	}
}

func TestPublishBetResolved(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(w, "bet_events")
	res := &escrow.Resolution{
		BetID: "b2", Outcome: true, TotalStake: 35, TotalWinningStake: 30, Dust: 1,
		Payouts: []escrow.Payout{{Staker: "A", Stake: 10, Amount: 11}, {Staker: "B", Stake: 20, Amount: 23}},
	}
	if err := p.PublishBetResolved(context.Background(), res); err != nil {
		t.Fatal(err)
	}
	var ev events.BetEvent
	_ = json.Unmarshal(w.msgs[0].Value, &ev)
	var br events.BetResolved
	if err := json.Unmarshal(ev.Payload, &br); err != nil {
		t.Fatal(err)
	}
	if len(br.Payouts) != 2 || br.Payouts[1].Amount != "23" || br.Dust != "1" {
		t.Errorf("payload = %+v", br)
	}
}
