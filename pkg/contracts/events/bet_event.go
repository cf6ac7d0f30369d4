package events

import (
	"encoding/json"
	"time"
)

// Tipos de evento publicados no tópico "bet_events"
const (
	TypeBetCreated  = "bet_created"
	TypeStakePlaced = "stake_placed"
	TypeBetResolved = "bet_resolved"
)

// BetEvent é o envelope comum; Payload depende de Type
type BetEvent struct {
	Type    string          `json:"type"`
	BetID   string          `json:"bet_id"`
	Ts      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Valores monetários trafegam como string decimal para não perder precisão de u64 em JSON

type BetCreated struct {
	Creator      string    `json:"creator"`
	Question     string    `json:"question"`
	ExpiryTime   time.Time `json:"expiry_time"`
	Denomination string    `json:"denomination"`
	Capacity     int       `json:"capacity"`
	Vault        string    `json:"vault"`
}

type StakePlaced struct {
	Staker     string `json:"staker"`
	Amount     string `json:"amount"`
	Choice     bool   `json:"choice"`
	TotalStake string `json:"total_stake"`
	StakeCount int    `json:"stake_count"`
}

type Payout struct {
	Staker string `json:"staker"`
	Amount string `json:"amount"`
}

type BetResolved struct {
	Outcome           bool     `json:"outcome"`
	TotalStake        string   `json:"total_stake"`
	TotalWinningStake string   `json:"total_winning_stake"`
	Payouts           []Payout `json:"payouts"`
	Dust              string   `json:"dust"`
}

// New monta o envelope serializando o payload
func New(typ, betID string, ts time.Time, payload any) (BetEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return BetEvent{}, err
	}
	return BetEvent{Type: typ, BetID: betID, Ts: ts, Payload: b}, nil
}
