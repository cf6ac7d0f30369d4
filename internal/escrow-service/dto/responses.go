package dto

import (
	"strconv"
	"time"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

type StakeResponse struct {
	Staker   string    `json:"staker"`
	Amount   string    `json:"amount"`
	Choice   bool      `json:"choice"`
	PlacedAt time.Time `json:"placed_at"`
}

type BetResponse struct {
	ID                string          `json:"id"`
	Creator           string          `json:"creator"`
	Question          string          `json:"question"`
	ExpiryTime        time.Time       `json:"expiry_time"`
	TotalStake        string          `json:"total_stake"`
	IsResolved        bool            `json:"is_resolved"`
	Outcome           *bool           `json:"outcome,omitempty"` // só quando resolvida
	TokenDenomination string          `json:"token_denomination"`
	Capacity          int             `json:"capacity"`
	Vault             string          `json:"vault"`
	Stakes            []StakeResponse `json:"stakes"`
	CreatedAt         time.Time       `json:"created_at"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
}

type PayoutResponse struct {
	Staker string `json:"staker"`
	Stake  string `json:"stake"`
	Amount string `json:"amount"`
}

type ResolutionResponse struct {
	BetID             string           `json:"bet_id"`
	Outcome           bool             `json:"outcome"`
	TotalStake        string           `json:"total_stake"`
	TotalWinningStake string           `json:"total_winning_stake"`
	Payouts           []PayoutResponse `json:"payouts"`
	Dust              string           `json:"dust"`
	ResolvedAt        time.Time        `json:"resolved_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func FromBet(b *escrow.Bet) BetResponse {
	out := BetResponse{
		ID:                b.ID,
		Creator:           string(b.Creator),
		Question:          b.Question,
		ExpiryTime:        b.ExpiryTime,
		TotalStake:        u64(b.TotalStake),
		IsResolved:        b.IsResolved,
		TokenDenomination: b.Denomination,
		Capacity:          b.Capacity,
		Vault:             string(b.Vault),
		Stakes:            make([]StakeResponse, 0, len(b.Stakes)),
		CreatedAt:         b.CreatedAt,
		ResolvedAt:        b.ResolvedAt,
	}
	if b.IsResolved {
		o := b.Outcome
		out.Outcome = &o
	}
	for _, s := range b.Stakes {
		out.Stakes = append(out.Stakes, StakeResponse{
			Staker:   string(s.Staker),
			Amount:   u64(s.Amount),
			Choice:   s.Choice,
			PlacedAt: s.PlacedAt,
		})
	}
	return out
}

func FromResolution(r *escrow.Resolution) ResolutionResponse {
	out := ResolutionResponse{
		BetID:             r.BetID,
		Outcome:           r.Outcome,
		TotalStake:        u64(r.TotalStake),
		TotalWinningStake: u64(r.TotalWinningStake),
		Payouts:           make([]PayoutResponse, 0, len(r.Payouts)),
		Dust:              u64(r.Dust),
		ResolvedAt:        r.ResolvedAt,
	}
	for _, p := range r.Payouts {
		out.Payouts = append(out.Payouts, PayoutResponse{
			Staker: string(p.Staker),
			Stake:  u64(p.Stake),
			Amount: u64(p.Amount),
		})
	}
	return out
}
