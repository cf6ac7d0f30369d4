package escrow

import (
	"context"
	"math/bits"
)

// PlaceStake registra um stake e deposita amount no vault da aposta.
// Pré-condições, nesta ordem: não resolvida, não expirada, capacidade disponível, valor positivo.
// Append, soma do total e depósito formam uma única unidade atômica.
func (s *Service) PlaceStake(ctx context.Context, betID string, staker AccountID, amount uint64, choice bool) (*Bet, error) {
	const op = "place_stake"

	var (
		out    *Bet
		placed Stake
	)
	err := s.store.UpdateBet(ctx, betID, func(ctx context.Context, bet *Bet, xfer ValueTransferAdapter) error {
		now := s.clock.Now()
		if bet.IsResolved {
			return ErrBetAlreadyResolved
		}
		if bet.Expired(now) {
			return ErrBetExpired
		}
		if len(bet.Stakes) >= bet.Capacity {
			return ErrStakeCapacityExceeded
		}
		if amount == 0 {
			return ErrInvalidAmount
		}

		total, carry := bits.Add64(bet.TotalStake, amount, 0)
		if carry != 0 {
			return ErrArithmeticOverflow
		}
		placed = Stake{Staker: staker, Amount: amount, Choice: choice, PlacedAt: now}
		bet.Stakes = append(bet.Stakes, placed)
		bet.TotalStake = total

		// depósito staker -> vault autorizado pelo próprio staker
		if err := xfer.Transfer(ctx, Transfer{
			From:         staker,
			To:           bet.Vault,
			Amount:       amount,
			Denomination: bet.Denomination,
			Authority:    SignerAuthority(staker),
		}); err != nil {
			return transferFailed(err)
		}

		out = bet.Clone()
		return nil
	})
	if err != nil {
		return nil, s.reject(op, err)
	}

	if s.hooks.OnStaked != nil {
		s.hooks.OnStaked(out, placed)
	}
	return out, nil
}
