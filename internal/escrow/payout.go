package escrow

import (
	"fmt"
	"math/bits"
	"time"
)

// Payout é o valor pago a um stake vencedor
type Payout struct {
	Staker AccountID
	Stake  uint64
	Amount uint64
}

// Resolution é o resultado de uma resolução bem-sucedida
type Resolution struct {
	BetID             string
	Outcome           bool
	TotalStake        uint64
	TotalWinningStake uint64
	Payouts           []Payout
	Dust              uint64
	ResolvedAt        time.Time
}

// ComputePayouts calcula a distribuição proporcional do pool total entre os
// stakes que escolheram outcome, na ordem da lista:
// winnings = floor(amount * totalStake / totalWinningStake) com produto em 128 bits.
// O resto das divisões (dust) permanece no vault.
func ComputePayouts(totalStake uint64, stakes []Stake, outcome bool) (*Resolution, error) {
	var winning uint64
	for _, s := range stakes {
		if s.Choice != outcome {
			continue
		}
		sum, carry := bits.Add64(winning, s.Amount, 0)
		if carry != 0 {
			return nil, ErrArithmeticOverflow
		}
		winning = sum
	}
	if winning == 0 {
		return nil, ErrNoWinningStakes
	}

	res := &Resolution{
		Outcome:           outcome,
		TotalStake:        totalStake,
		TotalWinningStake: winning,
	}
	var paid uint64
	for _, s := range stakes {
		if s.Choice != outcome {
			continue
		}
		amount, err := mulDiv(s.Amount, totalStake, winning)
		if err != nil {
			return nil, err
		}
		sum, carry := bits.Add64(paid, amount, 0)
		if carry != 0 {
			return nil, ErrArithmeticOverflow
		}
		paid = sum
		res.Payouts = append(res.Payouts, Payout{Staker: s.Staker, Stake: s.Amount, Amount: amount})
	}
	if paid > totalStake {
		return nil, fmt.Errorf("%w: payouts %d exceed pool %d", ErrArithmeticOverflow, paid, totalStake)
	}
	res.Dust = totalStake - paid
	return res, nil
}

// mulDiv calcula floor(a*b/d) sem perder os bits altos do produto
func mulDiv(a, b, d uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}
