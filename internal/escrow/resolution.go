package escrow

import "context"

// Resolve finaliza a aposta com outcome e paga os vencedores a partir do vault.
// Pré-condições, nesta ordem: não resolvida, expirada, caller == creator.
// Sem stakes vencedores a operação inteira é abortada (ErrNoWinningStakes) e a
// aposta continua aberta para outra tentativa; o mesmo vale para qualquer falha
// de transferência no meio dos pagamentos.
func (s *Service) Resolve(ctx context.Context, betID string, caller AccountID, outcome bool) (*Resolution, error) {
	const op = "resolve"

	var res *Resolution
	err := s.store.UpdateBet(ctx, betID, func(ctx context.Context, bet *Bet, xfer ValueTransferAdapter) error {
		now := s.clock.Now()
		if bet.IsResolved {
			return ErrBetAlreadyResolved
		}
		if !bet.Expired(now) {
			return ErrBetNotExpired
		}
		if caller != bet.Creator {
			return ErrUnauthorizedResolver
		}

		bet.IsResolved = true
		bet.Outcome = outcome
		bet.ResolvedAt = &now

		r, err := ComputePayouts(bet.TotalStake, bet.Stakes, outcome)
		if err != nil {
			return err
		}

		authority := escrowAuthority(bet.ID)
		for _, p := range r.Payouts {
			if p.Amount == 0 {
				continue
			}
			if err := xfer.Transfer(ctx, Transfer{
				From:         bet.Vault,
				To:           p.Staker,
				Amount:       p.Amount,
				Denomination: bet.Denomination,
				Authority:    authority,
			}); err != nil {
				return transferFailed(err)
			}
		}

		r.BetID = bet.ID
		r.ResolvedAt = now
		res = r
		return nil
	})
	if err != nil {
		return nil, s.reject(op, err)
	}

	if s.hooks.OnResolved != nil {
		s.hooks.OnResolved(res)
	}
	return res, nil
}
