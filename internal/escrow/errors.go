package escrow

import "errors"

var (
	ErrBetAlreadyResolved    = errors.New("bet already resolved")
	ErrBetExpired            = errors.New("bet expired")
	ErrBetNotExpired         = errors.New("bet not expired yet")
	ErrUnauthorizedResolver  = errors.New("only the creator can resolve this bet")
	ErrStakeCapacityExceeded = errors.New("stake capacity exceeded")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")
	ErrNoWinningStakes       = errors.New("no winning stakes")
	ErrAllocation            = errors.New("allocation failed")
	ErrTransferFailed        = errors.New("transfer failed")

	ErrBetNotFound   = errors.New("bet not found")
	ErrInvalidAmount = errors.New("stake amount must be positive")
	ErrInvalidExpiry = errors.New("expiry time must be in the future")
)

// kinds segue a ordem de verificação: o primeiro match vence
var kinds = []struct {
	err  error
	kind string
}{
	{ErrBetNotFound, "bet_not_found"},
	{ErrBetAlreadyResolved, "bet_already_resolved"},
	{ErrBetExpired, "bet_expired"},
	{ErrBetNotExpired, "bet_not_expired"},
	{ErrUnauthorizedResolver, "unauthorized_resolver"},
	{ErrStakeCapacityExceeded, "stake_capacity_exceeded"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrNoWinningStakes, "no_winning_stakes"},
	{ErrAllocation, "allocation_error"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidExpiry, "invalid_expiry"},
}

// Kind converte um erro (possivelmente encapsulado) no código estável usado
// em respostas HTTP, labels de métricas e eventos
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
