// Package escrow implementa o núcleo do escrow de apostas binárias:
// registro de apostas, ledger de stakes e o motor de resolução/pagamento.
package escrow

import (
	"context"
	"fmt"
)

// Config parâmetros do núcleo
type Config struct {
	StakeCapacity int // stakes reservados por aposta na criação
	Hooks         Hooks
}

// Service agrega BetRegistry, StakeLedger e ResolutionEngine sobre um Store
type Service struct {
	store    Store
	clock    Clock
	capacity int
	hooks    Hooks
}

// NewService instancia o núcleo; capacidade 0 assume DefaultStakeCapacity
func NewService(store Store, clock Clock, cfg Config) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	capacity := cfg.StakeCapacity
	if capacity == 0 {
		capacity = DefaultStakeCapacity
	}
	return &Service{store: store, clock: clock, capacity: capacity, hooks: cfg.Hooks}
}

// GetBet retorna uma cópia da aposta
func (s *Service) GetBet(ctx context.Context, id string) (*Bet, error) {
	return s.store.GetBet(ctx, id)
}

// ListBets lista apostas conforme o filtro
func (s *Service) ListBets(ctx context.Context, f ListFilter) ([]*Bet, error) {
	return s.store.ListBets(ctx, f)
}

func (s *Service) reject(op string, err error) error {
	if s.hooks.OnRejected != nil {
		s.hooks.OnRejected(op, Kind(err))
	}
	return err
}

func transferFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}
