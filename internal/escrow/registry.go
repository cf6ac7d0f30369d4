package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateBet aloca uma nova aposta com total zero, sem stakes, e o vault
// denominado em denomination. Registro e vault são criados juntos pelo Store.
func (s *Service) CreateBet(ctx context.Context, creator AccountID, question string, expiry time.Time, denomination string) (*Bet, error) {
	const op = "create_bet"

	if creator == "" {
		return nil, s.reject(op, fmt.Errorf("%w: creator required", ErrAllocation))
	}
	if len(question) > MaxQuestionBytes {
		return nil, s.reject(op, fmt.Errorf("%w: question exceeds %d bytes", ErrAllocation, MaxQuestionBytes))
	}
	if denomination == "" {
		return nil, s.reject(op, fmt.Errorf("%w: token denomination required", ErrAllocation))
	}
	if s.capacity < 1 || s.capacity > MaxStakeCapacity {
		return nil, s.reject(op, fmt.Errorf("%w: stake capacity %d outside 1..%d", ErrAllocation, s.capacity, MaxStakeCapacity))
	}

	now := s.clock.Now()
	if !expiry.After(now) {
		return nil, s.reject(op, ErrInvalidExpiry)
	}

	id := uuid.NewString()
	bet := &Bet{
		ID:           id,
		Creator:      creator,
		Question:     question,
		ExpiryTime:   expiry.UTC(),
		Denomination: denomination,
		Capacity:     s.capacity,
		Vault:        VaultAccount(id),
		Stakes:       make([]Stake, 0, s.capacity),
		CreatedAt:    now,
	}
	if err := s.store.CreateBet(ctx, bet); err != nil {
		return nil, s.reject(op, fmt.Errorf("%w: %w", ErrAllocation, err))
	}

	if s.hooks.OnCreated != nil {
		s.hooks.OnCreated(bet)
	}
	return bet.Clone(), nil
}
