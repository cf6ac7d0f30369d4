// Package memstore implementa escrow.Store e a carteira em memória.
// Usado nos testes e no modo STORE_BACKEND=memory.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

var ErrBetExists = errors.New("bet already exists")

type entry struct {
	mu  sync.Mutex
	bet *escrow.Bet
}

// Store guarda apostas em memória com um mutex por aposta
type Store struct {
	mu     sync.RWMutex
	bets   map[string]*entry
	order  []string
	wallet *Wallet
}

// New cria um store vinculado à carteira w
func New(w *Wallet) *Store {
	if w == nil {
		w = NewWallet()
	}
	return &Store{bets: make(map[string]*entry), wallet: w}
}

// Wallet expõe a carteira usada para vaults e transferências
func (s *Store) Wallet() *Wallet { return s.wallet }

func (s *Store) CreateBet(_ context.Context, bet *escrow.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[bet.ID]; ok {
		return ErrBetExists
	}
	if err := s.wallet.OpenVault(bet.ID, bet.Denomination); err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	s.bets[bet.ID] = &entry{bet: bet.Clone()}
	s.order = append(s.order, bet.ID)
	return nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.bets[id]
	if !ok {
		return nil, escrow.ErrBetNotFound
	}
	return e, nil
}

func (s *Store) GetBet(_ context.Context, id string) (*escrow.Bet, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bet.Clone(), nil
}

func (s *Store) ListBets(_ context.Context, f escrow.ListFilter) ([]*escrow.Bet, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()

	var out []*escrow.Bet
	for _, id := range ids {
		e, err := s.lookup(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		b := e.bet.Clone()
		e.mu.Unlock()

		if f.Creator != "" && b.Creator != f.Creator {
			continue
		}
		if f.Resolved != nil && b.IsResolved != *f.Resolved {
			continue
		}
		out = append(out, b)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// UpdateBet trava a aposta, roda fn sobre uma cópia e só grava a cópia e as
// transferências pendentes se fn e o commit da carteira tiverem sucesso
func (s *Store) UpdateBet(ctx context.Context, id string, fn escrow.UpdateFunc) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.bet.Clone()
	b := &batch{w: s.wallet}
	if err := fn(ctx, work, b); err != nil {
		return err
	}
	if len(b.pending) > 0 {
		if err := s.wallet.apply(b.pending); err != nil {
			return fmt.Errorf("%w: %w", escrow.ErrTransferFailed, err)
		}
	}
	e.bet = work
	return nil
}

var _ escrow.Store = (*Store)(nil)
