package memstore

import (
	"context"
	"errors"
	"math/bits"
	"strings"
	"sync"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrUnauthorizedTransfer = errors.New("transfer not authorized")
	ErrInvalidTransfer      = errors.New("invalid transfer")
)

type accountKey struct {
	owner escrow.AccountID
	denom string
}

type account struct {
	balance  uint64
	vaultBet string // vazio para contas de usuário
}

// Wallet é um ValueTransferAdapter em memória: contas por (dono, denominação)
type Wallet struct {
	mu       sync.Mutex
	accounts map[accountKey]*account
}

// NewWallet cria uma carteira vazia
func NewWallet() *Wallet {
	return &Wallet{accounts: make(map[accountKey]*account)}
}

// Deposit credita amount na conta do usuário, criando-a se necessário
func (w *Wallet) Deposit(owner escrow.AccountID, denom string, amount uint64) error {
	if owner == "" || denom == "" || strings.HasPrefix(string(owner), "vault:") {
		return ErrInvalidTransfer
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	k := accountKey{owner, denom}
	acc, ok := w.accounts[k]
	if !ok {
		acc = &account{}
		w.accounts[k] = acc
	}
	sum, carry := bits.Add64(acc.balance, amount, 0)
	if carry != 0 {
		return escrow.ErrArithmeticOverflow
	}
	acc.balance = sum
	return nil
}

// OpenVault cria a conta de custódia de uma aposta
func (w *Wallet) OpenVault(betID, denom string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := accountKey{escrow.VaultAccount(betID), denom}
	if _, ok := w.accounts[k]; ok {
		return ErrAccountExists
	}
	w.accounts[k] = &account{vaultBet: betID}
	return nil
}

// Balance retorna o saldo e se a conta existe
func (w *Wallet) Balance(owner escrow.AccountID, denom string) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	acc, ok := w.accounts[accountKey{owner, denom}]
	if !ok {
		return 0, false
	}
	return acc.balance, true
}

// Transfer executa uma transferência isolada, tudo-ou-nada
func (w *Wallet) Transfer(_ context.Context, t escrow.Transfer) error {
	return w.apply([]escrow.Transfer{t})
}

// apply valida e aplica um lote de transferências; nada é gravado se alguma falhar
func (w *Wallet) apply(ts []escrow.Transfer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	scratch, err := w.simulate(ts)
	if err != nil {
		return err
	}
	for k, bal := range scratch {
		w.accounts[k].balance = bal
	}
	return nil
}

// simulate calcula os saldos resultantes sem gravar; chamar com w.mu travado
func (w *Wallet) simulate(ts []escrow.Transfer) (map[accountKey]uint64, error) {
	scratch := make(map[accountKey]uint64)
	balance := func(k accountKey) uint64 {
		if b, ok := scratch[k]; ok {
			return b
		}
		return w.accounts[k].balance
	}

	for _, t := range ts {
		if t.Amount == 0 || t.From == t.To {
			return nil, ErrInvalidTransfer
		}
		fromKey := accountKey{t.From, t.Denomination}
		toKey := accountKey{t.To, t.Denomination}
		from, ok := w.accounts[fromKey]
		if !ok {
			return nil, ErrAccountNotFound
		}
		if _, ok := w.accounts[toKey]; !ok {
			return nil, ErrAccountNotFound
		}
		if !authorized(from, t) {
			return nil, ErrUnauthorizedTransfer
		}

		fb := balance(fromKey)
		if fb < t.Amount {
			return nil, ErrInsufficientFunds
		}
		tb, carry := bits.Add64(balance(toKey), t.Amount, 0)
		if carry != 0 {
			return nil, escrow.ErrArithmeticOverflow
		}
		scratch[fromKey] = fb - t.Amount
		scratch[toKey] = tb
	}
	return scratch, nil
}

func authorized(from *account, t escrow.Transfer) bool {
	if from.vaultBet != "" {
		betID, ok := t.Authority.EscrowBet()
		return ok && betID == from.vaultBet
	}
	signer, ok := t.Authority.Signer()
	return ok && signer == t.From
}

// batch acumula transferências de uma unidade de trabalho até o commit
type batch struct {
	w       *Wallet
	pending []escrow.Transfer
}

// Transfer valida contra os saldos atuais mais o que já está pendente, para
// que a falha apareça no ponto da chamada
func (b *batch) Transfer(_ context.Context, t escrow.Transfer) error {
	next := append(append([]escrow.Transfer(nil), b.pending...), t)
	b.w.mu.Lock()
	_, err := b.w.simulate(next)
	b.w.mu.Unlock()
	if err != nil {
		return err
	}
	b.pending = next
	return nil
}

var _ escrow.ValueTransferAdapter = (*Wallet)(nil)
