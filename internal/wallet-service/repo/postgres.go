package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
)

// Postgres implementa operações de carteira em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorizedTransfer = errors.New("transfer not authorized")
	ErrDenominationMismatch = errors.New("denomination mismatch")
	ErrInvalidAccount       = errors.New("invalid account")
)

const (
	KindUser  = "USER"
	KindVault = "VAULT"
)

// Account é uma conta por (owner, denominação)
type Account struct {
	ID           string
	Owner        string
	Denomination string
	Kind         string
	BetID        string
	Balance      uint64
	Version      int64
}

// LedgerEntry é uma linha do extrato
type LedgerEntry struct {
	ID           int64
	Operation    string // CREDIT | DEBIT
	Amount       uint64
	Counterparty string
	ExternalRef  string
	RelatedBetID string
	CreatedAt    time.Time
}

const accountCols = `id, owner, denomination, kind, COALESCE(bet_id::text, ''), balance, version`

func scanAccount(row *sql.Row) (*Account, error) {
	var (
		a   Account
		bal db.U64
	)
	if err := row.Scan(&a.ID, &a.Owner, &a.Denomination, &a.Kind, &a.BetID, &bal, &a.Version); err != nil {
		return nil, err
	}
	a.Balance = uint64(bal)
	return &a, nil
}

// GetOrCreateAccount retorna a conta do usuário na denominação, criando-a se não existir
// Usa transação para garantir atomicidade
func (p *Postgres) GetOrCreateAccount(ctx context.Context, owner, denomination string) (*Account, error) {
	if owner == "" || denomination == "" || strings.HasPrefix(owner, "vault:") {
		return nil, ErrInvalidAccount
	}

	var acc *Account
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallet_accounts(id, owner, denomination, kind, balance, version)
			VALUES($1,$2,$3,'USER',0,1)
			ON CONFLICT (owner, denomination) DO NOTHING`,
			uuid.NewString(), owner, denomination); err != nil {
			return err
		}
		var err error
		acc, err = scanAccount(tx.QueryRowContext(ctx,
			`SELECT `+accountCols+` FROM wallet_accounts WHERE owner=$1 AND denomination=$2`, owner, denomination))
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetAccount retorna a conta sem criá-la
func (p *Postgres) GetAccount(ctx context.Context, owner, denomination string) (*Account, error) {
	acc, err := scanAccount(p.db.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM wallet_accounts WHERE owner=$1 AND denomination=$2`, owner, denomination))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return acc, err
}

// Deposit incrementa o saldo da conta e registra a operação no ledger
// Garante lock pessimista na linha da conta; idempotente por externalRef
func (p *Postgres) Deposit(ctx context.Context, owner, denomination string, amount uint64, externalRef string) (*Account, error) {
	if amount == 0 {
		return nil, ErrInvalidAccount
	}
	if _, err := p.GetOrCreateAccount(ctx, owner, denomination); err != nil {
		return nil, err
	}

	var acc *Account
	err := db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var err error
		acc, err = lockAccount(ctx, tx, owner, denomination)
		if err != nil {
			return err
		}

		if externalRef != "" {
			var exists int64
			err = tx.QueryRowContext(ctx,
				`SELECT id FROM wallet_ledger WHERE account_id=$1 AND external_ref=$2`, acc.ID, externalRef).Scan(&exists)
			if err == nil {
				return nil // já processado
			} else if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		sum, carry := bits.Add64(acc.Balance, amount, 0)
		if carry != 0 {
			return escrow.ErrArithmeticOverflow
		}
		if err := setBalance(ctx, tx, acc, sum); err != nil {
			return err
		}
		return insertLedger(ctx, tx, acc.ID, "CREDIT", amount, "deposit", nullable(externalRef), "")
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Ledger lista as movimentações mais recentes da conta
func (p *Postgres) Ledger(ctx context.Context, owner, denomination string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT l.id, l.operation_type, l.amount, COALESCE(l.counterparty,''), COALESCE(l.external_ref,''),
		       COALESCE(l.related_bet_id::text,''), l.created_at
		FROM wallet_ledger l
		JOIN wallet_accounts a ON a.id = l.account_id
		WHERE a.owner=$1 AND a.denomination=$2
		ORDER BY l.id DESC
		LIMIT $3`, owner, denomination, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var (
			e   LedgerEntry
			amt db.U64
		)
		if err := rows.Scan(&e.ID, &e.Operation, &amt, &e.Counterparty, &e.ExternalRef, &e.RelatedBetID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount = uint64(amt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateVaultTx cria a conta de custódia de uma aposta dentro da transação do chamador
func (p *Postgres) CreateVaultTx(ctx context.Context, tx *sql.Tx, betID, denomination string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_accounts(id, owner, denomination, kind, bet_id, balance, version)
		VALUES($1,$2,$3,'VAULT',$4,0,1)`,
		uuid.NewString(), string(escrow.VaultAccount(betID)), denomination, betID)
	if err != nil {
		return fmt.Errorf("create vault: %w", err)
	}
	return nil
}

// TransferTx move valor entre duas contas dentro da transação do chamador.
// As duas linhas são travadas em ordem de chave para evitar deadlock.
func (p *Postgres) TransferTx(ctx context.Context, tx *sql.Tx, t escrow.Transfer) error {
	if t.Amount == 0 || t.From == t.To {
		return ErrInvalidAccount
	}

	first, second := string(t.From), string(t.To)
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]*Account, 2)
	for _, owner := range []string{first, second} {
		acc, err := lockAccount(ctx, tx, owner, t.Denomination)
		if err != nil {
			return err
		}
		locked[owner] = acc
	}
	from, to := locked[string(t.From)], locked[string(t.To)]

	if !authorized(from, t.Authority) {
		return ErrUnauthorizedTransfer
	}
	if from.Balance < t.Amount {
		return ErrInsufficientFunds
	}
	credited, carry := bits.Add64(to.Balance, t.Amount, 0)
	if carry != 0 {
		return escrow.ErrArithmeticOverflow
	}

	if err := setBalance(ctx, tx, from, from.Balance-t.Amount); err != nil {
		return err
	}
	if err := setBalance(ctx, tx, to, credited); err != nil {
		return err
	}

	betID := from.BetID
	if betID == "" {
		betID = to.BetID
	}
	if err := insertLedger(ctx, tx, from.ID, "DEBIT", t.Amount, to.Owner, nil, betID); err != nil {
		return err
	}
	return insertLedger(ctx, tx, to.ID, "CREDIT", t.Amount, from.Owner, nil, betID)
}

// Adapter vincula TransferTx a uma transação aberta
func (p *Postgres) Adapter(tx *sql.Tx) escrow.ValueTransferAdapter {
	return txAdapter{p: p, tx: tx}
}

type txAdapter struct {
	p  *Postgres
	tx *sql.Tx
}

func (a txAdapter) Transfer(ctx context.Context, t escrow.Transfer) error {
	return a.p.TransferTx(ctx, a.tx, t)
}

func authorized(from *Account, auth escrow.Authority) bool {
	if from.Kind == KindVault {
		betID, ok := auth.EscrowBet()
		return ok && betID == from.BetID
	}
	signer, ok := auth.Signer()
	return ok && string(signer) == from.Owner
}

func lockAccount(ctx context.Context, tx *sql.Tx, owner, denomination string) (*Account, error) {
	acc, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM wallet_accounts WHERE owner=$1 AND denomination=$2 FOR UPDATE`, owner, denomination))
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	// conta existe em outra denominação?
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet_accounts WHERE owner=$1`, owner).Scan(&n); err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrDenominationMismatch
	}
	return nil, ErrNotFound
}

func setBalance(ctx context.Context, tx *sql.Tx, acc *Account, balance uint64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE wallet_accounts SET balance=$1, version=version+1 WHERE id=$2`, db.U64(balance), acc.ID); err != nil {
		return err
	}
	acc.Balance = balance
	acc.Version++
	return nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, accountID, op string, amount uint64, counterparty string, externalRef any, betID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_ledger(account_id, operation_type, amount, counterparty, external_ref, related_bet_id)
		VALUES($1,$2,$3,$4,$5,$6)`,
		accountID, op, db.U64(amount), counterparty, externalRef, nullable(betID))
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
