package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
)

// Vaults é o lado da carteira que participa da transação da aposta
type Vaults interface {
	CreateVaultTx(ctx context.Context, tx *sql.Tx, betID, denomination string) error
	Adapter(tx *sql.Tx) escrow.ValueTransferAdapter
}

// Postgres implementa escrow.Store; carteira e aposta compartilham a mesma transação
type Postgres struct {
	db     *sql.DB
	vaults Vaults
}

// NewPostgres retorna uma instância do repositório de apostas
func NewPostgres(db *sql.DB, vaults Vaults) *Postgres {
	return &Postgres{db: db, vaults: vaults}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const betCols = `id, creator, question, expiry_time, total_stake, is_resolved, outcome,
	denomination, capacity, vault, created_at, resolved_at`

// CreateBet insere a aposta e o vault numa única transação
func (p *Postgres) CreateBet(ctx context.Context, b *escrow.Bet) error {
	return db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bets (id, creator, question, expiry_time, total_stake, is_resolved, outcome,
			                  denomination, capacity, vault, created_at)
			VALUES ($1,$2,$3,$4,$5,false,false,$6,$7,$8,$9)`,
			b.ID, string(b.Creator), b.Question, b.ExpiryTime, db.U64(b.TotalStake),
			b.Denomination, b.Capacity, string(b.Vault), b.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		return p.vaults.CreateVaultTx(ctx, tx, b.ID, b.Denomination)
	})
}

// GetBet retorna a aposta com seus stakes em ordem de inserção
func (p *Postgres) GetBet(ctx context.Context, id string) (*escrow.Bet, error) {
	if !validID(id) {
		return nil, escrow.ErrBetNotFound
	}
	b, err := scanBet(p.db.QueryRowContext(ctx, `SELECT `+betCols+` FROM bets WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if b.Stakes, err = loadStakes(ctx, p.db, id); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBets filtra por criador e status, mais antigas primeiro
func (p *Postgres) ListBets(ctx context.Context, f escrow.ListFilter) ([]*escrow.Bet, error) {
	var resolved any
	if f.Resolved != nil {
		resolved = *f.Resolved
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+betCols+` FROM bets
		WHERE ($1 = '' OR creator = $1)
		  AND ($2::boolean IS NULL OR is_resolved = $2)
		ORDER BY created_at, id
		LIMIT $3`, string(f.Creator), resolved, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*escrow.Bet
	for rows.Next() {
		b, err := scanBetRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range out {
		if b.Stakes, err = loadStakes(ctx, p.db, b.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateBet trava a linha da aposta (FOR UPDATE), roda fn com um adapter de
// carteira na mesma transação e grava aposta e novos stakes antes do commit
func (p *Postgres) UpdateBet(ctx context.Context, id string, fn escrow.UpdateFunc) error {
	if !validID(id) {
		return escrow.ErrBetNotFound
	}
	return db.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		b, err := scanBet(tx.QueryRowContext(ctx, `SELECT `+betCols+` FROM bets WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if b.Stakes, err = loadStakes(ctx, tx, id); err != nil {
			return err
		}
		persisted := len(b.Stakes)

		if err := fn(ctx, b, p.vaults.Adapter(tx)); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE bets SET total_stake=$1, is_resolved=$2, outcome=$3, resolved_at=$4
			WHERE id=$5`,
			db.U64(b.TotalStake), b.IsResolved, b.Outcome, b.ResolvedAt, id,
		); err != nil {
			return fmt.Errorf("update bet: %w", err)
		}

		// stakes são append-only
		for i := persisted; i < len(b.Stakes); i++ {
			s := b.Stakes[i]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO bet_stakes (bet_id, seq, staker, amount, choice, placed_at)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				id, i, string(s.Staker), db.U64(s.Amount), s.Choice, s.PlacedAt,
			); err != nil {
				return fmt.Errorf("insert stake: %w", err)
			}
		}
		return nil
	})
}

// validID evita que um id fora do formato UUID vire erro de sintaxe no Postgres
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBet(row *sql.Row) (*escrow.Bet, error) {
	b, err := scanBetRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, escrow.ErrBetNotFound
	}
	return b, err
}

func scanBetRow(s scanner) (*escrow.Bet, error) {
	var (
		b          escrow.Bet
		creator    string
		vault      string
		total      db.U64
		resolvedAt sql.NullTime
	)
	if err := s.Scan(&b.ID, &creator, &b.Question, &b.ExpiryTime, &total, &b.IsResolved, &b.Outcome,
		&b.Denomination, &b.Capacity, &vault, &b.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	b.Creator = escrow.AccountID(creator)
	b.Vault = escrow.AccountID(vault)
	b.TotalStake = uint64(total)
	b.ExpiryTime = b.ExpiryTime.UTC()
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		b.ResolvedAt = &t
	}
	return &b, nil
}

func loadStakes(ctx context.Context, q queryer, betID string) ([]escrow.Stake, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT staker, amount, choice, placed_at FROM bet_stakes
		WHERE bet_id=$1 ORDER BY seq`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []escrow.Stake
	for rows.Next() {
		var (
			staker   string
			amount   db.U64
			choice   bool
			placedAt time.Time
		)
		if err := rows.Scan(&staker, &amount, &choice, &placedAt); err != nil {
			return nil, err
		}
		out = append(out, escrow.Stake{
			Staker:   escrow.AccountID(staker),
			Amount:   uint64(amount),
			Choice:   choice,
			PlacedAt: placedAt.UTC(),
		})
	}
	return out, rows.Err()
}

var _ escrow.Store = (*Postgres)(nil)
