package repository

import (
	"context"
	"database/sql"

	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

// PostgresRepo persiste a trilha de auditoria dos eventos de aposta
type PostgresRepo struct {
	DB *sql.DB
}

// NewPostgresRepo retorna uma instância de repositório Postgres
func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// InsertEvent grava o evento uma única vez por (partition, offset).
// Retorna false quando a mensagem já tinha sido gravada (redelivery do Kafka).
func (r *PostgresRepo) InsertEvent(ctx context.Context, e events.BetEvent, partition int, offset int64) (bool, error) {
	const q = `
		INSERT INTO bet_events
		  (bet_id, event_type, payload, event_ts, kafka_partition, kafka_offset)
		VALUES
		  ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (kafka_partition, kafka_offset) DO NOTHING
	`
	res, err := r.DB.ExecContext(ctx, q, e.BetID, e.Type, []byte(e.Payload), e.Ts, partition, offset)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
