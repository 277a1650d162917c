package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cryptomart/indexer/internal/core/domain"
)

// EventLogRepo implements storage.EventLogRepository using PostgreSQL.
type EventLogRepo struct {
	q sqlx.ExtContext
}

type eventLogRow struct {
	ID          string    `db:"id"`
	TxHash      string    `db:"tx_hash"`
	LogIndex    int32     `db:"log_index"`
	BlockNumber int64     `db:"block_number"`
	EventType   string    `db:"event_type"`
	Processed   bool      `db:"processed"`
	Error       string    `db:"error"`
	CreatedAt   time.Time `db:"created_at"`
}

// Insert adds a ledger row. ON CONFLICT DO NOTHING makes the uniqueness
// constraint on (tx_hash, log_index) the final arbiter when two writers race
// on the same event.
func (r *EventLogRepo) Insert(ctx context.Context, e *domain.EventLog) error {
	query := `
		INSERT INTO event_logs (
			id, tx_hash, log_index, block_number, event_type, processed, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`
	_, err := r.q.ExecContext(ctx, query,
		e.ID, e.TxHash, int32(e.LogIndex), int64(e.BlockNumber),
		e.EventType, e.Processed, e.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event log: %w", err)
	}
	return nil
}

// Exists reports whether a ledger row exists for (txHash, logIndex).
func (r *EventLogRepo) Exists(ctx context.Context, txHash string, logIndex uint32) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM event_logs WHERE tx_hash = $1 AND log_index = $2)`
	if err := sqlx.GetContext(ctx, r.q, &exists, query, txHash, int32(logIndex)); err != nil {
		return false, fmt.Errorf("failed to check event log: %w", err)
	}
	return exists, nil
}

// HighestBlock returns the highest block number across all ledger rows.
func (r *EventLogRepo) HighestBlock(ctx context.Context) (uint64, bool, error) {
	var block sql.NullInt64
	if err := sqlx.GetContext(ctx, r.q, &block, `SELECT MAX(block_number) FROM event_logs`); err != nil {
		return 0, false, fmt.Errorf("failed to get highest block: %w", err)
	}
	if !block.Valid {
		return 0, false, nil
	}
	return uint64(block.Int64), true, nil
}

// Latest returns the most recently created ledger row.
func (r *EventLogRepo) Latest(ctx context.Context) (*domain.EventLog, error) {
	query := `
		SELECT id, tx_hash, log_index, block_number, event_type, processed, error, created_at
		FROM event_logs
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var row eventLogRow
	if err := sqlx.GetContext(ctx, r.q, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest event log: %w", err)
	}

	return &domain.EventLog{
		ID:          row.ID,
		TxHash:      row.TxHash,
		LogIndex:    uint32(row.LogIndex),
		BlockNumber: uint64(row.BlockNumber),
		EventType:   row.EventType,
		Processed:   row.Processed,
		Error:       row.Error,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// Count returns the total number of ledger rows.
func (r *EventLogRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM event_logs`); err != nil {
		return 0, fmt.Errorf("failed to count event logs: %w", err)
	}
	return count, nil
}
