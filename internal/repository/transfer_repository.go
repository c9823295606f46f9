package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/TGRenameBot/internal/models"
)

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, log *models.TransferLog) error {
	const query = `
INSERT INTO transfer_logs (user_id, operation_id, kind, original_name, new_name, size_bytes, status, error)
VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, log.UserID, log.OperationID, log.Kind, log.OriginalName, log.NewName, log.SizeBytes, log.Status, log.Error)
	if err != nil {
		return fmt.Errorf("insert transfer log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("transfer log last insert id: %w", err)
	}
	log.ID = id
	return nil
}

func (r *TransferRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.TransferLog, error) {
	const query = `
SELECT id, user_id, operation_id, kind, original_name, new_name, size_bytes, status, COALESCE(error, ''), created_at
FROM transfer_logs
WHERE user_id = ?
ORDER BY id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transfer logs: %w", err)
	}
	defer rows.Close()

	var logs []models.TransferLog
	for rows.Next() {
		var l models.TransferLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.OperationID, &l.Kind, &l.OriginalName, &l.NewName, &l.SizeBytes, &l.Status, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
