package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/TGRenameBot/internal/models"
)

var (
	// ErrStaleOperation means the stored operation is not the one the caller
	// expected, so the write was dropped.
	ErrStaleOperation = errors.New("stale operation")
	ErrNotFound       = errors.New("not found")
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `telegram_id, plan, daily_uploaded_bytes, last_upload_at, daily_limit_bytes, parallel_limit, plan_expires_at,
COALESCE(default_thumbnail_id, ''), COALESCE(default_thumbnail_key, ''), COALESCE(default_caption, ''), operation, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a          models.Account
		lastUpload sql.NullTime
		expires    sql.NullTime
		operation  []byte
	)
	if err := row.Scan(&a.TelegramID, &a.Plan, &a.DailyUploadedBytes, &lastUpload, &a.DailyLimitBytes, &a.ParallelLimit, &expires,
		&a.DefaultThumbnailID, &a.DefaultThumbnailKey, &a.DefaultCaption, &operation, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if lastUpload.Valid {
		t := lastUpload.Time.UTC()
		a.LastUploadAt = &t
	}
	if expires.Valid {
		t := expires.Time.UTC()
		a.PlanExpiresAt = &t
	}
	if len(operation) > 0 && string(operation) != "null" {
		var op models.Operation
		if err := json.Unmarshal(operation, &op); err != nil {
			return nil, fmt.Errorf("decode operation: %w", err)
		}
		a.Operation = &op
	}
	return &a, nil
}

func (r *AccountRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE telegram_id = ?`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

// Create inserts the account unless another request already did.
func (r *AccountRepository) Create(ctx context.Context, a *models.Account) error {
	const query = `
INSERT IGNORE INTO accounts (telegram_id, plan, daily_uploaded_bytes, daily_limit_bytes, parallel_limit)
VALUES (?, ?, 0, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, a.TelegramID, a.Plan, a.DailyLimitBytes, a.ParallelLimit); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// SetPlan writes plan-derived quota fields. It doubles as the backfill for
// rows created before those fields were tracked.
func (r *AccountRepository) SetPlan(ctx context.Context, telegramID int64, plan models.Plan, expiresAt *time.Time) error {
	const query = `
UPDATE accounts SET plan = ?, daily_limit_bytes = ?, parallel_limit = ?, plan_expires_at = ?, updated_at = NOW()
WHERE telegram_id = ?`
	res, err := r.db.ExecContext(ctx, query, plan.Tier, plan.DailyLimitBytes, plan.ParallelLimit, nullTime(expiresAt), telegramID)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return expectRow(res, ErrNotFound)
}

// ResetDaily zeroes the counter if the last upload happened before day.
func (r *AccountRepository) ResetDaily(ctx context.Context, telegramID int64, day time.Time) error {
	const query = `
UPDATE accounts SET daily_uploaded_bytes = 0, updated_at = NOW()
WHERE telegram_id = ? AND last_upload_at IS NOT NULL AND last_upload_at < ?`
	if _, err := r.db.ExecContext(ctx, query, telegramID, day); err != nil {
		return fmt.Errorf("reset daily usage: %w", err)
	}
	return nil
}

// RecordUpload debits size bytes in one statement. The counter restarts from
// zero when the previous upload belongs to an earlier day.
func (r *AccountRepository) RecordUpload(ctx context.Context, telegramID int64, size int64, now time.Time) error {
	const query = `
UPDATE accounts
SET daily_uploaded_bytes = IF(last_upload_at IS NULL OR last_upload_at < ?, 0, daily_uploaded_bytes) + ?,
    last_upload_at = ?, updated_at = NOW()
WHERE telegram_id = ?`
	res, err := r.db.ExecContext(ctx, query, startOfDay(now), size, now, telegramID)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return expectRow(res, ErrNotFound)
}

// SaveOperation replaces the stored operation only if its id still equals
// expectedID (empty means "no operation").
func (r *AccountRepository) SaveOperation(ctx context.Context, telegramID int64, expectedID string, op *models.Operation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}
	const query = `
UPDATE accounts SET operation_id = ?, operation = ?, updated_at = NOW()
WHERE telegram_id = ? AND operation_id <=> ?`
	res, err := r.db.ExecContext(ctx, query, op.ID, string(payload), telegramID, nullString(expectedID))
	if err != nil {
		return fmt.Errorf("save operation: %w", err)
	}
	return expectRow(res, ErrStaleOperation)
}

func (r *AccountRepository) ClearOperation(ctx context.Context, telegramID int64, operationID string) error {
	const query = `
UPDATE accounts SET operation_id = NULL, operation = NULL, updated_at = NOW()
WHERE telegram_id = ? AND operation_id = ?`
	res, err := r.db.ExecContext(ctx, query, telegramID, operationID)
	if err != nil {
		return fmt.Errorf("clear operation: %w", err)
	}
	return expectRow(res, ErrStaleOperation)
}

func (r *AccountRepository) SetDefaultThumbnail(ctx context.Context, telegramID int64, fileID, objectKey string) error {
	const query = `
UPDATE accounts SET default_thumbnail_id = NULLIF(?, ''), default_thumbnail_key = NULLIF(?, ''), updated_at = NOW()
WHERE telegram_id = ?`
	res, err := r.db.ExecContext(ctx, query, fileID, objectKey, telegramID)
	if err != nil {
		return fmt.Errorf("set default thumbnail: %w", err)
	}
	return expectRow(res, ErrNotFound)
}

func (r *AccountRepository) SetDefaultCaption(ctx context.Context, telegramID int64, caption string) error {
	const query = `UPDATE accounts SET default_caption = NULLIF(?, ''), updated_at = NOW() WHERE telegram_id = ?`
	res, err := r.db.ExecContext(ctx, query, caption, telegramID)
	if err != nil {
		return fmt.Errorf("set default caption: %w", err)
	}
	return expectRow(res, ErrNotFound)
}

func (r *AccountRepository) Stats(ctx context.Context) (accounts int, activeOperations int, err error) {
	const query = `SELECT COUNT(*), COUNT(operation_id) FROM accounts`
	if err := r.db.QueryRowContext(ctx, query).Scan(&accounts, &activeOperations); err != nil {
		return 0, 0, fmt.Errorf("account stats: %w", err)
	}
	return accounts, activeOperations, nil
}

func expectRow(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
