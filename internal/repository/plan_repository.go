package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/TGRenameBot/internal/models"
)

type PlanRepository struct {
	db *sql.DB
}

func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `tier, title, daily_limit_bytes, parallel_limit, COALESCE(price, ''), is_active, created_at, updated_at`

func (r *PlanRepository) List(ctx context.Context) ([]models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans ORDER BY daily_limit_bytes ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var plan models.Plan
		if err := rows.Scan(&plan.Tier, &plan.Title, &plan.DailyLimitBytes, &plan.ParallelLimit, &plan.Price, &plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) GetByTier(ctx context.Context, tier models.PlanTier) (*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE tier = ?`
	var plan models.Plan
	err := r.db.QueryRowContext(ctx, query, tier).Scan(&plan.Tier, &plan.Title, &plan.DailyLimitBytes, &plan.ParallelLimit, &plan.Price, &plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &plan, nil
}

// Create inserts the plan, leaving an existing row with the same tier untouched.
func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	const query = `
INSERT IGNORE INTO plans (tier, title, daily_limit_bytes, parallel_limit, price, is_active)
VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)`
	if _, err := r.db.ExecContext(ctx, query, plan.Tier, plan.Title, plan.DailyLimitBytes, plan.ParallelLimit, plan.Price, plan.IsActive); err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) Update(ctx context.Context, plan *models.Plan) error {
	const query = `
UPDATE plans
SET title = ?, daily_limit_bytes = ?, parallel_limit = ?, price = NULLIF(?, ''), is_active = ?, updated_at = NOW()
WHERE tier = ?`
	res, err := r.db.ExecContext(ctx, query, plan.Title, plan.DailyLimitBytes, plan.ParallelLimit, plan.Price, plan.IsActive, plan.Tier)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return expectRow(res, ErrNotFound)
}
