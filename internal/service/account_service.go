package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/TGRenameBot/internal/models"
)

var ErrQuotaExceeded = errors.New("daily upload limit exceeded")

type AccountStore interface {
	FindByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error)
	Create(ctx context.Context, a *models.Account) error
	SetPlan(ctx context.Context, telegramID int64, plan models.Plan, expiresAt *time.Time) error
	ResetDaily(ctx context.Context, telegramID int64, day time.Time) error
	RecordUpload(ctx context.Context, telegramID int64, size int64, now time.Time) error
	SaveOperation(ctx context.Context, telegramID int64, expectedID string, op *models.Operation) error
	ClearOperation(ctx context.Context, telegramID int64, operationID string) error
	SetDefaultThumbnail(ctx context.Context, telegramID int64, fileID, objectKey string) error
	SetDefaultCaption(ctx context.Context, telegramID int64, caption string) error
	Stats(ctx context.Context) (accounts int, activeOperations int, err error)
}

type AccountService struct {
	accounts AccountStore
	plans    *PlanService
	now      func() time.Time
}

func NewAccountService(accounts AccountStore, plans *PlanService, now func() time.Time) *AccountService {
	if now == nil {
		now = time.Now
	}
	return &AccountService{accounts: accounts, plans: plans, now: now}
}

// Ensure returns the account for telegramID, creating it on first contact.
// Older records get missing plan fields backfilled, expired paid plans fall
// back to free, and the daily counter restarts on a new UTC day.
func (s *AccountService) Ensure(ctx context.Context, telegramID int64) (*models.Account, error) {
	acc, err := s.accounts.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acc == nil {
		plan, err := s.plans.Get(ctx, models.PlanFree)
		if err != nil {
			return nil, fmt.Errorf("resolve default plan: %w", err)
		}
		err = s.accounts.Create(ctx, &models.Account{
			TelegramID:      telegramID,
			Plan:            plan.Tier,
			DailyLimitBytes: plan.DailyLimitBytes,
			ParallelLimit:   plan.ParallelLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		acc, err = s.accounts.FindByTelegramID(ctx, telegramID)
		if err != nil {
			return nil, fmt.Errorf("find account: %w", err)
		}
		if acc == nil {
			return nil, fmt.Errorf("account %d vanished after create", telegramID)
		}
	}

	now := s.now().UTC()
	if err := s.backfillPlan(ctx, acc, now); err != nil {
		return nil, err
	}

	today := startOfDay(now)
	if acc.LastUploadAt != nil && acc.LastUploadAt.Before(today) && acc.DailyUploadedBytes != 0 {
		if err := s.accounts.ResetDaily(ctx, telegramID, today); err != nil {
			return nil, fmt.Errorf("reset daily usage: %w", err)
		}
		acc.DailyUploadedBytes = 0
	}
	return acc, nil
}

func (s *AccountService) backfillPlan(ctx context.Context, acc *models.Account, now time.Time) error {
	tier := acc.Plan
	expires := acc.PlanExpiresAt
	switch {
	case tier == "":
		tier = models.PlanFree
	case expires != nil && expires.Before(now):
		tier, expires = models.PlanFree, nil
	case acc.DailyLimitBytes > 0 && acc.ParallelLimit > 0:
		return nil
	}
	plan, err := s.plans.Get(ctx, tier)
	if err != nil {
		return fmt.Errorf("resolve plan %s: %w", tier, err)
	}
	if err := s.accounts.SetPlan(ctx, acc.TelegramID, plan, expires); err != nil {
		return fmt.Errorf("backfill plan: %w", err)
	}
	acc.Plan = plan.Tier
	acc.DailyLimitBytes = plan.DailyLimitBytes
	acc.ParallelLimit = plan.ParallelLimit
	acc.PlanExpiresAt = expires
	return nil
}

// CheckQuota accepts size only if it fits into what is left of today's limit.
// Nothing is reserved.
func (s *AccountService) CheckQuota(acc *models.Account, size int64) error {
	if !acc.Fits(size) {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *AccountService) RecordUpload(ctx context.Context, telegramID int64, size int64) error {
	if err := s.accounts.RecordUpload(ctx, telegramID, size, s.now().UTC()); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

func (s *AccountService) SaveOperation(ctx context.Context, telegramID int64, expectedID string, op *models.Operation) error {
	if err := s.accounts.SaveOperation(ctx, telegramID, expectedID, op); err != nil {
		return fmt.Errorf("save operation: %w", err)
	}
	return nil
}

func (s *AccountService) ClearOperation(ctx context.Context, telegramID int64, operationID string) error {
	if err := s.accounts.ClearOperation(ctx, telegramID, operationID); err != nil {
		return fmt.Errorf("clear operation: %w", err)
	}
	return nil
}

func (s *AccountService) SetDefaultThumbnail(ctx context.Context, telegramID int64, fileID, objectKey string) error {
	return s.accounts.SetDefaultThumbnail(ctx, telegramID, fileID, objectKey)
}

func (s *AccountService) SetDefaultCaption(ctx context.Context, telegramID int64, caption string) error {
	return s.accounts.SetDefaultCaption(ctx, telegramID, caption)
}

// AssignPlan moves the account to tier. A nil expiresAt means no expiry.
func (s *AccountService) AssignPlan(ctx context.Context, telegramID int64, tier models.PlanTier, expiresAt *time.Time) (*models.Account, error) {
	plan, err := s.plans.Get(ctx, tier)
	if err != nil {
		return nil, err
	}
	if _, err := s.Ensure(ctx, telegramID); err != nil {
		return nil, err
	}
	if err := s.accounts.SetPlan(ctx, telegramID, plan, expiresAt); err != nil {
		return nil, fmt.Errorf("assign plan: %w", err)
	}
	return s.Ensure(ctx, telegramID)
}

// Find returns the stored account without creating it.
func (s *AccountService) Find(ctx context.Context, telegramID int64) (*models.Account, error) {
	return s.accounts.FindByTelegramID(ctx, telegramID)
}

func (s *AccountService) Stats(ctx context.Context) (int, int, error) {
	return s.accounts.Stats(ctx)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
