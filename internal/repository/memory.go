package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/digkill/TGRenameBot/internal/models"
)

// MemoryAccountRepository keeps accounts in process memory. It backs
// STORE_DRIVER=memory and the unit tests, with the same fencing semantics
// as the MySQL repository.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	now      func() time.Time
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts: make(map[int64]*models.Account),
		now:      time.Now,
	}
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.Operation = a.Operation.Clone()
	if a.LastUploadAt != nil {
		t := *a.LastUploadAt
		c.LastUploadAt = &t
	}
	if a.PlanExpiresAt != nil {
		t := *a.PlanExpiresAt
		c.PlanExpiresAt = &t
	}
	return &c
}

func (r *MemoryAccountRepository) FindByTelegramID(_ context.Context, telegramID int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[telegramID]
	if !ok {
		return nil, nil
	}
	return cloneAccount(a), nil
}

func (r *MemoryAccountRepository) Create(_ context.Context, a *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.TelegramID]; ok {
		return nil
	}
	now := r.now().UTC()
	stored := cloneAccount(a)
	stored.DailyUploadedBytes = 0
	stored.Operation = nil
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.accounts[a.TelegramID] = stored
	return nil
}

// Put stores a as-is. Tests use it to seed records such as ones written by
// older releases.
func (r *MemoryAccountRepository) Put(a *models.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.TelegramID] = cloneAccount(a)
}

func (r *MemoryAccountRepository) update(telegramID int64, fn func(a *models.Account) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[telegramID]
	if !ok {
		return ErrNotFound
	}
	if err := fn(a); err != nil {
		return err
	}
	a.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryAccountRepository) SetPlan(_ context.Context, telegramID int64, plan models.Plan, expiresAt *time.Time) error {
	return r.update(telegramID, func(a *models.Account) error {
		a.Plan = plan.Tier
		a.DailyLimitBytes = plan.DailyLimitBytes
		a.ParallelLimit = plan.ParallelLimit
		a.PlanExpiresAt = nil
		if expiresAt != nil {
			t := expiresAt.UTC()
			a.PlanExpiresAt = &t
		}
		return nil
	})
}

func (r *MemoryAccountRepository) ResetDaily(_ context.Context, telegramID int64, day time.Time) error {
	err := r.update(telegramID, func(a *models.Account) error {
		if a.LastUploadAt != nil && a.LastUploadAt.Before(day) {
			a.DailyUploadedBytes = 0
		}
		return nil
	})
	if err == ErrNotFound {
		return nil
	}
	return err
}

func (r *MemoryAccountRepository) RecordUpload(_ context.Context, telegramID int64, size int64, now time.Time) error {
	return r.update(telegramID, func(a *models.Account) error {
		if a.LastUploadAt == nil || a.LastUploadAt.Before(startOfDay(now)) {
			a.DailyUploadedBytes = 0
		}
		a.DailyUploadedBytes += size
		t := now.UTC()
		a.LastUploadAt = &t
		return nil
	})
}

func (r *MemoryAccountRepository) SaveOperation(_ context.Context, telegramID int64, expectedID string, op *models.Operation) error {
	return r.update(telegramID, func(a *models.Account) error {
		current := ""
		if a.Operation != nil {
			current = a.Operation.ID
		}
		if current != expectedID {
			return ErrStaleOperation
		}
		a.Operation = op.Clone()
		return nil
	})
}

func (r *MemoryAccountRepository) ClearOperation(_ context.Context, telegramID int64, operationID string) error {
	return r.update(telegramID, func(a *models.Account) error {
		if a.Operation == nil || a.Operation.ID != operationID {
			return ErrStaleOperation
		}
		a.Operation = nil
		return nil
	})
}

func (r *MemoryAccountRepository) SetDefaultThumbnail(_ context.Context, telegramID int64, fileID, objectKey string) error {
	return r.update(telegramID, func(a *models.Account) error {
		a.DefaultThumbnailID = fileID
		a.DefaultThumbnailKey = objectKey
		return nil
	})
}

func (r *MemoryAccountRepository) SetDefaultCaption(_ context.Context, telegramID int64, caption string) error {
	return r.update(telegramID, func(a *models.Account) error {
		a.DefaultCaption = caption
		return nil
	})
}

func (r *MemoryAccountRepository) Stats(_ context.Context) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := 0
	for _, a := range r.accounts {
		if a.Operation != nil {
			active++
		}
	}
	return len(r.accounts), active, nil
}

type MemoryPlanRepository struct {
	mu    sync.Mutex
	plans map[models.PlanTier]models.Plan
}

func NewMemoryPlanRepository() *MemoryPlanRepository {
	return &MemoryPlanRepository{plans: make(map[models.PlanTier]models.Plan)}
}

func (r *MemoryPlanRepository) List(_ context.Context) ([]models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plans := make([]models.Plan, 0, len(r.plans))
	for _, p := range r.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].DailyLimitBytes < plans[j].DailyLimitBytes })
	return plans, nil
}

func (r *MemoryPlanRepository) GetByTier(_ context.Context, tier models.PlanTier) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[tier]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryPlanRepository) Create(_ context.Context, plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[plan.Tier]; ok {
		return nil
	}
	p := *plan
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	r.plans[plan.Tier] = p
	return nil
}

func (r *MemoryPlanRepository) Update(_ context.Context, plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.plans[plan.Tier]
	if !ok {
		return ErrNotFound
	}
	p := *plan
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	r.plans[plan.Tier] = p
	return nil
}

type MemoryTransferRepository struct {
	mu     sync.Mutex
	nextID int64
	logs   []models.TransferLog
}

func NewMemoryTransferRepository() *MemoryTransferRepository {
	return &MemoryTransferRepository{}
}

func (r *MemoryTransferRepository) Create(_ context.Context, log *models.TransferLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	log.ID = r.nextID
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	r.logs = append(r.logs, *log)
	return nil
}

func (r *MemoryTransferRepository) ListByUser(_ context.Context, userID int64, limit int) ([]models.TransferLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TransferLog
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.logs[i].UserID == userID {
			out = append(out, r.logs[i])
		}
	}
	return out, nil
}
