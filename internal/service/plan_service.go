package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/digkill/TGRenameBot/internal/config"
	"github.com/digkill/TGRenameBot/internal/models"
)

const GiB = int64(1) << 30

var ErrPlanNotFound = errors.New("plan not found")

type PlanStore interface {
	List(ctx context.Context) ([]models.Plan, error)
	GetByTier(ctx context.Context, tier models.PlanTier) (*models.Plan, error)
	Create(ctx context.Context, plan *models.Plan) error
	Update(ctx context.Context, plan *models.Plan) error
}

type PlanService struct {
	repo     PlanStore
	defaults map[models.PlanTier]models.Plan
}

type UpdatePlanInput struct {
	Title        *string
	DailyLimitGB *int64
	Parallel     *int
	Price        *string
	IsActive     *bool
}

// DefaultPlans builds the plan table seeded at startup from configuration.
func DefaultPlans(cfg config.Config) []models.Plan {
	build := func(tier models.PlanTier, title string, limits config.PlanLimits) models.Plan {
		return models.Plan{
			Tier:            tier,
			Title:           title,
			DailyLimitBytes: limits.DailyLimitGB * GiB,
			ParallelLimit:   limits.Parallel,
			Price:           limits.Price,
			IsActive:        true,
		}
	}
	return []models.Plan{
		build(models.PlanFree, "Free", cfg.FreePlan),
		build(models.PlanSilver, "Silver", cfg.SilverPlan),
		build(models.PlanGold, "Gold", cfg.GoldPlan),
	}
}

func NewPlanService(repo PlanStore, defaults []models.Plan) *PlanService {
	byTier := make(map[models.PlanTier]models.Plan, len(defaults))
	for _, p := range defaults {
		byTier[p.Tier] = p
	}
	return &PlanService{repo: repo, defaults: byTier}
}

// EnsureDefaultPlans inserts any configured plan that is not stored yet.
// Plans edited through the admin API are left as they are.
func (s *PlanService) EnsureDefaultPlans(ctx context.Context) error {
	for _, plan := range s.defaults {
		p := plan
		if err := s.repo.Create(ctx, &p); err != nil {
			return fmt.Errorf("create default plan %s: %w", plan.Tier, err)
		}
	}
	return nil
}

func (s *PlanService) List(ctx context.Context) ([]models.Plan, error) {
	return s.repo.List(ctx)
}

// Upgrades lists active paid plans, cheapest first.
func (s *PlanService) Upgrades(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Plan, 0, len(plans))
	for _, p := range plans {
		if p.IsActive && p.Tier != models.PlanFree {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get resolves a tier from storage, falling back to the configured table.
func (s *PlanService) Get(ctx context.Context, tier models.PlanTier) (models.Plan, error) {
	plan, err := s.repo.GetByTier(ctx, tier)
	if err != nil {
		return models.Plan{}, err
	}
	if plan != nil {
		return *plan, nil
	}
	if def, ok := s.defaults[tier]; ok {
		return def, nil
	}
	return models.Plan{}, ErrPlanNotFound
}

func (s *PlanService) Update(ctx context.Context, tier models.PlanTier, input UpdatePlanInput) (*models.Plan, error) {
	existing, err := s.repo.GetByTier(ctx, tier)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPlanNotFound
	}
	if input.Title != nil && *input.Title != "" {
		existing.Title = *input.Title
	}
	if input.DailyLimitGB != nil {
		if *input.DailyLimitGB <= 0 {
			return nil, fmt.Errorf("daily limit must be positive")
		}
		existing.DailyLimitBytes = *input.DailyLimitGB * GiB
	}
	if input.Parallel != nil {
		if *input.Parallel <= 0 {
			return nil, fmt.Errorf("parallel limit must be positive")
		}
		existing.ParallelLimit = *input.Parallel
	}
	if input.Price != nil {
		existing.Price = *input.Price
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}
