package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/core/ports"
)

// PlanService handles work-plan business logic.
type PlanService struct {
	plans ports.PlanRepository
	cache ports.CacheService
}

// NewPlanService creates a new PlanService.
func NewPlanService(plans ports.PlanRepository, cache ports.CacheService) *PlanService {
	return &PlanService{plans: plans, cache: cache}
}

// Create validates and stores a new plan.
func (s *PlanService) Create(ctx context.Context, plan *domain.WorkPlan) error {
	if plan.Title == "" {
		return fmt.Errorf("plan title must not be empty")
	}
	if !plan.EndsOn.IsZero() && plan.EndsOn.Before(plan.StartsOn) {
		return fmt.Errorf("plan ends before it starts")
	}
	if plan.Status == "" {
		plan.Status = "draft"
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return err
	}
	s.invalidateList(ctx)
	return nil
}

// GetByID returns a single plan.
func (s *PlanService) GetByID(ctx context.Context, id string) (*domain.WorkPlan, error) {
	cacheKey := "plans:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var plan domain.WorkPlan
			if err := json.Unmarshal(data, &plan); err == nil {
				return &plan, nil
			}
		}
	}

	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(plan); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}
	return plan, nil
}

// List returns all plans.
func (s *PlanService) List(ctx context.Context) ([]domain.WorkPlan, error) {
	cacheKey := "plans:all"
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var plans []domain.WorkPlan
			if err := json.Unmarshal(data, &plans); err == nil {
				return plans, nil
			}
		}
	}

	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(plans); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 60)
		}
	}
	return plans, nil
}

// Update rewrites an existing plan.
func (s *PlanService) Update(ctx context.Context, plan *domain.WorkPlan) error {
	if plan.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	if err := s.plans.Update(ctx, plan); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "plans:id:"+plan.ID)
	}
	s.invalidateList(ctx)
	return nil
}

// Delete removes a plan.
func (s *PlanService) Delete(ctx context.Context, id string) error {
	if err := s.plans.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "plans:id:"+id)
	}
	s.invalidateList(ctx)
	return nil
}

func (s *PlanService) invalidateList(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "plans:all")
	}
}
