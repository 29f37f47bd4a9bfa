package postgres

import (
	"context"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// PlanRepo implements ports.PlanRepository with pgx.
type PlanRepo struct {
	db *DB
}

// NewPlanRepo creates a new PlanRepo.
func NewPlanRepo(db *DB) *PlanRepo {
	return &PlanRepo{db: db}
}

// Create inserts a plan and fills in the generated id and timestamps.
func (r *PlanRepo) Create(ctx context.Context, p *domain.WorkPlan) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO work_plans (title, stand_id, species, starts_on, ends_on, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, p.Title, p.StandID, p.Species, p.StartsOn, p.EndsOn, p.Status, p.Notes).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID returns a plan by id.
func (r *PlanRepo) GetByID(ctx context.Context, id string) (*domain.WorkPlan, error) {
	var p domain.WorkPlan
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, title, stand_id, COALESCE(species, ''), starts_on, ends_on,
		       status, COALESCE(notes, ''), created_at, updated_at
		FROM work_plans WHERE id = $1
	`, id).Scan(
		&p.ID, &p.Title, &p.StandID, &p.Species, &p.StartsOn, &p.EndsOn,
		&p.Status, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns all plans, newest first.
func (r *PlanRepo) List(ctx context.Context) ([]domain.WorkPlan, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, title, stand_id, COALESCE(species, ''), starts_on, ends_on,
		       status, COALESCE(notes, ''), created_at, updated_at
		FROM work_plans
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.WorkPlan
	for rows.Next() {
		var p domain.WorkPlan
		if err := rows.Scan(
			&p.ID, &p.Title, &p.StandID, &p.Species, &p.StartsOn, &p.EndsOn,
			&p.Status, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Update rewrites a plan's mutable fields.
func (r *PlanRepo) Update(ctx context.Context, p *domain.WorkPlan) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE work_plans
		SET title = $2, stand_id = $3, species = $4, starts_on = $5,
		    ends_on = $6, status = $7, notes = $8, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Title, p.StandID, p.Species, p.StartsOn, p.EndsOn, p.Status, p.Notes)
	return err
}

// Delete removes a plan.
func (r *PlanRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM work_plans WHERE id = $1`, id)
	return err
}
