package postgres

import (
	"context"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// ReportRepo implements ports.ReportRepository with pgx.
type ReportRepo struct {
	db *DB
}

// NewReportRepo creates a new ReportRepo.
func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Create inserts a report. Client-supplied ids are kept so the durable
// fallback write stays idempotent; an empty id gets a generated one.
func (r *ReportRepo) Create(ctx context.Context, rep *domain.WorkReport) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO work_reports (id, plan_id, author, reported_at, trees_cut, volume_m3, notes, photo_urls)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			trees_cut = EXCLUDED.trees_cut, volume_m3 = EXCLUDED.volume_m3,
			notes = EXCLUDED.notes, photo_urls = EXCLUDED.photo_urls
		RETURNING id, created_at
	`, rep.ID, rep.PlanID, rep.Author, rep.ReportedAt, rep.TreesCut, rep.VolumeM3,
		rep.Notes, rep.PhotoURLs).
		Scan(&rep.ID, &rep.CreatedAt)
}

// GetByID returns a report by id.
func (r *ReportRepo) GetByID(ctx context.Context, id string) (*domain.WorkReport, error) {
	var rep domain.WorkReport
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, COALESCE(plan_id, ''), author, reported_at, trees_cut,
		       volume_m3, COALESCE(notes, ''), COALESCE(photo_urls, '{}'), created_at
		FROM work_reports WHERE id = $1
	`, id).Scan(
		&rep.ID, &rep.PlanID, &rep.Author, &rep.ReportedAt, &rep.TreesCut,
		&rep.VolumeM3, &rep.Notes, &rep.PhotoURLs, &rep.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// ListByPlan returns reports for a plan, newest first. An empty planID
// lists all reports.
func (r *ReportRepo) ListByPlan(ctx context.Context, planID string) ([]domain.WorkReport, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, COALESCE(plan_id, ''), author, reported_at, trees_cut,
		       volume_m3, COALESCE(notes, ''), COALESCE(photo_urls, '{}'), created_at
		FROM work_reports
		WHERE $1 = '' OR plan_id = $1
		ORDER BY reported_at DESC
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.WorkReport
	for rows.Next() {
		var rep domain.WorkReport
		if err := rows.Scan(
			&rep.ID, &rep.PlanID, &rep.Author, &rep.ReportedAt, &rep.TreesCut,
			&rep.VolumeM3, &rep.Notes, &rep.PhotoURLs, &rep.CreatedAt,
		); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// Delete removes a report.
func (r *ReportRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM work_reports WHERE id = $1`, id)
	return err
}
