package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// HealthRepository answers the marketplace health sub-queries from the
// marketplace's own tables and stores the daily snapshot. It implements both
// domain.HealthSource and domain.HealthRepository.
type HealthRepository struct {
	db *sql.DB
}

func NewHealthRepository(db *sql.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

// PlacementStats counts placements created in [from, to). Time to hire is
// measured from the originating application.
func (r *HealthRepository) PlacementStats(ctx context.Context, from, to time.Time) (domain.PlacementStats, error) {
	var s domain.PlacementStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE p.status = 'completed'),
			COALESCE(SUM(p.fee_amount) FILTER (WHERE p.status = 'completed'), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (p.created_at - a.created_at)) / 86400.0), 0)
		FROM placements p
		LEFT JOIN applications a ON a.id = p.application_id
		WHERE p.created_at >= $1 AND p.created_at < $2`,
		from.UTC(), to.UTC(),
	).Scan(&s.Total, &s.Completed, &s.TotalFees, &s.AvgTimeToHireDays)
	return s, err
}

func (r *HealthRepository) ApplicationCount(ctx context.Context, from, to time.Time) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM applications WHERE created_at >= $1 AND created_at < $2`, from.UTC(), to.UTC())
}

// ActiveRecruiterCount counts recruiters with an application or placement in the window.
func (r *HealthRepository) ActiveRecruiterCount(ctx context.Context, from, to time.Time) (int64, error) {
	return r.count(ctx, `
		SELECT COUNT(DISTINCT recruiter_id) FROM (
			SELECT recruiter_id FROM applications WHERE created_at >= $1 AND created_at < $2
			UNION
			SELECT recruiter_id FROM placements WHERE created_at >= $1 AND created_at < $2
		) active
		WHERE recruiter_id IS NOT NULL`,
		from.UTC(), to.UTC(),
	)
}

func (r *HealthRepository) ActiveJobCount(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'active'`)
}

func (r *HealthRepository) FraudSignalCount(ctx context.Context, from, to time.Time) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM fraud_signals WHERE created_at >= $1 AND created_at < $2`, from.UTC(), to.UTC())
}

func (r *HealthRepository) DisputedPlacementCount(ctx context.Context, from, to time.Time) (int64, error) {
	return r.count(ctx, `
		SELECT COUNT(*) FROM placements
		WHERE status = 'disputed' AND updated_at >= $1 AND updated_at < $2`,
		from.UTC(), to.UTC(),
	)
}

func (r *HealthRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// UpsertSnapshot writes the day's row, replacing it when the job is rerun.
func (r *HealthRepository) UpsertSnapshot(ctx context.Context, s domain.MarketplaceHealthSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO marketplace_health_daily (
			metric_date, total_placements, completed_placements, total_applications, total_fees,
			avg_time_to_hire_days, active_recruiters, active_jobs, fraud_signals, disputed_placements,
			hire_rate, completion_rate, avg_fee_per_placement, avg_applications_per_job,
			recruiter_retention_rate, health_score, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (metric_date) DO UPDATE SET
			total_placements = EXCLUDED.total_placements,
			completed_placements = EXCLUDED.completed_placements,
			total_applications = EXCLUDED.total_applications,
			total_fees = EXCLUDED.total_fees,
			avg_time_to_hire_days = EXCLUDED.avg_time_to_hire_days,
			active_recruiters = EXCLUDED.active_recruiters,
			active_jobs = EXCLUDED.active_jobs,
			fraud_signals = EXCLUDED.fraud_signals,
			disputed_placements = EXCLUDED.disputed_placements,
			hire_rate = EXCLUDED.hire_rate,
			completion_rate = EXCLUDED.completion_rate,
			avg_fee_per_placement = EXCLUDED.avg_fee_per_placement,
			avg_applications_per_job = EXCLUDED.avg_applications_per_job,
			recruiter_retention_rate = EXCLUDED.recruiter_retention_rate,
			health_score = EXCLUDED.health_score,
			updated_at = NOW()`,
		s.MetricDate.UTC().Format(time.DateOnly),
		s.TotalPlacements, s.CompletedPlacements, s.TotalApplications, s.TotalFees,
		s.AvgTimeToHireDays, s.ActiveRecruiters, s.ActiveJobs, s.FraudSignals, s.DisputedPlacements,
		s.HireRate, s.CompletionRate, s.AvgFeePerPlacement, s.AvgApplicationsPerJob,
		s.RecruiterRetentionRate, s.HealthScore,
	)
	return err
}
