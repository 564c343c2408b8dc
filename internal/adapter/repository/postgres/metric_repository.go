package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

var metricTables = map[domain.TimeBucket]string{
	domain.BucketHour:  "metrics_hourly",
	domain.BucketDay:   "metrics_daily",
	domain.BucketMonth: "metrics_monthly",
}

// MetricRepository implements domain.MetricRepository with one table per bucket.
type MetricRepository struct {
	db *sql.DB
}

func NewMetricRepository(db *sql.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

func tableFor(bucket domain.TimeBucket) (string, error) {
	t, ok := metricTables[bucket]
	if !ok {
		return "", fmt.Errorf("unknown time bucket %q", bucket)
	}
	return t, nil
}

func (r *MetricRepository) LatestTimeValue(ctx context.Context, bucket domain.TimeBucket) (time.Time, bool, error) {
	table, err := tableFor(bucket)
	if err != nil {
		return time.Time{}, false, err
	}
	var latest sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(time_value) FROM `+table).Scan(&latest); err != nil {
		return time.Time{}, false, err
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

func (r *MetricRepository) ListMetrics(ctx context.Context, bucket domain.TimeBucket, from, to time.Time) ([]domain.Metric, error) {
	table, err := tableFor(bucket)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT metric_type, time_value, dimension_user_id, dimension_company_id, dimension_recruiter_id, value, metadata
		FROM `+table+`
		WHERE time_value >= $1 AND time_value < $2
		ORDER BY time_value`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Metric
	for rows.Next() {
		m := domain.Metric{Bucket: bucket}
		var metadata []byte
		if err := rows.Scan(&m.MetricType, &m.TimeValue, &m.UserID, &m.CompanyID, &m.RecruiterID, &m.Value, &metadata); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s row: %w", table, err)
			}
		}
		m.TimeValue = m.TimeValue.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertMetric writes the row, replacing value and metadata when the natural
// key already exists.
func (r *MetricRepository) UpsertMetric(ctx context.Context, m domain.Metric) error {
	table, err := tableFor(m.Bucket)
	if err != nil {
		return err
	}
	metadata := []byte("{}")
	if len(m.Metadata) > 0 {
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metric metadata: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO `+table+` (metric_type, time_value, dimension_user_id, dimension_company_id, dimension_recruiter_id, value, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (metric_type, time_value, dimension_user_id, dimension_company_id, dimension_recruiter_id) DO UPDATE SET
			value = EXCLUDED.value,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()`,
		m.MetricType, m.TimeValue.UTC(), m.UserID, m.CompanyID, m.RecruiterID, m.Value, metadata,
	)
	return err
}
