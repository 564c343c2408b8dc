package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// RollupResult summarizes one stage run.
type RollupResult struct {
	Bucket     domain.TimeBucket
	From       time.Time
	To         time.Time
	SourceRows int
	Written    int
	Failed     int
}

// RollupUseCase folds raw events into hourly metrics, hourly into daily, and
// daily into monthly. Every stage recomputes whole buckets and upserts them,
// so reruns over unchanged input leave the tables unchanged.
type RollupUseCase struct {
	events  domain.EventStore
	metrics domain.MetricRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewRollupUseCase creates the metric aggregator.
func NewRollupUseCase(events domain.EventStore, metrics domain.MetricRepository, logger *slog.Logger) *RollupUseCase {
	return &RollupUseCase{
		events:  events,
		metrics: metrics,
		logger:  logger.With("component", "rollup"),
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (uc *RollupUseCase) WithClock(now func() time.Time) *RollupUseCase {
	uc.now = now
	return uc
}

// RunHourly aggregates raw events into the hourly table.
func (uc *RollupUseCase) RunHourly(ctx context.Context) (RollupResult, error) {
	return uc.run(ctx, domain.BucketHour, func(from, to time.Time) ([]domain.Metric, error) {
		events, err := uc.events.ListEvents(ctx, from, to)
		if err != nil {
			return nil, err
		}
		rows := make([]domain.Metric, 0, len(events))
		for _, e := range events {
			rows = append(rows, domain.Metric{
				MetricKey: domain.MetricKey{
					MetricType: MetricTypeFor(e.EventType),
					TimeValue:  e.CreatedAt,
					Dimensions: eventDimensions(e),
				},
				Value:    1,
				Metadata: numericMetadata(e.Metadata),
			})
		}
		return rows, nil
	})
}

// RunDaily aggregates hourly metrics into the daily table.
func (uc *RollupUseCase) RunDaily(ctx context.Context) (RollupResult, error) {
	return uc.run(ctx, domain.BucketDay, func(from, to time.Time) ([]domain.Metric, error) {
		return uc.metrics.ListMetrics(ctx, domain.BucketHour, from, to)
	})
}

// RunMonthly aggregates daily metrics into the monthly table.
func (uc *RollupUseCase) RunMonthly(ctx context.Context) (RollupResult, error) {
	return uc.run(ctx, domain.BucketMonth, func(from, to time.Time) ([]domain.Metric, error) {
		return uc.metrics.ListMetrics(ctx, domain.BucketDay, from, to)
	})
}

// defaultStart is where a stage begins when its table is still empty.
func defaultStart(bucket domain.TimeBucket, current time.Time) time.Time {
	switch bucket {
	case domain.BucketHour:
		return current.Add(-24 * time.Hour)
	case domain.BucketDay:
		return current.AddDate(0, 0, -7)
	default:
		return current.AddDate(0, -6, 0)
	}
}

func (uc *RollupUseCase) run(ctx context.Context, bucket domain.TimeBucket, load func(from, to time.Time) ([]domain.Metric, error)) (RollupResult, error) {
	to := bucket.Truncate(uc.now())
	res := RollupResult{Bucket: bucket, To: to}

	watermark, ok, err := uc.metrics.LatestTimeValue(ctx, bucket)
	if err != nil {
		return res, fmt.Errorf("failed to read %s watermark: %w", bucket, err)
	}
	from := defaultStart(bucket, to)
	if ok {
		// The watermark bucket is recomputed; it may have been written while
		// late events for it were still arriving.
		from = bucket.Truncate(watermark)
	}
	res.From = from

	if !from.Before(to) {
		uc.logger.Debug("rollup up to date", "bucket", bucket, "watermark", from)
		return res, nil
	}

	rows, err := load(from, to)
	if err != nil {
		return res, fmt.Errorf("failed to load %s rollup source: %w", bucket, err)
	}
	res.SourceRows = len(rows)
	if len(rows) == 0 {
		uc.logger.Debug("no source rows for rollup", "bucket", bucket, "from", from, "to", to)
		return res, nil
	}

	for _, m := range fold(bucket, rows, to) {
		if err := uc.metrics.UpsertMetric(ctx, m); err != nil {
			res.Failed++
			uc.logger.Error("failed to upsert metric, skipping row",
				"bucket", bucket,
				"metric_type", m.MetricType,
				"time_value", m.TimeValue,
				"error", err,
			)
			continue
		}
		res.Written++
	}

	uc.logger.Info("rollup completed",
		"bucket", bucket,
		"from", from,
		"to", to,
		"source_rows", res.SourceRows,
		"written", res.Written,
		"failed", res.Failed,
	)
	return res, nil
}

// fold groups rows by metric type, target bucket time and dimensions, summing
// values and metadata. Rows at or past the open bucket are dropped.
func fold(bucket domain.TimeBucket, rows []domain.Metric, openBucket time.Time) []domain.Metric {
	groups := make(map[domain.MetricKey]*domain.Metric)
	order := make([]domain.MetricKey, 0)

	for _, r := range rows {
		key := r.MetricKey
		key.TimeValue = bucket.Truncate(r.TimeValue)
		if !key.TimeValue.Before(openBucket) {
			continue
		}

		agg, ok := groups[key]
		if !ok {
			agg = &domain.Metric{MetricKey: key, Bucket: bucket}
			groups[key] = agg
			order = append(order, key)
		}
		agg.Value += r.Value
		for k, v := range r.Metadata {
			if agg.Metadata == nil {
				agg.Metadata = make(map[string]float64)
			}
			agg.Metadata[k] += v
		}
	}

	out := make([]domain.Metric, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}
