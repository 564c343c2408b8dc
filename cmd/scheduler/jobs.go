package main

import (
	"context"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/adapter/scheduler"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
	"github.com/V4T54L/marketplace-pulse/internal/pkg/config"
	"github.com/V4T54L/marketplace-pulse/internal/usecase"
)

const (
	jobHourlyRollup      = "hourly_rollup"
	jobDailyRollup       = "daily_rollup"
	jobMonthlyRollup     = "monthly_rollup"
	jobMarketplaceHealth = "marketplace_health"
	jobPresenceSnapshot  = "presence_snapshot"
)

// buildJobs binds each batch use case to its schedule.
func buildJobs(
	schedules config.ScheduleConfig,
	rollup *usecase.RollupUseCase,
	health *usecase.MarketplaceHealthUseCase,
	presence *usecase.PresenceUseCase,
	m *metrics.PipelineMetrics,
) []scheduler.Job {
	rollupJob := func(b domain.TimeBucket, run func(context.Context) (usecase.RollupResult, error)) func(context.Context) error {
		bucket := string(b)
		return func(ctx context.Context) error {
			res, err := run(ctx)
			m.RollupRows.WithLabelValues(bucket, "written").Add(float64(res.Written))
			m.RollupRows.WithLabelValues(bucket, "failed").Add(float64(res.Failed))
			return err
		}
	}

	return []scheduler.Job{
		{Name: jobHourlyRollup, Spec: schedules.HourlyRollup, Run: rollupJob(domain.BucketHour, rollup.RunHourly)},
		{Name: jobDailyRollup, Spec: schedules.DailyRollup, Run: rollupJob(domain.BucketDay, rollup.RunDaily)},
		{Name: jobMonthlyRollup, Spec: schedules.MonthlyRollup, Run: rollupJob(domain.BucketMonth, rollup.RunMonthly)},
		{Name: jobMarketplaceHealth, Spec: schedules.MarketplaceHealth, Run: func(ctx context.Context) error {
			_, err := health.ComputeYesterday(ctx)
			return err
		}},
		{Name: jobPresenceSnapshot, Spec: schedules.PresenceSnapshot, Run: presence.PersistSnapshot},
	}
}
