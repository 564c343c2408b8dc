package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

const (
	activeRecruiterWindow = 30 * 24 * time.Hour

	// recruiterRetentionPlaceholder stands in for a retention rate that is not
	// computed yet.
	// TODO: derive from recruiters active in both this and the previous 30-day window.
	recruiterRetentionPlaceholder = 85.0
)

// MarketplaceHealthUseCase computes the daily platform KPI snapshot.
type MarketplaceHealthUseCase struct {
	source domain.HealthSource
	repo   domain.HealthRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewMarketplaceHealthUseCase(source domain.HealthSource, repo domain.HealthRepository, logger *slog.Logger) *MarketplaceHealthUseCase {
	return &MarketplaceHealthUseCase{
		source: source,
		repo:   repo,
		logger: logger.With("component", "marketplace_health"),
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (uc *MarketplaceHealthUseCase) WithClock(now func() time.Time) *MarketplaceHealthUseCase {
	uc.now = now
	return uc
}

// ComputeYesterday computes and stores the snapshot for the previous UTC day.
func (uc *MarketplaceHealthUseCase) ComputeYesterday(ctx context.Context) (domain.MarketplaceHealthSnapshot, error) {
	today := domain.BucketDay.Truncate(uc.now())
	return uc.Compute(ctx, today.AddDate(0, 0, -1))
}

// Compute runs every sub-query for the day concurrently. If any of them
// fails nothing is written and the error is returned.
func (uc *MarketplaceHealthUseCase) Compute(ctx context.Context, day time.Time) (domain.MarketplaceHealthSnapshot, error) {
	from := domain.BucketDay.Truncate(day)
	to := from.AddDate(0, 0, 1)

	var (
		placements                                  domain.PlacementStats
		applications, recruiters, jobs, fraud, disp int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		placements, err = uc.source.PlacementStats(gctx, from, to)
		return wrap("placement stats", err)
	})
	g.Go(func() (err error) {
		applications, err = uc.source.ApplicationCount(gctx, from, to)
		return wrap("application count", err)
	})
	g.Go(func() (err error) {
		recruiters, err = uc.source.ActiveRecruiterCount(gctx, to.Add(-activeRecruiterWindow), to)
		return wrap("active recruiters", err)
	})
	g.Go(func() (err error) {
		jobs, err = uc.source.ActiveJobCount(gctx)
		return wrap("active jobs", err)
	})
	g.Go(func() (err error) {
		fraud, err = uc.source.FraudSignalCount(gctx, from, to)
		return wrap("fraud signals", err)
	})
	g.Go(func() (err error) {
		disp, err = uc.source.DisputedPlacementCount(gctx, from, to)
		return wrap("disputed placements", err)
	})
	if err := g.Wait(); err != nil {
		uc.logger.Error("marketplace health computation aborted", "date", from.Format(time.DateOnly), "error", err)
		return domain.MarketplaceHealthSnapshot{}, err
	}

	snap := domain.MarketplaceHealthSnapshot{
		MetricDate:             from,
		TotalPlacements:        placements.Total,
		CompletedPlacements:    placements.Completed,
		TotalApplications:      applications,
		TotalFees:              placements.TotalFees,
		AvgTimeToHireDays:      placements.AvgTimeToHireDays,
		ActiveRecruiters:       recruiters,
		ActiveJobs:             jobs,
		FraudSignals:           fraud,
		DisputedPlacements:     disp,
		HireRate:               percent(float64(placements.Total), float64(applications)),
		CompletionRate:         percent(float64(placements.Completed), float64(placements.Total)),
		AvgFeePerPlacement:     ratio(placements.TotalFees, float64(placements.Completed)),
		AvgApplicationsPerJob:  ratio(float64(applications), float64(jobs)),
		RecruiterRetentionRate: recruiterRetentionPlaceholder,
	}
	snap.HealthScore = healthScore(snap)

	if err := uc.repo.UpsertSnapshot(ctx, snap); err != nil {
		uc.logger.Error("failed to store marketplace health snapshot", "date", from.Format(time.DateOnly), "error", err)
		return domain.MarketplaceHealthSnapshot{}, fmt.Errorf("upsert health snapshot: %w", err)
	}

	uc.logger.Info("marketplace health computed",
		"date", from.Format(time.DateOnly),
		"placements", snap.TotalPlacements,
		"applications", snap.TotalApplications,
		"hire_rate", snap.HireRate,
		"health_score", snap.HealthScore,
	)
	return snap, nil
}

// healthScore weighs hire and completion rates against the share of
// placements that were disputed or flagged for fraud. Result is in [0, 100].
func healthScore(s domain.MarketplaceHealthSnapshot) float64 {
	risk := math.Min(percent(float64(s.FraudSignals+s.DisputedPlacements), float64(s.TotalPlacements)), 100)
	score := 0.4*math.Min(s.HireRate, 100) + 0.4*s.CompletionRate + 0.2*(100-risk)
	if s.TotalPlacements == 0 && s.TotalApplications == 0 {
		score = 0
	}
	return round2(math.Max(0, math.Min(score, 100)))
}

// ratio returns 0 instead of NaN or Inf for an empty denominator.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return round2(num / den)
}

func percent(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return round2(num / den * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
