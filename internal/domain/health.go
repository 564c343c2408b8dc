package domain

import "time"

// PlacementStats aggregates placements created in a window.
type PlacementStats struct {
	Total             int64
	Completed         int64
	TotalFees         float64
	AvgTimeToHireDays float64
}

// MarketplaceHealthSnapshot is the daily platform KPI row keyed by MetricDate.
type MarketplaceHealthSnapshot struct {
	MetricDate             time.Time `json:"metric_date"`
	TotalPlacements        int64     `json:"total_placements"`
	CompletedPlacements    int64     `json:"completed_placements"`
	TotalApplications      int64     `json:"total_applications"`
	TotalFees              float64   `json:"total_fees"`
	AvgTimeToHireDays      float64   `json:"avg_time_to_hire_days"`
	ActiveRecruiters       int64     `json:"active_recruiters"`
	ActiveJobs             int64     `json:"active_jobs"`
	FraudSignals           int64     `json:"fraud_signals"`
	DisputedPlacements     int64     `json:"disputed_placements"`
	HireRate               float64   `json:"hire_rate"`
	CompletionRate         float64   `json:"completion_rate"`
	AvgFeePerPlacement     float64   `json:"avg_fee_per_placement"`
	AvgApplicationsPerJob  float64   `json:"avg_applications_per_job"`
	RecruiterRetentionRate float64   `json:"recruiter_retention_rate"`
	HealthScore            float64   `json:"health_score"`
}
