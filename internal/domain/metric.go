package domain

import "time"

// TimeBucket is the granularity of a metric row.
type TimeBucket string

const (
	BucketHour  TimeBucket = "hour"
	BucketDay   TimeBucket = "day"
	BucketMonth TimeBucket = "month"
)

// Truncate aligns t to the start of its bucket in UTC.
func (b TimeBucket) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch b {
	case BucketHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case BucketDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Dimensions are the optional grouping keys of a metric. Empty means absent.
type Dimensions struct {
	UserID      string `json:"dimension_user_id,omitempty"`
	CompanyID   string `json:"dimension_company_id,omitempty"`
	RecruiterID string `json:"dimension_recruiter_id,omitempty"`
}

// MetricKey is the natural key of a metric row within its bucket table.
type MetricKey struct {
	MetricType string
	TimeValue  time.Time
	Dimensions
}

// Metric is one aggregated row. Writes overwrite Value and Metadata.
type Metric struct {
	MetricKey
	Bucket   TimeBucket         `json:"time_bucket"`
	Value    float64            `json:"value"`
	Metadata map[string]float64 `json:"metadata,omitempty"`
}
