package domain

// InvalidationKind is the scope a cache invalidation targets.
type InvalidationKind string

const (
	InvalidateUserStats    InvalidationKind = "user_stats"
	InvalidateCompanyStats InvalidationKind = "company_stats"
	InvalidateChart        InvalidationKind = "chart"
)

// Invalidation is one key-pattern deletion.
type Invalidation struct {
	Kind    InvalidationKind
	Target  string
	Pattern string
}
