package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

type invalidationRule struct {
	charts       []string
	userStats    bool
	companyStats bool
}

// invalidationRules is keyed by event family. Every event of a family evicts
// all of that family's charts and stat scopes.
var invalidationRules = map[string]invalidationRule{
	domain.FamilyApplication: {
		charts:       []string{"applications_timeline", "pipeline_funnel", "conversion_rates"},
		userStats:    true,
		companyStats: true,
	},
	domain.FamilyPlacement: {
		charts:       []string{"placements_timeline", "revenue", "time_to_hire", "marketplace_health"},
		userStats:    true,
		companyStats: true,
	},
	domain.FamilyJob: {
		charts:       []string{"jobs_overview", "pipeline_funnel"},
		companyStats: true,
	},
	domain.FamilyCandidate: {
		charts:    []string{"candidate_pipeline", "applications_timeline"},
		userStats: true,
	},
	domain.FamilyRecruiter: {
		charts:       []string{"recruiter_leaderboard", "recruiter_performance"},
		userStats:    true,
		companyStats: true,
	},
	domain.FamilyProposal: {
		charts:       []string{"proposals_timeline", "revenue"},
		userStats:    true,
		companyStats: true,
	},
}

// CacheInvalidator maps events to the cache keys they make stale and evicts them.
type CacheInvalidator struct {
	cache  domain.CacheStore
	logger *slog.Logger
}

func NewCacheInvalidator(cache domain.CacheStore, logger *slog.Logger) *CacheInvalidator {
	return &CacheInvalidator{cache: cache, logger: logger.With("component", "cache_invalidator")}
}

// Plan returns the invalidations for an event type. Unknown types yield nil.
func Plan(eventType string, payload domain.Payload) []domain.Invalidation {
	rule, ok := invalidationRules[domain.EntityType(eventType)]
	if !ok {
		return nil
	}

	var scope domain.Scope
	if payload != nil {
		scope = payload.Scope()
	}

	var plan []domain.Invalidation
	if rule.userStats {
		plan = append(plan, statsInvalidation(domain.InvalidateUserStats, "user", scope.UserID))
	}
	if rule.companyStats {
		plan = append(plan, statsInvalidation(domain.InvalidateCompanyStats, "company", scope.CompanyID))
	}
	for _, chart := range rule.charts {
		plan = append(plan, domain.Invalidation{
			Kind:    domain.InvalidateChart,
			Target:  chart,
			Pattern: "chart:" + chart + ":*",
		})
	}
	return plan
}

func statsInvalidation(kind domain.InvalidationKind, scope, id string) domain.Invalidation {
	if id == "" {
		return domain.Invalidation{Kind: kind, Pattern: "stats:" + scope + ":*"}
	}
	return domain.Invalidation{Kind: kind, Target: id, Pattern: "stats:" + scope + ":" + globEscaper.Replace(id) + ":*"}
}

// globEscaper quotes the MATCH metacharacters so payload ids only ever match
// themselves.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// Charts extracts the chart names from a plan.
func Charts(plan []domain.Invalidation) []string {
	var charts []string
	for _, inv := range plan {
		if inv.Kind == domain.InvalidateChart {
			charts = append(charts, inv.Target)
		}
	}
	return charts
}

// Invalidate evicts every key pattern in the event's plan. It keeps going
// after a failed deletion and returns how many patterns failed.
func (c *CacheInvalidator) Invalidate(ctx context.Context, eventType string, payload domain.Payload) (plan []domain.Invalidation, failed int) {
	plan = Plan(eventType, payload)
	if plan == nil {
		c.logger.Warn("no cache invalidation rule for event type", "event_type", eventType)
		return nil, 0
	}

	for _, inv := range plan {
		n, err := c.cache.DeletePattern(ctx, inv.Pattern)
		if err != nil {
			failed++
			c.logger.Warn("failed to invalidate cache pattern", "pattern", inv.Pattern, "event_type", eventType, "error", err)
			continue
		}
		c.logger.Debug("invalidated cache pattern", "pattern", inv.Pattern, "keys", n)
	}
	return plan, failed
}
