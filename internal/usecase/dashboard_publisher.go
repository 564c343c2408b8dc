package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// familyDashboardMetrics are the dashboard metrics refreshed by default when
// an event of the family arrives.
var familyDashboardMetrics = map[string][]string{
	domain.FamilyApplication: {"applications_submitted", "conversion_rate", "pipeline"},
	domain.FamilyPlacement:   {"placements_completed", "revenue", "time_to_hire"},
	domain.FamilyJob:         {"active_jobs", "jobs_posted"},
	domain.FamilyCandidate:   {"candidates_added", "pipeline"},
	domain.FamilyRecruiter:   {"recruiter_performance"},
	domain.FamilyProposal:    {"proposals_created", "proposals_accepted"},
}

// DashboardPublisher sends "what changed" notifications to recruiter
// dashboards. It never fails its caller.
type DashboardPublisher struct {
	channel domain.DashboardChannel
	logger  *slog.Logger
	now     func() time.Time
}

func NewDashboardPublisher(channel domain.DashboardChannel, logger *slog.Logger) *DashboardPublisher {
	return &DashboardPublisher{
		channel: channel,
		logger:  logger.With("component", "dashboard_publisher"),
		now:     time.Now,
	}
}

// Publish notifies one recruiter's dashboard. It reports whether the
// notification went out.
func (p *DashboardPublisher) Publish(ctx context.Context, recruiterID string, metrics, charts []string) bool {
	update := domain.DashboardUpdate{
		Type:         domain.DashboardUpdateType,
		EventVersion: domain.DashboardEventVersion,
		ServerTime:   p.now().UTC(),
		Data:         domain.DashboardUpdateData{Metrics: metrics, Charts: charts},
	}
	payload, err := json.Marshal(update)
	if err != nil {
		p.logger.Warn("failed to encode dashboard update", "recruiter_id", recruiterID, "error", err)
		return false
	}

	if err := p.channel.Publish(ctx, domain.DashboardChannelName(recruiterID), payload); err != nil {
		p.logger.Warn("failed to publish dashboard update", "recruiter_id", recruiterID, "error", err)
		return false
	}
	return true
}

// PublishEvent notifies every recruiter referenced by the event's payload and
// returns how many notifications failed.
func (p *DashboardPublisher) PublishEvent(ctx context.Context, event domain.DomainEvent, charts []string) (failed int) {
	if event.Payload == nil {
		return 0
	}
	recruiters := event.Payload.RecruiterIDs()
	if len(recruiters) == 0 {
		return 0
	}

	metrics := familyDashboardMetrics[domain.EntityType(event.EventType)]
	if metrics == nil {
		metrics = []string{MetricTypeFor(event.EventType)}
	}

	for _, id := range recruiters {
		if !p.Publish(ctx, id, metrics, charts) {
			failed++
		}
	}
	return failed
}
