package usecase

import (
	"strings"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// eventMetricTypes maps raw event types to the metric type the hourly rollup
// counts them under.
var eventMetricTypes = map[string]string{
	"application.created":        "applications_submitted",
	"application.status_changed": "application_status_changes",
	"application.shortlisted":    "applications_shortlisted",
	"application.rejected":       "applications_rejected",
	"application.withdrawn":      "applications_withdrawn",
	"application.hired":          "applications_hired",
	"placement.created":          "placements_created",
	"placement.completed":        "placements_completed",
	"placement.cancelled":        "placements_cancelled",
	"placement.disputed":         "placements_disputed",
	"job.created":                "jobs_posted",
	"job.published":              "jobs_published",
	"job.closed":                 "jobs_closed",
	"job.filled":                 "jobs_filled",
	"candidate.created":          "candidates_added",
	"candidate.updated":          "candidate_profile_updates",
	"candidate.submitted":        "candidates_submitted",
	"recruiter.joined":           "recruiters_joined",
	"recruiter.verified":         "recruiters_verified",
	"recruiter.deactivated":      "recruiters_deactivated",
	"proposal.created":           "proposals_created",
	"proposal.accepted":          "proposals_accepted",
	"proposal.rejected":          "proposals_rejected",
}

// liveCounterTypes is the subset of event types the consumer counts in real
// time, ahead of the hourly rollup.
var liveCounterTypes = map[string]string{
	"application.created": "applications_submitted",
	"placement.completed": "placements_completed",
	"job.created":         "jobs_posted",
	"candidate.created":   "candidates_added",
	"proposal.accepted":   "proposals_accepted",
}

// MetricTypeFor returns the metric type counted for an event type. Unmapped
// types fall back to a sanitized form of the raw type.
func MetricTypeFor(eventType string) string {
	if mt, ok := eventMetricTypes[eventType]; ok {
		return mt
	}
	return sanitizeMetricType(eventType)
}

// sanitizeMetricType lowercases and collapses anything outside [a-z0-9] to a
// single underscore.
func sanitizeMetricType(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	underscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return "unknown_event"
	}
	return out
}

// eventDimensions derives the dimension tuple of a raw event.
func eventDimensions(e domain.StoredEvent) domain.Dimensions {
	recruiter := ""
	if v, ok := e.Metadata["recruiter_id"]; ok {
		recruiter = domain.IDString(v)
	}
	if recruiter == "" && e.UserRole == domain.RoleRecruiter {
		recruiter = e.UserID
	}
	return domain.Dimensions{
		UserID:      e.UserID,
		CompanyID:   e.OrganizationID,
		RecruiterID: recruiter,
	}
}

// numericMetadata keeps the numeric fields of an event's metadata that are
// meaningful to sum. Identifier fields are skipped even when numeric.
func numericMetadata(metadata map[string]any) map[string]float64 {
	var out map[string]float64
	for k, v := range metadata {
		if k == "id" || strings.HasSuffix(k, "_id") {
			continue
		}
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int:
			f = float64(n)
		case int64:
			f = float64(n)
		default:
			continue
		}
		if out == nil {
			out = make(map[string]float64)
		}
		out[k] = f
	}
	return out
}
