package domain

import "time"

// Presence surfaces a heartbeat may come from.
const (
	AppPortal    = "portal"
	AppCandidate = "candidate"
	AppCorporate = "corporate"
)

// Heartbeat statuses.
const (
	StatusActive = "active"
	StatusIdle   = "idle"
)

// User types tracked in the per-role timelines.
const (
	RoleRecruiter = "recruiter"
	RoleCandidate = "candidate"
	RoleCorporate = "corporate"
	RoleAdmin     = "admin"
	RoleAnonymous = "anonymous"
)

var (
	PresenceApps  = []string{AppPortal, AppCandidate, AppCorporate}
	PresenceRoles = []string{RoleRecruiter, RoleCandidate, RoleCorporate, RoleAdmin, RoleAnonymous}
)

// Heartbeat is a client's "still here" signal. UserType is derived on the
// server and never read from the request body.
type Heartbeat struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	UserType  string `json:"-"`
	App       string `json:"app"`
	Page      string `json:"page"`
	Status    string `json:"status"`
}

// PresenceSession is the ephemeral metadata kept for an online session.
type PresenceSession struct {
	SessionID string    `json:"session_id"`
	App       string    `json:"app"`
	Page      string    `json:"page"`
	Status    string    `json:"status"`
	UserID    string    `json:"user_id,omitempty"`
	UserType  string    `json:"user_type"`
	LastSeen  time.Time `json:"last_seen"`
}

// PresenceTTL controls how long ephemeral presence state survives without renewal.
type PresenceTTL struct {
	Session  time.Duration
	Timeline time.Duration
}

// TimelineQuery asks for per-minute distinct session counts.
type TimelineQuery struct {
	Minutes []time.Time
	Apps    []string
	Roles   []string
}

// TimelineCounts holds one count per requested minute, in request order.
type TimelineCounts struct {
	Global []int64
	ByApp  map[string][]int64
	ByRole map[string][]int64
}

// TimelinePoint is one minute of a presence chart.
type TimelinePoint struct {
	Minute time.Time `json:"minute"`
	Count  int64     `json:"count"`
}

// PresenceSnapshot is the on-demand view of who is online.
type PresenceSnapshot struct {
	GeneratedAt    time.Time                  `json:"generated_at"`
	TotalOnline    int                        `json:"total_online"`
	Authenticated  int                        `json:"authenticated"`
	Anonymous      int                        `json:"anonymous"`
	ByApp          map[string]int             `json:"by_app"`
	ByRole         map[string]int             `json:"by_role"`
	Timeline       []TimelinePoint            `json:"timeline"`
	TimelineByApp  map[string][]TimelinePoint `json:"timeline_by_app"`
	TimelineByRole map[string][]TimelinePoint `json:"timeline_by_role"`
}
