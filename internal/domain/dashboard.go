package domain

import "time"

const (
	DashboardUpdateType    = "dashboard.update"
	DashboardEventVersion  = 1
	dashboardChannelPrefix = "dashboard:recruiter:"
)

// DashboardUpdate is the envelope pushed to a recruiter's dashboard channel.
type DashboardUpdate struct {
	Type         string              `json:"type"`
	EventVersion int                 `json:"eventVersion"`
	ServerTime   time.Time           `json:"serverTime"`
	Data         DashboardUpdateData `json:"data"`
}

type DashboardUpdateData struct {
	Metrics []string `json:"metrics,omitempty"`
	Charts  []string `json:"charts,omitempty"`
}

// DashboardChannelName returns the channel a recruiter's dashboard listens on.
func DashboardChannelName(recruiterID string) string {
	return dashboardChannelPrefix + recruiterID
}
