package redis

import (
	"time"
)

// Key layout. Minute and hour stamps are UTC.
const (
	onlineKey         = "presence:online"
	sessionKeyPrefix  = "presence:session:"
	timelinePrefix    = "presence:timeline:"
	liveMetricsPrefix = "live:metrics:"

	minuteLayout = "200601021504"
	hourLayout   = "2006010215"
)

func sessionKey(id string) string { return sessionKeyPrefix + id }

func globalTimelineKey(minute time.Time) string {
	return timelinePrefix + minute.UTC().Format(minuteLayout)
}

func appTimelineKey(app string, minute time.Time) string {
	return timelinePrefix + "app:" + app + ":" + minute.UTC().Format(minuteLayout)
}

func roleTimelineKey(role string, minute time.Time) string {
	return timelinePrefix + "role:" + role + ":" + minute.UTC().Format(minuteLayout)
}

func liveMetricsKey(hour time.Time) string {
	return liveMetricsPrefix + hour.UTC().Format(hourLayout)
}
