package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// heartbeatScript renews every piece of presence state for one session in a
// single atomic step.
//
// KEYS: online zset, session hash, global/app/role minute sets.
// ARGV: last seen (unix ms), session id, app, page, status, user id,
// user type, session ttl (s), timeline ttl (s).
var heartbeatScript = redis.NewScript(`
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('DEL', KEYS[2])
redis.call('HSET', KEYS[2],
	'session_id', ARGV[2],
	'app', ARGV[3],
	'page', ARGV[4],
	'status', ARGV[5],
	'user_id', ARGV[6],
	'user_type', ARGV[7],
	'last_seen', ARGV[1])
redis.call('EXPIRE', KEYS[2], ARGV[8])
for i = 3, 5 do
	redis.call('SADD', KEYS[i], ARGV[2])
	redis.call('EXPIRE', KEYS[i], ARGV[9])
end
return 1
`)

// PresenceRepository implements domain.PresenceStore on a single Redis node.
type PresenceRepository struct {
	client *redis.Client
	logger *slog.Logger
}

func NewPresenceRepository(client *redis.Client, logger *slog.Logger) *PresenceRepository {
	return &PresenceRepository{client: client, logger: logger.With("component", "presence_repository")}
}

func (r *PresenceRepository) RecordHeartbeat(ctx context.Context, s domain.PresenceSession, ttl domain.PresenceTTL) error {
	minute := s.LastSeen.Truncate(time.Minute)
	keys := []string{
		onlineKey,
		sessionKey(s.SessionID),
		globalTimelineKey(minute),
		appTimelineKey(s.App, minute),
		roleTimelineKey(s.UserType, minute),
	}
	err := heartbeatScript.Run(ctx, r.client, keys,
		s.LastSeen.UnixMilli(),
		s.SessionID,
		s.App,
		s.Page,
		s.Status,
		s.UserID,
		s.UserType,
		seconds(ttl.Session),
		seconds(ttl.Timeline),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to run heartbeat script: %w", err)
	}
	return nil
}

// PruneOnline removes entries scored strictly before cutoff.
func (r *PresenceRepository) PruneOnline(ctx context.Context, cutoff time.Time) error {
	max := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	if err := r.client.ZRemRangeByScore(ctx, onlineKey, "-inf", max).Err(); err != nil {
		return fmt.Errorf("failed to prune online set: %w", err)
	}
	return nil
}

func (r *PresenceRepository) OnlineSessionIDs(ctx context.Context, since time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, onlineKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read online set: %w", err)
	}
	return ids, nil
}

// Sessions fetches session hashes in one pipelined round trip. Expired
// sessions come back as empty hashes and are left out.
func (r *PresenceRepository) Sessions(ctx context.Context, ids []string) (map[string]domain.PresenceSession, error) {
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read session metadata: %w", err)
	}

	out := make(map[string]domain.PresenceSession, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out[ids[i]] = sessionFromHash(ids[i], fields)
	}
	return out, nil
}

func sessionFromHash(id string, h map[string]string) domain.PresenceSession {
	s := domain.PresenceSession{
		SessionID: id,
		App:       h["app"],
		Page:      h["page"],
		Status:    h["status"],
		UserID:    h["user_id"],
		UserType:  h["user_type"],
	}
	if ms, err := strconv.ParseInt(h["last_seen"], 10, 64); err == nil {
		s.LastSeen = time.UnixMilli(ms).UTC()
	}
	return s
}

// TimelineCounts reads every requested bucket cardinality in one pipeline.
func (r *PresenceRepository) TimelineCounts(ctx context.Context, q domain.TimelineQuery) (domain.TimelineCounts, error) {
	global := make([]*redis.IntCmd, len(q.Minutes))
	byApp := make(map[string][]*redis.IntCmd, len(q.Apps))
	byRole := make(map[string][]*redis.IntCmd, len(q.Roles))

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range q.Minutes {
			global[i] = pipe.SCard(ctx, globalTimelineKey(m))
		}
		for _, app := range q.Apps {
			cmds := make([]*redis.IntCmd, len(q.Minutes))
			for i, m := range q.Minutes {
				cmds[i] = pipe.SCard(ctx, appTimelineKey(app, m))
			}
			byApp[app] = cmds
		}
		for _, role := range q.Roles {
			cmds := make([]*redis.IntCmd, len(q.Minutes))
			for i, m := range q.Minutes {
				cmds[i] = pipe.SCard(ctx, roleTimelineKey(role, m))
			}
			byRole[role] = cmds
		}
		return nil
	})
	if err != nil {
		return domain.TimelineCounts{}, fmt.Errorf("failed to read presence timeline: %w", err)
	}

	out := domain.TimelineCounts{
		Global: values(global),
		ByApp:  make(map[string][]int64, len(byApp)),
		ByRole: make(map[string][]int64, len(byRole)),
	}
	for app, cmds := range byApp {
		out.ByApp[app] = values(cmds)
	}
	for role, cmds := range byRole {
		out.ByRole[role] = values(cmds)
	}
	return out, nil
}

func values(cmds []*redis.IntCmd) []int64 {
	out := make([]int64, len(cmds))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out
}

// seconds rounds a TTL up to whole seconds, never below one.
func seconds(d time.Duration) int64 {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
