package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements SessionStore on Redis.
//
// Layout, relative to the key prefix:
//
//	session:<id>  hash {user_id, ip_address, user_agent, last_activity}
//	user:<uid>    set of session ids
//	activity      sorted set, member id, score last_activity
//	owners        set of user ids with at least one session
//
// Multi-key writes run as Lua scripts so a session never lives in one
// index but not another. Owner keys are derived inside the scripts, so the
// store targets a single Redis node, not a cluster.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis session store from a client and a key prefix.
// prefix typically ends with a colon.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "sessiondedup:"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

var saveScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], 'user_id')
if old and old ~= '' and old ~= ARGV[2] then
	local oldKey = ARGV[6] .. old
	redis.call('SREM', oldKey, ARGV[1])
	if redis.call('SCARD', oldKey) == 0 then
		redis.call('SREM', KEYS[3], old)
	end
end
redis.call('HSET', KEYS[1], 'user_id', ARGV[2], 'ip_address', ARGV[3], 'user_agent', ARGV[4], 'last_activity', ARGV[5])
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
if ARGV[2] ~= '' then
	redis.call('SADD', ARGV[6] .. ARGV[2], ARGV[1])
	redis.call('SADD', KEYS[3], ARGV[2])
end
return 1
`)

var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'last_activity', ARGV[2], 'ip_address', ARGV[3], 'user_agent', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

var deleteScript = redis.NewScript(`
local uid = redis.call('HGET', KEYS[1], 'user_id')
if not uid then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
if uid ~= '' then
	local userKey = ARGV[2] .. uid
	redis.call('SREM', userKey, ARGV[1])
	if redis.call('SCARD', userKey) == 0 then
		redis.call('SREM', KEYS[3], uid)
	end
end
return 1
`)

// Save inserts or overwrites a session, moving it between owner indexes if needed.
func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	err := saveScript.Run(ctx, s.client,
		[]string{s.sessionKey(session.ID), s.activityKey(), s.ownersKey()},
		session.ID, session.UserID, session.IPAddress, session.UserAgent, session.LastActivity, s.userPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: failed to save session: %w", err)
	}
	return nil
}

// SelectAllByUser returns all of a user's sessions, most recent first.
func (s *RedisStore) SelectAllByUser(ctx context.Context, userID string) ([]*Session, error) {
	if userID == "" {
		return nil, nil
	}

	ids, err := s.client.SMembers(ctx, s.userPrefix()+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list user sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: failed to load sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		values, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("redis: failed to load session %s: %w", ids[i], err)
		}
		if len(values) == 0 {
			// Deleted between SMEMBERS and HGETALL.
			continue
		}
		session, err := parseSession(ids[i], values)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	sortByActivity(sessions)
	return sessions, nil
}

// UpdateActivity touches an existing session; a missing ID updates nothing.
func (s *RedisStore) UpdateActivity(ctx context.Context, sessionID string, lastActivity int64, ip, userAgent string) error {
	err := touchScript.Run(ctx, s.client,
		[]string{s.sessionKey(sessionID), s.activityKey()},
		sessionID, lastActivity, ip, userAgent,
	).Err()
	if err != nil {
		return fmt.Errorf("redis: failed to update session activity: %w", err)
	}
	return nil
}

// DeleteByID removes a session and its index entries.
func (s *RedisStore) DeleteByID(ctx context.Context, sessionID string) error {
	_, err := s.DeleteByIDs(ctx, []string{sessionID})
	return err
}

// DeleteByIDs removes sessions one script call at a time and counts the ones that existed.
func (s *RedisStore) DeleteByIDs(ctx context.Context, sessionIDs []string) (int64, error) {
	var deleted int64
	for _, id := range sessionIDs {
		n, err := deleteScript.Run(ctx, s.client,
			[]string{s.sessionKey(id), s.activityKey(), s.ownersKey()},
			id, s.userPrefix(),
		).Int64()
		if err != nil {
			return deleted, fmt.Errorf("redis: failed to delete session: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}

// SelectDistinctUserIDs lists every owner with at least one session.
func (s *RedisStore) SelectDistinctUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.ownersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list session owners: %w", err)
	}
	return ids, nil
}

// DeleteOlderThan removes every session last active before cutoff.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.activityKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to list expired sessions: %w", err)
	}
	return s.DeleteByIDs(ctx, ids)
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) sessionKey(id string) string { return s.prefix + "session:" + id }
func (s *RedisStore) userPrefix() string          { return s.prefix + "user:" }
func (s *RedisStore) activityKey() string         { return s.prefix + "activity" }
func (s *RedisStore) ownersKey() string           { return s.prefix + "owners" }

func parseSession(id string, values map[string]string) (*Session, error) {
	lastActivity, err := strconv.ParseInt(values["last_activity"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid last_activity for session %s: %w", id, err)
	}
	return &Session{
		ID:           id,
		UserID:       values["user_id"],
		IPAddress:    values["ip_address"],
		UserAgent:    values["user_agent"],
		LastActivity: lastActivity,
	}, nil
}
