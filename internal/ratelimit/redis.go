package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// takeScript trims and counts both windows and adds the event to both only when
// every enforced limit has room. KEYS: actor, workspace. ARGV: floor ms, at ms,
// member, ttl ms, actor limit, workspace limit. Reply: recorded, then count and
// oldest score per key.
var takeScript = redis.NewScript(`
local limits = {tonumber(ARGV[5]), tonumber(ARGV[6])}
local reply = {0}
local allowed = true
for i = 1, 2 do
	redis.call('ZREMRANGEBYSCORE', KEYS[i], '-inf', '(' .. ARGV[1])
	local count = redis.call('ZCARD', KEYS[i])
	local oldest = 0
	if count > 0 then
		local first = redis.call('ZRANGE', KEYS[i], 0, 0, 'WITHSCORES')
		oldest = tonumber(first[2])
	end
	reply[#reply + 1] = count
	reply[#reply + 1] = oldest
	if limits[i] > 0 and count >= limits[i] then
		allowed = false
	end
end
if allowed then
	for i = 1, 2 do
		redis.call('ZADD', KEYS[i], ARGV[2], ARGV[3])
		redis.call('PEXPIRE', KEYS[i], ARGV[4])
	end
	reply[1] = 1
end
return reply
`)

// RedisCounter stores each window as a sorted set scored by unix milliseconds.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(redisURL string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCounterWithClient(client), nil
}

func NewRedisCounterWithClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{
		client: client,
		prefix: "feedhub:rl:",
	}
}

// key hash-tags the action so both scopes of one Take live in the same cluster slot.
func (r *RedisCounter) key(action string, scope Scope, id string) string {
	return r.prefix + "{" + action + "}:" + string(scope) + ":" + id
}

func (r *RedisCounter) Count(ctx context.Context, action string, scope Scope, id string, since time.Time) (int, time.Time, error) {
	key := r.key(action, scope, id)
	floor := strconv.FormatInt(since.UnixMilli(), 10)

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+floor)
	countCmd := pipe.ZCount(ctx, key, floor, "+inf")
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Time{}, fmt.Errorf("count window: %w", err)
	}
	count := int(countCmd.Val())
	if count == 0 {
		return 0, time.Time{}, nil
	}
	var oldest time.Time
	if items := oldestCmd.Val(); len(items) > 0 {
		oldest = time.UnixMilli(int64(items[0].Score))
	}
	return count, oldest, nil
}

func (r *RedisCounter) Take(ctx context.Context, action, workspaceID, actorID string, at time.Time, window time.Duration, limits Limits) (Usage, error) {
	keys := []string{
		r.key(action, ScopeActor, actorID),
		r.key(action, ScopeWorkspace, workspaceID),
	}
	ttl := window + time.Minute
	res, err := takeScript.Run(ctx, r.client, keys,
		at.Add(-window).UnixMilli(),
		at.UnixMilli(),
		uuid.NewString(),
		ttl.Milliseconds(),
		limits.Actor,
		limits.Workspace,
	).Int64Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("take window slot: %w", err)
	}
	if len(res) != 5 {
		return Usage{}, fmt.Errorf("take window slot: unexpected reply of %d values", len(res))
	}
	return Usage{
		Recorded:  res[0] == 1,
		Actor:     redisWindow(res[1], res[2]),
		Workspace: redisWindow(res[3], res[4]),
	}, nil
}

func redisWindow(count, oldestMs int64) Window {
	if count == 0 {
		return Window{}
	}
	return Window{Count: int(count), Oldest: time.UnixMilli(oldestMs)}
}

func (r *RedisCounter) Close() error {
	return r.client.Close()
}
