package redispresence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
)

// joinScript 原子执行加入：容量校验、成员/座位写入、info 写入、
// empty_since 清除；重入时保持或修复座位并压缩。
// KEYS: [1]=params [2]=members [3]=positions [4]=user info [5]=empty_since
// ARGV: [1]=userID [2]=baseRole [3]=now(UTC 秒)
// 返回: {status, occupancy, position, already_member, {uid, pos, uid, pos, ...}}
const joinScript = `
local uid = ARGV[1]
local role = ARGV[2]
local now = ARGV[3]
local limit = tonumber(redis.call('HGET', KEYS[1], 'user_limit') or '0')
if limit <= 0 then
  return {'not_found', 0, 0, 0, {}}
end
local creator = redis.call('HGET', KEYS[1], 'creator')
if creator == uid then
  role = 'host'
end
local shifts = {}
if redis.call('SISMEMBER', KEYS[2], uid) == 1 then
  redis.call('HSET', KEYS[4], 'role', role)
  redis.call('HSETNX', KEYS[4], 'join_date', now)
  redis.call('DEL', KEYS[5])
  local size = redis.call('SCARD', KEYS[2])
  local pos = redis.call('ZSCORE', KEYS[3], uid)
  if not pos then
    redis.call('ZADD', KEYS[3], size, uid)
    local all = redis.call('ZRANGE', KEYS[3], 0, -1, 'WITHSCORES')
    local want = 1
    for i = 1, #all, 2 do
      local member = all[i]
      if tonumber(all[i + 1]) ~= want then
        redis.call('ZADD', KEYS[3], want, member)
        if member ~= uid then
          shifts[#shifts + 1] = member
          shifts[#shifts + 1] = tostring(want)
        end
      end
      want = want + 1
    end
    pos = redis.call('ZSCORE', KEYS[3], uid)
  end
  return {'ok', size, tonumber(pos), 1, shifts}
end
local size = redis.call('SCARD', KEYS[2])
if size >= limit then
  return {'full', size, 0, 0, {}}
end
redis.call('SADD', KEYS[2], uid)
local pos = size + 1
redis.call('ZADD', KEYS[3], pos, uid)
redis.call('HSET', KEYS[4], 'role', role)
redis.call('HSETNX', KEYS[4], 'join_date', now)
redis.call('DEL', KEYS[5])
return {'ok', pos, pos, 0, {}}
`

// leaveScript 原子执行离开：访问时长结算、成员/座位/info 删除、
// 座位压缩或空房控制面置位。与 join 一样以 params.user_limit 判定
// 房间存在；非成员的离开不产生任何写入，保证重复投递无观测效果。
// KEYS: [1]=params [2]=members [3]=positions [4]=user info
//       [5]=visitors [6]=empty_since [7]=gc_seq
// ARGV: [1]=userID [2]=now(UTC 秒) [3]=empty_since TTL(秒)
// 返回: {status, occupancy, gc_seq_if_empty_else_0, {uid, pos, uid, pos, ...}}
const leaveScript = `
local uid = ARGV[1]
local now = tonumber(ARGV[2])
local limit = tonumber(redis.call('HGET', KEYS[1], 'user_limit') or '0')
if limit <= 0 then
  return {'not_found', 0, 0, {}}
end
if redis.call('SISMEMBER', KEYS[2], uid) == 0 then
  return {'not_member', redis.call('SCARD', KEYS[2]), 0, {}}
end
local pos = tonumber(redis.call('ZSCORE', KEYS[3], uid) or '0')
local jd = tonumber(redis.call('HGET', KEYS[4], 'join_date') or '0')
if jd > 0 then
  local delta = now - jd
  if delta > 0 then
    redis.call('HINCRBY', KEYS[5], uid, delta)
  end
end
redis.call('SREM', KEYS[2], uid)
redis.call('ZREM', KEYS[3], uid)
redis.call('DEL', KEYS[4])
local size = redis.call('SCARD', KEYS[2])
local shifts = {}
if size == 0 then
  redis.call('SET', KEYS[6], ARGV[2], 'EX', tonumber(ARGV[3]))
  local seq = redis.call('INCR', KEYS[7])
  return {'ok', 0, seq, shifts}
end
if pos > 0 then
  local above = redis.call('ZRANGEBYSCORE', KEYS[3], '(' .. tostring(pos), '+inf', 'WITHSCORES')
  for i = 1, #above, 2 do
    local member = above[i]
    local moved = redis.call('ZINCRBY', KEYS[3], -1, member)
    shifts[#shifts + 1] = member
    shifts[#shifts + 1] = tostring(moved)
  end
end
return {'ok', size, 0, shifts}
`

// claimScreenScript 原子抢占屏幕所有权。
// KEYS: [1]=screen_owner [2]=screen_started_at
// ARGV: [1]=userID [2]=now
// 返回: {ok(0/1), current_owner}
const claimScreenScript = `
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[1] then
  return {1, cur}
end
if cur then
  return {0, cur}
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return {1, ARGV[1]}
`

// releaseScreenScript 在调用方为持有者时结算 screen_time 并清除所有权。
// KEYS: [1]=screen_owner [2]=screen_started_at [3]=screen_time
// ARGV: [1]=userID [2]=now
// 返回: 1 已释放 / 0 非持有者
const releaseScreenScript = `
local cur = redis.call('GET', KEYS[1])
if cur ~= ARGV[1] then
  return 0
end
local started = tonumber(redis.call('GET', KEYS[2]) or '0')
if started > 0 then
  local delta = tonumber(ARGV[2]) - started
  if delta > 0 then
    redis.call('HINCRBY', KEYS[3], ARGV[1], delta)
  end
end
redis.call('DEL', KEYS[1])
redis.call('DEL', KEYS[2])
return 1
`

// flushScreenScript 与 releaseScreenScript 相同的结算，但不要求指定持有者，
// GC 提交前用它兜底仍在进行中的共享。
// KEYS: [1]=screen_owner [2]=screen_started_at [3]=screen_time
// ARGV: [1]=now
const flushScreenScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local started = tonumber(redis.call('GET', KEYS[2]) or '0')
if started > 0 then
  local delta = tonumber(ARGV[1]) - started
  if delta > 0 then
    redis.call('HINCRBY', KEYS[3], cur, delta)
  end
end
redis.call('DEL', KEYS[1])
redis.call('DEL', KEYS[2])
return 1
`

// unlockScript 仅在持有者匹配时删除 gc_lock。
// KEYS: [1]=gc_lock  ARGV: [1]=owner
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// scriptRunner 以 SHA 缓存执行 Lua 脚本，NOSCRIPT 时重载后重试一次。
type scriptRunner struct {
	client *redis.Client

	mu   sync.RWMutex
	shas map[string]string
}

func newScriptRunner(client *redis.Client) *scriptRunner {
	return &scriptRunner{
		client: client,
		shas:   make(map[string]string),
	}
}

func (r *scriptRunner) sha(script string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sha, ok := r.shas[script]
	return sha, ok
}

func (r *scriptRunner) load(ctx context.Context, script string) (string, error) {
	sha, err := r.client.ScriptLoad(ctx, script).Result()
	if err != nil {
		return "", fmt.Errorf("redis: script load: %w", err)
	}
	r.mu.Lock()
	r.shas[script] = sha
	r.mu.Unlock()
	return sha, nil
}

// run 执行脚本并返回原始回复。
func (r *scriptRunner) run(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	sha, ok := r.sha(script)
	if !ok {
		var err error
		if sha, err = r.load(ctx, script); err != nil {
			return nil, err
		}
	}
	res, err := r.client.EvalSha(ctx, sha, keys, args...).Result()
	if err != nil && strings.Contains(err.Error(), "NOSCRIPT") {
		// 脚本缓存被清空（如 Redis 重启），重载后重试一次
		if sha, err = r.load(ctx, script); err != nil {
			return nil, err
		}
		res, err = r.client.EvalSha(ctx, sha, keys, args...).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redis: evalsha: %w", err)
	}
	return res, nil
}
