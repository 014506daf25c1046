package redispresence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
)

// Store 是 PresenceRepository 接口的 Redis 实现。
// 加入/离开/屏幕共享经由 Lua 脚本单次原子执行，读路径用 pipeline 聚合。
type Store struct {
	client  *redis.Client
	keys    keys
	scripts *scriptRunner

	// empty_since 的保险 TTL，主触发始终是 GC 任务
	emptySinceTTL time.Duration
}

// NewStore 创建 Store 实例。
func NewStore(client *redis.Client, keyPrefix string) *Store {
	if client == nil {
		panic("redis client cannot be nil for presence Store")
	}
	if keyPrefix == "" {
		keyPrefix = "mf:"
	}
	return &Store{
		client:        client,
		keys:          newKeys(keyPrefix),
		scripts:       newScriptRunner(client),
		emptySinceTTL: 30 * 24 * time.Hour,
	}
}

// Client 暴露底层客户端给广播桥（hub）使用。
func (s *Store) Client() *redis.Client {
	return s.client
}

// FanoutChannel 返回跨副本广播使用的 pub/sub 频道名。
func (s *Store) FanoutChannel() string {
	return s.keys.fanout()
}

// === 房间登记与索引 ===

func (s *Store) RegisterRoom(ctx context.Context, room *domain.Room) error {
	paramsKey := s.keys.params(room.ID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, paramsKey,
		"id", room.ID,
		"title", room.Title,
		"user_limit", room.UserLimit,
		"creator", room.CreatorID,
		"creator_name", room.CreatorName,
		"created_at", room.CreatedAt.UTC().Unix(),
		"privacy", room.Privacy,
		"game_params", room.GameParams,
	)
	pipe.ZAdd(ctx, s.keys.roomsIndex(), &redis.Z{
		Score:  float64(room.CreatedAt.UTC().Unix()),
		Member: room.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: register room %d: %w", room.ID, err)
	}
	return nil
}

func (s *Store) InIndex(ctx context.Context, roomID uint) (bool, error) {
	_, err := s.client.ZScore(ctx, s.keys.roomsIndex(), strconv.FormatUint(uint64(roomID), 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: zscore rooms index: %w", err)
	}
	return true, nil
}

func (s *Store) RoomIDs(ctx context.Context, limit int64) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := s.client.ZRevRange(ctx, s.keys.roomsIndex(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: zrevrange rooms index: %w", err)
	}
	ids := make([]uint, 0, len(raw))
	for _, v := range raw {
		id, parseErr := strconv.ParseUint(v, 10, 32)
		if parseErr != nil {
			logrus.Warnf("redis: non-numeric room id %q in rooms index, skipped", v)
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func (s *Store) RoomBrief(ctx context.Context, roomID uint) (*domain.RoomBrief, error) {
	pipe := s.client.Pipeline()
	paramsCmd := pipe.HGetAll(ctx, s.keys.params(roomID))
	sizeCmd := pipe.SCard(ctx, s.keys.members(roomID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: read brief for room %d: %w", roomID, err)
	}
	params := paramsCmd.Val()
	if len(params) == 0 {
		return nil, repository.ErrRoomNotFound
	}
	brief := &domain.RoomBrief{
		ID:          roomID,
		Title:       params["title"],
		Privacy:     params["privacy"],
		CreatorName: params["creator_name"],
		Occupancy:   int(sizeCmd.Val()),
	}
	brief.UserLimit, _ = strconv.Atoi(params["user_limit"])
	creator, _ := strconv.ParseUint(params["creator"], 10, 32)
	brief.Creator = uint(creator)
	brief.CreatedAt, _ = strconv.ParseInt(params["created_at"], 10, 64)
	return brief, nil
}

func (s *Store) AddCreatorRoom(ctx context.Context, creatorID, roomID uint) error {
	if err := s.client.SAdd(ctx, s.keys.creatorRooms(creatorID), roomID).Err(); err != nil {
		return fmt.Errorf("redis: sadd creator rooms: %w", err)
	}
	return nil
}

func (s *Store) RemoveCreatorRoom(ctx context.Context, creatorID, roomID uint) error {
	if err := s.client.SRem(ctx, s.keys.creatorRooms(creatorID), roomID).Err(); err != nil {
		return fmt.Errorf("redis: srem creator rooms: %w", err)
	}
	return nil
}

// === 加入/离开 ===

func (s *Store) Join(ctx context.Context, roomID, userID uint, baseRole string, now int64) (*domain.JoinResult, error) {
	keys := []string{
		s.keys.params(roomID),
		s.keys.members(roomID),
		s.keys.positions(roomID),
		s.keys.userInfo(roomID, userID),
		s.keys.emptySince(roomID),
	}
	raw, err := s.scripts.run(ctx, joinScript, keys,
		strconv.FormatUint(uint64(userID), 10), baseRole, strconv.FormatInt(now, 10))
	if err != nil {
		return nil, fmt.Errorf("redis: join script for room %d user %d: %w", roomID, userID, err)
	}
	reply, ok := raw.([]interface{})
	if !ok || len(reply) < 5 {
		return nil, fmt.Errorf("redis: malformed join reply %#v", raw)
	}
	res := &domain.JoinResult{
		Status:        domain.JoinStatus(toString(reply[0])),
		Occupancy:     int(toInt64(reply[1])),
		Position:      int(toInt64(reply[2])),
		AlreadyMember: toInt64(reply[3]) == 1,
	}
	res.Shifts, err = parseShifts(reply[4])
	if err != nil {
		return nil, fmt.Errorf("redis: join reply shifts: %w", err)
	}
	return res, nil
}

func (s *Store) Leave(ctx context.Context, roomID, userID uint, now int64) (*domain.LeaveResult, error) {
	keys := []string{
		s.keys.params(roomID),
		s.keys.members(roomID),
		s.keys.positions(roomID),
		s.keys.userInfo(roomID, userID),
		s.keys.visitors(roomID),
		s.keys.emptySince(roomID),
		s.keys.gcSeq(roomID),
	}
	raw, err := s.scripts.run(ctx, leaveScript, keys,
		strconv.FormatUint(uint64(userID), 10),
		strconv.FormatInt(now, 10),
		strconv.FormatInt(int64(s.emptySinceTTL/time.Second), 10))
	if err != nil {
		return nil, fmt.Errorf("redis: leave script for room %d user %d: %w", roomID, userID, err)
	}
	reply, ok := raw.([]interface{})
	if !ok || len(reply) < 4 {
		return nil, fmt.Errorf("redis: malformed leave reply %#v", raw)
	}
	res := &domain.LeaveResult{
		Status:    domain.LeaveStatus(toString(reply[0])),
		Occupancy: int(toInt64(reply[1])),
		GCSeq:     toInt64(reply[2]),
	}
	res.Shifts, err = parseShifts(reply[3])
	if err != nil {
		return nil, fmt.Errorf("redis: leave reply shifts: %w", err)
	}
	return res, nil
}

// === 成员读路径 ===

func (s *Store) Occupancy(ctx context.Context, roomID uint) (int, error) {
	n, err := s.client.SCard(ctx, s.keys.members(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: scard members for room %d: %w", roomID, err)
	}
	return int(n), nil
}

func (s *Store) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.keys.members(roomID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: sismember for room %d: %w", roomID, err)
	}
	return ok, nil
}

func (s *Store) MemberRole(ctx context.Context, roomID, userID uint) (string, error) {
	role, err := s.client.HGet(ctx, s.keys.userInfo(roomID, userID), "role").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis: hget role for room %d user %d: %w", roomID, userID, err)
	}
	return role, nil
}

func (s *Store) Snapshot(ctx context.Context, roomID, forUserID uint) (*domain.RoomSnapshot, error) {
	// 第一轮：成员、座位、屏幕持有者
	pipe := s.client.Pipeline()
	posCmd := pipe.ZRangeWithScores(ctx, s.keys.positions(roomID), 0, -1)
	ownerCmd := pipe.Get(ctx, s.keys.screenOwner(roomID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: snapshot base reads for room %d: %w", roomID, err)
	}

	snap := &domain.RoomSnapshot{RoomID: roomID}
	if ownerStr, err := ownerCmd.Result(); err == nil {
		if owner, parseErr := strconv.ParseUint(ownerStr, 10, 32); parseErr == nil {
			o := uint(owner)
			snap.ScreenOwner = &o
		}
	}

	entries := posCmd.Val()
	if len(entries) == 0 {
		snap.SelfBlocked = map[string]string{}
		snap.SelfState = map[string]string{}
		return snap, nil
	}

	type seat struct {
		userID   uint
		position int
	}
	seats := make([]seat, 0, len(entries))
	for _, z := range entries {
		uidStr, _ := z.Member.(string)
		uid, parseErr := strconv.ParseUint(uidStr, 10, 32)
		if parseErr != nil {
			logrus.Warnf("redis: non-numeric member %q in positions of room %d, skipped", uidStr, roomID)
			continue
		}
		seats = append(seats, seat{userID: uint(uid), position: int(z.Score)})
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].position < seats[j].position })

	// 第二轮：每个座位的 state/meta/info，外加请求者自己的 block
	pipe = s.client.Pipeline()
	stateCmds := make([]*redis.StringStringMapCmd, len(seats))
	metaCmds := make([]*redis.StringStringMapCmd, len(seats))
	infoCmds := make([]*redis.StringStringMapCmd, len(seats))
	for i, st := range seats {
		stateCmds[i] = pipe.HGetAll(ctx, s.keys.userState(roomID, st.userID))
		metaCmds[i] = pipe.HGetAll(ctx, s.keys.userMeta(roomID, st.userID))
		infoCmds[i] = pipe.HGetAll(ctx, s.keys.userInfo(roomID, st.userID))
	}
	blockCmd := pipe.HGetAll(ctx, s.keys.userBlock(roomID, forUserID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: snapshot seat reads for room %d: %w", roomID, err)
	}

	snap.Members = make([]domain.MemberSnapshot, 0, len(seats))
	for i, st := range seats {
		state := stateCmds[i].Val()
		if len(state) == 0 {
			state = domain.DefaultState()
		}
		member := domain.MemberSnapshot{
			UserID:   st.userID,
			Position: st.position,
			Role:     infoCmds[i].Val()["role"],
			State:    state,
			Ready:    metaCmds[i].Val()[domain.KeyReady],
		}
		if member.Ready == "" {
			member.Ready = "0"
		}
		snap.Members = append(snap.Members, member)
		if st.userID == forUserID {
			snap.Position = st.position
			snap.SelfState = state
		}
	}
	snap.SelfBlocked = blockCmd.Val()
	if snap.SelfBlocked == nil {
		snap.SelfBlocked = map[string]string{}
	}
	if snap.SelfState == nil {
		snap.SelfState = map[string]string{}
	}
	return snap, nil
}

// === 软状态 ===

func (s *Store) SeedState(ctx context.Context, roomID, userID uint, state map[string]string) error {
	key := s.keys.userState(roomID, userID)
	pipe := s.client.Pipeline()
	for k, v := range state {
		pipe.HSetNX(ctx, key, k, v)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: seed state for room %d user %d: %w", roomID, userID, err)
	}
	return nil
}

func (s *Store) GetState(ctx context.Context, roomID, userID uint) (map[string]string, error) {
	state, err := s.client.HGetAll(ctx, s.keys.userState(roomID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall state for room %d user %d: %w", roomID, userID, err)
	}
	return state, nil
}

func (s *Store) SetState(ctx context.Context, roomID, userID uint, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.client.HSet(ctx, s.keys.userState(roomID, userID), args...).Err(); err != nil {
		return fmt.Errorf("redis: hset state for room %d user %d: %w", roomID, userID, err)
	}
	return nil
}

func (s *Store) GetReady(ctx context.Context, roomID, userID uint) (string, error) {
	ready, err := s.client.HGet(ctx, s.keys.userMeta(roomID, userID), domain.KeyReady).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "0", nil
		}
		return "", fmt.Errorf("redis: hget ready for room %d user %d: %w", roomID, userID, err)
	}
	return ready, nil
}

func (s *Store) SetReady(ctx context.Context, roomID, userID uint, ready string) error {
	if err := s.client.HSet(ctx, s.keys.userMeta(roomID, userID), domain.KeyReady, ready).Err(); err != nil {
		return fmt.Errorf("redis: hset ready for room %d user %d: %w", roomID, userID, err)
	}
	return nil
}

// === 封禁 ===

func (s *Store) GetBlocks(ctx context.Context, roomID, userID uint) (map[string]string, error) {
	blocks, err := s.client.HGetAll(ctx, s.keys.userBlock(roomID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall block for room %d user %d: %w", roomID, userID, err)
	}
	return blocks, nil
}

func (s *Store) SetBlocks(ctx context.Context, roomID, userID uint, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.client.HSet(ctx, s.keys.userBlock(roomID, userID), args...).Err(); err != nil {
		return fmt.Errorf("redis: hset block for room %d user %d: %w", roomID, userID, err)
	}
	return nil
}

// === 屏幕共享 ===

func (s *Store) ClaimScreen(ctx context.Context, roomID, userID uint, now int64) (bool, uint, error) {
	keys := []string{s.keys.screenOwner(roomID), s.keys.screenStartedAt(roomID)}
	raw, err := s.scripts.run(ctx, claimScreenScript, keys,
		strconv.FormatUint(uint64(userID), 10), strconv.FormatInt(now, 10))
	if err != nil {
		return false, 0, fmt.Errorf("redis: claim screen for room %d: %w", roomID, err)
	}
	reply, ok := raw.([]interface{})
	if !ok || len(reply) < 2 {
		return false, 0, fmt.Errorf("redis: malformed claim reply %#v", raw)
	}
	owner, _ := strconv.ParseUint(toString(reply[1]), 10, 32)
	return toInt64(reply[0]) == 1, uint(owner), nil
}

func (s *Store) ReleaseScreen(ctx context.Context, roomID, userID uint, now int64) (bool, error) {
	keys := []string{
		s.keys.screenOwner(roomID),
		s.keys.screenStartedAt(roomID),
		s.keys.screenTime(roomID),
	}
	raw, err := s.scripts.run(ctx, releaseScreenScript, keys,
		strconv.FormatUint(uint64(userID), 10), strconv.FormatInt(now, 10))
	if err != nil {
		return false, fmt.Errorf("redis: release screen for room %d: %w", roomID, err)
	}
	return toInt64(raw) == 1, nil
}

func (s *Store) ScreenOwner(ctx context.Context, roomID uint) (uint, bool, error) {
	ownerStr, err := s.client.Get(ctx, s.keys.screenOwner(roomID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis: get screen owner for room %d: %w", roomID, err)
	}
	owner, parseErr := strconv.ParseUint(ownerStr, 10, 32)
	if parseErr != nil {
		return 0, false, fmt.Errorf("redis: non-numeric screen owner %q for room %d", ownerStr, roomID)
	}
	return uint(owner), true, nil
}

func (s *Store) FlushScreenAccounting(ctx context.Context, roomID uint, now int64) error {
	keys := []string{
		s.keys.screenOwner(roomID),
		s.keys.screenStartedAt(roomID),
		s.keys.screenTime(roomID),
	}
	if _, err := s.scripts.run(ctx, flushScreenScript, keys, strconv.FormatInt(now, 10)); err != nil {
		return fmt.Errorf("redis: flush screen accounting for room %d: %w", roomID, err)
	}
	return nil
}

// === GC 控制面 ===

func (s *Store) EmptySince(ctx context.Context, roomID uint) (int64, bool, error) {
	val, err := s.client.Get(ctx, s.keys.emptySince(roomID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis: get empty_since for room %d: %w", roomID, err)
	}
	since, parseErr := strconv.ParseInt(val, 10, 64)
	if parseErr != nil {
		return 0, false, fmt.Errorf("redis: non-numeric empty_since %q for room %d", val, roomID)
	}
	return since, true, nil
}

func (s *Store) GCSeq(ctx context.Context, roomID uint) (int64, error) {
	val, err := s.client.Get(ctx, s.keys.gcSeq(roomID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: get gc_seq for room %d: %w", roomID, err)
	}
	seq, parseErr := strconv.ParseInt(val, 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("redis: non-numeric gc_seq %q for room %d", val, roomID)
	}
	return seq, nil
}

func (s *Store) AcquireGCLock(ctx context.Context, roomID uint, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keys.gcLock(roomID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire gc lock for room %d: %w", roomID, err)
	}
	return ok, nil
}

func (s *Store) ReleaseGCLock(ctx context.Context, roomID uint, owner string) error {
	if _, err := s.scripts.run(ctx, unlockScript, []string{s.keys.gcLock(roomID)}, owner); err != nil {
		return fmt.Errorf("redis: release gc lock for room %d: %w", roomID, err)
	}
	return nil
}

func (s *Store) Visitors(ctx context.Context, roomID uint) (domain.SecondsByUser, error) {
	return s.secondsHash(ctx, s.keys.visitors(roomID))
}

func (s *Store) ScreenTime(ctx context.Context, roomID uint) (domain.SecondsByUser, error) {
	return s.secondsHash(ctx, s.keys.screenTime(roomID))
}

func (s *Store) secondsHash(ctx context.Context, key string) (domain.SecondsByUser, error) {
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall %s: %w", key, err)
	}
	out := make(domain.SecondsByUser, len(raw))
	for uidStr, secStr := range raw {
		uid, uidErr := strconv.ParseUint(uidStr, 10, 32)
		sec, secErr := strconv.ParseInt(secStr, 10, 64)
		if uidErr != nil || secErr != nil {
			logrus.Warnf("redis: malformed counter entry %q=%q in %s, skipped", uidStr, secStr, key)
			continue
		}
		out[uint(uid)] = sec
	}
	return out, nil
}

// PurgeRoom 扫描删除 room:R:* 的全部键并把 R 移出 rooms:index。
// GC 在关系事务提交后调用；先清键再摘索引，保证索引中的房间总是可读的。
func (s *Store) PurgeRoom(ctx context.Context, roomID uint) error {
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.keys.roomPattern(roomID), 200).Result()
		if err != nil {
			return fmt.Errorf("redis: scan room %d namespace: %w", roomID, err)
		}
		if len(batch) > 0 {
			if err := s.client.Unlink(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis: unlink room %d keys: %w", roomID, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if err := s.client.ZRem(ctx, s.keys.roomsIndex(), roomID).Err(); err != nil {
		return fmt.Errorf("redis: zrem room %d from index: %w", roomID, err)
	}
	return nil
}

// === 回复解码辅助 ===

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(t), 10, 64)
		return n
	default:
		return 0
	}
}

// parseShifts 将脚本返回的 {uid, pos, uid, pos, ...} 平铺数组解码为 Shift 列表。
func parseShifts(v interface{}) ([]domain.Shift, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("shifts reply is %T, want array", v)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("shifts reply has odd length %d", len(raw))
	}
	shifts := make([]domain.Shift, 0, len(raw)/2)
	for i := 0; i < len(raw); i += 2 {
		uid, err := strconv.ParseUint(toString(raw[i]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("shift user id %q: %w", toString(raw[i]), err)
		}
		pos, err := strconv.ParseFloat(toString(raw[i+1]), 64)
		if err != nil {
			return nil, fmt.Errorf("shift position %q: %w", toString(raw[i+1]), err)
		}
		shifts = append(shifts, domain.Shift{UserID: uint(uid), Position: int(pos)})
	}
	return shifts, nil
}
