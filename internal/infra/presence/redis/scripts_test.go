package redispresence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wi1ex/mafia-sub000/internal/domain"
)

// newTestStore 在嵌入式 Redis 上构建 Store，脚本走真实的 EVALSHA 路径。
func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, "mf:"), mr
}

func seedRoom(t *testing.T, s *Store, roomID uint, userLimit, creator int) {
	t.Helper()
	require.NoError(t, s.client.HSet(context.Background(), s.keys.params(roomID),
		"user_limit", userLimit, "creator", creator).Err())
}

func positionsOf(t *testing.T, s *Store, roomID uint) map[string]int {
	t.Helper()
	entries, err := s.client.ZRangeWithScores(context.Background(), s.keys.positions(roomID), 0, -1).Result()
	require.NoError(t, err)
	out := make(map[string]int, len(entries))
	for _, z := range entries {
		out[z.Member.(string)] = int(z.Score)
	}
	return out
}

func TestJoinScript_FillOverflowDrain(t *testing.T) {
	// 满房一轮：1、2、3 依次入座，4 被拒，2 离开后座位压缩
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, 7, 3, 1)

	for i, uid := range []uint{1, 2, 3} {
		res, err := store.Join(ctx, 7, uid, domain.RoleUser, 1000)
		require.NoError(t, err)
		assert.Equal(t, domain.JoinOK, res.Status)
		assert.Equal(t, i+1, res.Position)
		assert.Equal(t, i+1, res.Occupancy)
		assert.False(t, res.AlreadyMember)
	}
	// 创建者的有效角色是 host
	role, err := store.MemberRole(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, role)

	full, err := store.Join(ctx, 7, 4, domain.RoleUser, 1001)
	require.NoError(t, err)
	assert.Equal(t, domain.JoinFull, full.Status)
	assert.Equal(t, 3, full.Occupancy)

	left, err := store.Leave(ctx, 7, 2, 1002)
	require.NoError(t, err)
	assert.Equal(t, domain.LeaveOK, left.Status)
	assert.Equal(t, 2, left.Occupancy)
	assert.Equal(t, []domain.Shift{{UserID: 3, Position: 2}}, left.Shifts)
	assert.Equal(t, map[string]int{"1": 1, "3": 2}, positionsOf(t, store, 7))
}

func TestJoinScript_UnknownRoom(t *testing.T) {
	store, _ := newTestStore(t)

	res, err := store.Join(context.Background(), 999, 42, domain.RoleUser, 1000)

	require.NoError(t, err)
	assert.Equal(t, domain.JoinNotFound, res.Status)
}

func TestJoinScript_RejoinRepairsMissingPosition(t *testing.T) {
	// 成员在 members 里但座位丢失：重入时重新落座并压缩到 {1..n}
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, 7, 5, 1)
	for _, uid := range []uint{1, 2, 3} {
		_, err := store.Join(ctx, 7, uid, domain.RoleUser, 1000)
		require.NoError(t, err)
	}
	require.NoError(t, store.client.ZRem(ctx, store.keys.positions(7), "2").Err())

	res, err := store.Join(ctx, 7, 2, domain.RoleUser, 1010)

	require.NoError(t, err)
	assert.Equal(t, domain.JoinOK, res.Status)
	assert.True(t, res.AlreadyMember)
	assert.Equal(t, 2, res.Position)
	assert.Equal(t, map[string]int{"1": 1, "2": 2, "3": 3}, positionsOf(t, store, 7))
}

func TestJoinScript_DuplicateDelivery_NoShifts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, 7, 3, 1)
	_, err := store.Join(ctx, 7, 2, domain.RoleUser, 1000)
	require.NoError(t, err)

	res, err := store.Join(ctx, 7, 2, domain.RoleUser, 1005)

	require.NoError(t, err)
	assert.Equal(t, domain.JoinOK, res.Status)
	assert.True(t, res.AlreadyMember)
	assert.Equal(t, 1, res.Position)
	assert.Empty(t, res.Shifts)
	// join_date 只在首次写入
	jd, err := store.client.HGet(ctx, store.keys.userInfo(7, 2), "join_date").Result()
	require.NoError(t, err)
	assert.Equal(t, "1000", jd)
}

func TestLeaveScript_UnknownRoom_NoControlPlaneWrites(t *testing.T) {
	// 不存在的房间：离开被拒，不得产生 empty_since/gc_seq
	store, mr := newTestStore(t)

	res, err := store.Leave(context.Background(), 999, 42, 1000)

	require.NoError(t, err)
	assert.Equal(t, domain.LeaveNotFound, res.Status)
	assert.Zero(t, res.GCSeq)
	assert.False(t, mr.Exists("mf:room:999:empty_since"))
	assert.False(t, mr.Exists("mf:room:999:gc_seq"))
}

func TestLeaveScript_NotMember_NoWrites(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, 7, 3, 1)
	_, err := store.Join(ctx, 7, 1, domain.RoleUser, 1000)
	require.NoError(t, err)

	res, err := store.Leave(ctx, 7, 42, 1001)

	require.NoError(t, err)
	assert.Equal(t, domain.LeaveNotMember, res.Status)
	assert.Equal(t, 1, res.Occupancy)
	assert.False(t, mr.Exists("mf:room:7:empty_since"))
	assert.False(t, mr.Exists("mf:room:7:gc_seq"))
}

func TestLeaveScript_ShiftsAscendingOldPosition(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, 7, 5, 1)
	for _, uid := range []uint{1, 2, 3, 4} {
		_, err := store.Join(ctx, 7, uid, domain.RoleUser, 1000)
		require.NoError(t, err)
	}

	res, err := store.Leave(ctx, 7, 1, 1005)

	require.NoError(t, err)
	assert.Equal(t, []domain.Shift{
		{UserID: 2, Position: 1},
		{UserID: 3, Position: 2},
		{UserID: 4, Position: 3},
	}, res.Shifts)
	assert.Equal(t, map[string]int{"2": 1, "3": 2, "4": 3}, positionsOf(t, store, 7))
}

func TestLeaveScript_LastMember_MarksEmptyAndBumpsSeq(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, 7, 3, 1)
	_, err := store.Join(ctx, 7, 1, domain.RoleUser, 1000)
	require.NoError(t, err)

	res, err := store.Leave(ctx, 7, 1, 1042)

	require.NoError(t, err)
	assert.Equal(t, domain.LeaveOK, res.Status)
	assert.Zero(t, res.Occupancy)
	assert.Equal(t, int64(1), res.GCSeq)

	since, found, err := store.EmptySince(ctx, 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1042), since)
	assert.Equal(t, 30*24*time.Hour, mr.TTL("mf:room:7:empty_since"))

	// 访问时长按 now - join_date 结算
	visitors, err := store.Visitors(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SecondsByUser{1: 42}, visitors)

	// 重复投递的 leave 不再推进 gc_seq
	again, err := store.Leave(ctx, 7, 1, 1050)
	require.NoError(t, err)
	assert.Equal(t, domain.LeaveNotMember, again.Status)
	seq, err := store.GCSeq(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestJoinScript_ClearsEmptySince(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, 7, 3, 1)
	_, err := store.Join(ctx, 7, 1, domain.RoleUser, 1000)
	require.NoError(t, err)
	_, err = store.Leave(ctx, 7, 1, 1010)
	require.NoError(t, err)
	require.True(t, mr.Exists("mf:room:7:empty_since"))

	_, err = store.Join(ctx, 7, 2, domain.RoleUser, 1020)

	require.NoError(t, err)
	assert.False(t, mr.Exists("mf:room:7:empty_since"))
}

func TestScreenScripts_ClaimReleaseAccounting(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, owner, err := store.ClaimScreen(ctx, 7, 42, 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(42), owner)

	// 抢占失败返回当前持有者
	ok, owner, err = store.ClaimScreen(ctx, 7, 43, 110)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint(42), owner)

	// 非持有者的释放是空操作
	released, err := store.ReleaseScreen(ctx, 7, 43, 120)
	require.NoError(t, err)
	assert.False(t, released)

	released, err = store.ReleaseScreen(ctx, 7, 42, 160)
	require.NoError(t, err)
	assert.True(t, released)

	screenTime, err := store.ScreenTime(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SecondsByUser{42: 60}, screenTime)

	_, held, err := store.ScreenOwner(ctx, 7)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestScreenScripts_FlushSettlesInProgressShare(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, _, err := store.ClaimScreen(ctx, 7, 42, 200)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.FlushScreenAccounting(ctx, 7, 230))

	screenTime, err := store.ScreenTime(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SecondsByUser{42: 30}, screenTime)
	_, held, err := store.ScreenOwner(ctx, 7)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestUnlockScript_OwnerGuard(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.AcquireGCLock(ctx, 7, "worker-a", 20*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// 别人的锁不会被误删
	require.NoError(t, store.ReleaseGCLock(ctx, 7, "worker-b"))
	assert.True(t, mr.Exists("mf:room:7:gc_lock"))

	require.NoError(t, store.ReleaseGCLock(ctx, 7, "worker-a"))
	assert.False(t, mr.Exists("mf:room:7:gc_lock"))
}
