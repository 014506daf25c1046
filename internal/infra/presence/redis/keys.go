package redispresence

import "fmt"

// keys 集中生成房间命名空间下的全部 Redis key。
// 键形状是外部契约的一部分，见 PresenceRepository 的注释。
type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	return keys{prefix: prefix}
}

func (k keys) room(roomID uint) string {
	return fmt.Sprintf("%sroom:%d", k.prefix, roomID)
}

func (k keys) params(roomID uint) string {
	return k.room(roomID) + ":params"
}

func (k keys) members(roomID uint) string {
	return k.room(roomID) + ":members"
}

func (k keys) positions(roomID uint) string {
	return k.room(roomID) + ":positions"
}

func (k keys) userInfo(roomID, userID uint) string {
	return fmt.Sprintf("%s:user:%d:info", k.room(roomID), userID)
}

func (k keys) userState(roomID, userID uint) string {
	return fmt.Sprintf("%s:user:%d:state", k.room(roomID), userID)
}

func (k keys) userMeta(roomID, userID uint) string {
	return fmt.Sprintf("%s:user:%d:meta", k.room(roomID), userID)
}

func (k keys) userBlock(roomID, userID uint) string {
	return fmt.Sprintf("%s:user:%d:block", k.room(roomID), userID)
}

func (k keys) visitors(roomID uint) string {
	return k.room(roomID) + ":visitors"
}

func (k keys) screenTime(roomID uint) string {
	return k.room(roomID) + ":screen_time"
}

func (k keys) screenOwner(roomID uint) string {
	return k.room(roomID) + ":screen_owner"
}

func (k keys) screenStartedAt(roomID uint) string {
	return k.room(roomID) + ":screen_started_at"
}

func (k keys) emptySince(roomID uint) string {
	return k.room(roomID) + ":empty_since"
}

func (k keys) gcSeq(roomID uint) string {
	return k.room(roomID) + ":gc_seq"
}

func (k keys) gcLock(roomID uint) string {
	return k.room(roomID) + ":gc_lock"
}

// roomPattern 用于 GC 清扫 room:R:* 命名空间。
func (k keys) roomPattern(roomID uint) string {
	return k.room(roomID) + ":*"
}

func (k keys) roomsIndex() string {
	return k.prefix + "rooms:index"
}

func (k keys) creatorRooms(userID uint) string {
	return fmt.Sprintf("%suser:%d:rooms", k.prefix, userID)
}

// fanout 是跨副本广播桥使用的 pub/sub 频道。
func (k keys) fanout() string {
	return k.prefix + "fanout"
}
