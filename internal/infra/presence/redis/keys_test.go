package redispresence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 键形状是外部契约：改动这里意味着破坏已部署实例的数据。
func TestKeys_Shapes(t *testing.T) {
	k := newKeys("mf:")

	assert.Equal(t, "mf:room:7:params", k.params(7))
	assert.Equal(t, "mf:room:7:members", k.members(7))
	assert.Equal(t, "mf:room:7:positions", k.positions(7))
	assert.Equal(t, "mf:room:7:user:42:info", k.userInfo(7, 42))
	assert.Equal(t, "mf:room:7:user:42:state", k.userState(7, 42))
	assert.Equal(t, "mf:room:7:user:42:meta", k.userMeta(7, 42))
	assert.Equal(t, "mf:room:7:user:42:block", k.userBlock(7, 42))
	assert.Equal(t, "mf:room:7:visitors", k.visitors(7))
	assert.Equal(t, "mf:room:7:screen_time", k.screenTime(7))
	assert.Equal(t, "mf:room:7:screen_owner", k.screenOwner(7))
	assert.Equal(t, "mf:room:7:screen_started_at", k.screenStartedAt(7))
	assert.Equal(t, "mf:room:7:empty_since", k.emptySince(7))
	assert.Equal(t, "mf:room:7:gc_seq", k.gcSeq(7))
	assert.Equal(t, "mf:room:7:gc_lock", k.gcLock(7))
	assert.Equal(t, "mf:room:7:*", k.roomPattern(7))
	assert.Equal(t, "mf:rooms:index", k.roomsIndex())
	assert.Equal(t, "mf:user:42:rooms", k.creatorRooms(42))
	assert.Equal(t, "mf:fanout", k.fanout())
}

func TestKeys_EmptyPrefix(t *testing.T) {
	k := newKeys("")
	assert.Equal(t, "room:7:params", k.params(7))
	assert.Equal(t, "rooms:index", k.roomsIndex())
}
