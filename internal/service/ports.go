package service

// Fanout 是广播总线的出站契约，由 hub 实现。
// 投递是 at-most-once、非阻塞的；慢客户端由传输层断开而不是在此限流。
type Fanout interface {
	// ToRoom 向 room:R 主题广播。skipUserID 非 0 时跳过该用户的连接
	//（加入者只收快照，不收自己的 member_joined）。
	ToRoom(roomID uint, event string, payload interface{}, skipUserID uint)

	// ToLobby 向 rooms 主题广播。
	ToLobby(event string, payload interface{})

	// ToUser 向 user:U 主题投递定向事件。
	ToUser(userID uint, event string, payload interface{})
}

// GCScheduler 把空房清扫排期为延迟任务，由 tasks 包基于 asynq 实现。
type GCScheduler interface {
	ScheduleRoomGC(roomID uint, emptySince, gcSeq int64) error
}
