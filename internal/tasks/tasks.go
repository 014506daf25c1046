package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量
const (
	TypeRoomGC = "room:gc" // 空房延迟清扫任务
)

// RoomGCPayload 携带排期时刻捕获的空房控制面快照。
// 处理器据此做序列校验，过期的任务自然中止。
type RoomGCPayload struct {
	RoomID     uint  `json:"room_id"`
	EmptySince int64 `json:"empty_since"`
	GCSeq      int64 `json:"gc_seq"`
}

// NewRoomGCTask 序列化 GC 任务的 payload。
func NewRoomGCTask(payload RoomGCPayload) ([]byte, error) {
	return json.Marshal(payload)
}

// Scheduler 基于 asynq 客户端实现 service.GCScheduler。
type Scheduler struct {
	client *asynq.Client
	delay  time.Duration
}

// NewScheduler 创建 Scheduler。delay 是空房到清扫之间的延迟窗口。
func NewScheduler(client *asynq.Client, delay time.Duration) *Scheduler {
	if client == nil {
		panic("asynq client cannot be nil for Scheduler")
	}
	return &Scheduler{client: client, delay: delay}
}

// ScheduleRoomGC 把房间清扫排期到延迟窗口之后。
// 失败重试由 asynq 按指数退避执行，上限 8 次。
func (s *Scheduler) ScheduleRoomGC(roomID uint, emptySince, gcSeq int64) error {
	payload, err := NewRoomGCTask(RoomGCPayload{
		RoomID:     roomID,
		EmptySince: emptySince,
		GCSeq:      gcSeq,
	})
	if err != nil {
		return fmt.Errorf("tasks: marshal room gc payload: %w", err)
	}
	task := asynq.NewTask(TypeRoomGC, payload)
	_, err = s.client.Enqueue(task,
		asynq.ProcessIn(s.delay),
		asynq.MaxRetry(8),
		asynq.Queue("critical"),
	)
	if err != nil {
		return fmt.Errorf("tasks: enqueue room gc for room %d: %w", roomID, err)
	}
	return nil
}
