package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/service"
	"github.com/wi1ex/mafia-sub000/internal/tasks"
)

// RoomGCHandler 处理空房清扫任务。延迟窗口由排期时的 ProcessIn 保证，
// 这里只做序列校验与提交。
type RoomGCHandler struct {
	gc *service.GCService
}

// NewRoomGCHandler 创建 Handler 实例
func NewRoomGCHandler(gc *service.GCService) *RoomGCHandler {
	if gc == nil {
		panic("GCService cannot be nil for RoomGCHandler")
	}
	return &RoomGCHandler{gc: gc}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomGCHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.RoomGCPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal room gc payload")
		// payload 损坏没有重试的意义
		return fmt.Errorf("unmarshal room gc payload: %v: %w", err, asynq.SkipRetry)
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"room_id":   payload.RoomID,
		"gc_seq":    payload.GCSeq,
	})
	logCtx.Debug("Processing room gc task...")

	// 锁获取之后不允许被外层取消打断，Collect 自带 defer 释放；
	// 这里只限制整体时长避免任务卡死
	gcCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.gc.Collect(gcCtx, payload.RoomID, payload.EmptySince, payload.GCSeq); err != nil {
		logCtx.WithError(err).Error("Room gc pass failed")
		return fmt.Errorf("room gc for room %d: %w", payload.RoomID, err)
	}
	return nil
}
