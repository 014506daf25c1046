package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
	"github.com/wi1ex/mafia-sub000/internal/repository/mocks"
	"github.com/wi1ex/mafia-sub000/internal/service"
)

func TestGCService_Collect_Success(t *testing.T) {
	// Arrange: 捕获值全部吻合、房间确实空，走完整终结流程
	mockPresence := new(mocks.PresenceRepository)
	mockRooms := new(mocks.RoomRepository)
	fanout := &fanoutRecorder{}
	svc := service.NewGCService(mockPresence, mockRooms, fanout)
	ctx := context.Background()

	visitors := domain.SecondsByUser{1: 300, 2: 250}
	screenTime := domain.SecondsByUser{1: 120}

	mockPresence.On("EmptySince", ctx, uint(7)).Return(int64(1000), true, nil).Once()
	mockPresence.On("GCSeq", ctx, uint(7)).Return(int64(3), nil).Once()
	mockPresence.On("Occupancy", ctx, uint(7)).Return(0, nil).Once()
	mockPresence.On("AcquireGCLock", ctx, uint(7), mock.AnythingOfType("string"), mock.Anything).Return(true, nil).Once()
	mockPresence.On("FlushScreenAccounting", ctx, uint(7), mock.AnythingOfType("int64")).Return(nil).Once()
	mockPresence.On("Visitors", ctx, uint(7)).Return(visitors, nil).Once()
	mockPresence.On("ScreenTime", ctx, uint(7)).Return(screenTime, nil).Once()
	mockRooms.On("Finalize", ctx, uint(7), visitors, screenTime, mock.Anything).
		Return(&repository.FinalizeOutcome{Found: true, CreatorID: 1, UniqueVisitors: 2}, nil).Once()
	mockPresence.On("RemoveCreatorRoom", ctx, uint(1), uint(7)).Return(nil).Once()
	mockPresence.On("PurgeRoom", ctx, uint(7)).Return(nil).Once()
	mockPresence.On("ReleaseGCLock", ctx, uint(7), mock.AnythingOfType("string")).Return(nil).Once()

	// Act
	err := svc.Collect(ctx, 7, 1000, 3)

	// Assert: 大厅收到 rooms_remove
	require.NoError(t, err)
	evt, ok := fanout.find(domain.EventRoomsRemove)
	require.True(t, ok)
	assert.Equal(t, "lobby", evt.Topic)
	mockPresence.AssertExpectations(t)
	mockRooms.AssertExpectations(t)
}

func TestGCService_Collect_EmptySinceCleared_Abort(t *testing.T) {
	// Arrange: 房间在延迟窗口内复活过，empty_since 已被清除
	mockPresence := new(mocks.PresenceRepository)
	mockRooms := new(mocks.RoomRepository)
	svc := service.NewGCService(mockPresence, mockRooms, &fanoutRecorder{})
	ctx := context.Background()

	mockPresence.On("EmptySince", ctx, uint(7)).Return(int64(0), false, nil).Once()

	// Act & Assert: 中止不是错误，任务不应重试
	assert.NoError(t, svc.Collect(ctx, 7, 1000, 3))
	mockRooms.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockPresence.AssertNotCalled(t, "PurgeRoom", mock.Anything, mock.Anything)
	mockPresence.AssertExpectations(t)
}

func TestGCService_Collect_SeqMismatch_Abort(t *testing.T) {
	// Arrange: 复活又再次变空，gc_seq 前进了，旧任务的捕获值过期
	mockPresence := new(mocks.PresenceRepository)
	mockRooms := new(mocks.RoomRepository)
	svc := service.NewGCService(mockPresence, mockRooms, &fanoutRecorder{})
	ctx := context.Background()

	mockPresence.On("EmptySince", ctx, uint(7)).Return(int64(2000), true, nil).Once()

	// Act & Assert: empty_since 已变化即中止，不再读 gc_seq
	assert.NoError(t, svc.Collect(ctx, 7, 1000, 3))
	mockPresence.AssertNotCalled(t, "AcquireGCLock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockPresence.AssertExpectations(t)
}

func TestGCService_Collect_GCSeqAdvanced_Abort(t *testing.T) {
	mockPresence := new(mocks.PresenceRepository)
	svc := service.NewGCService(mockPresence, new(mocks.RoomRepository), &fanoutRecorder{})
	ctx := context.Background()

	mockPresence.On("EmptySince", ctx, uint(7)).Return(int64(1000), true, nil).Once()
	mockPresence.On("GCSeq", ctx, uint(7)).Return(int64(5), nil).Once()

	assert.NoError(t, svc.Collect(ctx, 7, 1000, 3))
	mockPresence.AssertNotCalled(t, "Occupancy", mock.Anything, mock.Anything)
	mockPresence.AssertExpectations(t)
}

func TestGCService_Collect_Occupied_Abort(t *testing.T) {
	mockPresence := new(mocks.PresenceRepository)
	svc := service.NewGCService(mockPresence, new(mocks.RoomRepository), &fanoutRecorder{})
	ctx := context.Background()

	mockPresence.On("EmptySince", ctx, uint(7)).Return(int64(1000), true, nil).Once()
	mockPresence.On("GCSeq", ctx, uint(7)).Return(int64(3), nil).Once()
	mockPresence.On("Occupancy", ctx, uint(7)).Return(2, nil).Once()

	assert.NoError(t, svc.Collect(ctx, 7, 1000, 3))
	mockPresence.AssertNotCalled(t, "AcquireGCLock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockPresence.AssertExpectations(t)
}

func TestGCService_Collect_LockHeld_Abort(t *testing.T) {
	// Arrange: 另一个副本正在回收同一房间
	mockPresence := new(mocks.PresenceRepository)
	svc := service.NewGCService(mockPresence, new(mocks.RoomRepository), &fanoutRecorder{})
	ctx := context.Background()

	mockPresence.On("EmptySince", ctx, uint(7)).Return(int64(1000), true, nil).Once()
	mockPresence.On("GCSeq", ctx, uint(7)).Return(int64(3), nil).Once()
	mockPresence.On("Occupancy", ctx, uint(7)).Return(0, nil).Once()
	mockPresence.On("AcquireGCLock", ctx, uint(7), mock.AnythingOfType("string"), mock.Anything).Return(false, nil).Once()

	assert.NoError(t, svc.Collect(ctx, 7, 1000, 3))
	mockPresence.AssertNotCalled(t, "ReleaseGCLock", mock.Anything, mock.Anything, mock.Anything)
	mockPresence.AssertExpectations(t)
}

func TestGCService_Collect_FinalizeFails_LockReleasedAndRetryable(t *testing.T) {
	// Arrange: 关系事务失败时必须返回错误让队列重试，且锁必须被释放
	mockPresence := new(mocks.PresenceRepository)
	mockRooms := new(mocks.RoomRepository)
	svc := service.NewGCService(mockPresence, mockRooms, &fanoutRecorder{})
	ctx := context.Background()
	dbErr := errors.New("deadlock")

	mockPresence.On("EmptySince", ctx, uint(7)).Return(int64(1000), true, nil).Once()
	mockPresence.On("GCSeq", ctx, uint(7)).Return(int64(3), nil).Once()
	mockPresence.On("Occupancy", ctx, uint(7)).Return(0, nil).Once()
	mockPresence.On("AcquireGCLock", ctx, uint(7), mock.AnythingOfType("string"), mock.Anything).Return(true, nil).Once()
	mockPresence.On("FlushScreenAccounting", ctx, uint(7), mock.AnythingOfType("int64")).Return(nil).Once()
	mockPresence.On("Visitors", ctx, uint(7)).Return(domain.SecondsByUser{}, nil).Once()
	mockPresence.On("ScreenTime", ctx, uint(7)).Return(domain.SecondsByUser{}, nil).Once()
	mockRooms.On("Finalize", ctx, uint(7), mock.Anything, mock.Anything, mock.Anything).Return(nil, dbErr).Once()
	mockPresence.On("ReleaseGCLock", ctx, uint(7), mock.AnythingOfType("string")).Return(nil).Once()

	// Act & Assert
	err := svc.Collect(ctx, 7, 1000, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dbErr))
	mockPresence.AssertNotCalled(t, "PurgeRoom", mock.Anything, mock.Anything)
	mockPresence.AssertExpectations(t)
	mockRooms.AssertExpectations(t)
}

func TestGCService_Collect_RowAlreadyGone_StillPurgesHotKeys(t *testing.T) {
	// Arrange: 此前的周期已处理关系行，本轮只负责清扫热键
	mockPresence := new(mocks.PresenceRepository)
	mockRooms := new(mocks.RoomRepository)
	fanout := &fanoutRecorder{}
	svc := service.NewGCService(mockPresence, mockRooms, fanout)
	ctx := context.Background()

	mockPresence.On("EmptySince", ctx, uint(7)).Return(int64(1000), true, nil).Once()
	mockPresence.On("GCSeq", ctx, uint(7)).Return(int64(3), nil).Once()
	mockPresence.On("Occupancy", ctx, uint(7)).Return(0, nil).Once()
	mockPresence.On("AcquireGCLock", ctx, uint(7), mock.AnythingOfType("string"), mock.Anything).Return(true, nil).Once()
	mockPresence.On("FlushScreenAccounting", ctx, uint(7), mock.AnythingOfType("int64")).Return(nil).Once()
	mockPresence.On("Visitors", ctx, uint(7)).Return(domain.SecondsByUser{}, nil).Once()
	mockPresence.On("ScreenTime", ctx, uint(7)).Return(domain.SecondsByUser{}, nil).Once()
	mockRooms.On("Finalize", ctx, uint(7), mock.Anything, mock.Anything, mock.Anything).
		Return(&repository.FinalizeOutcome{Found: false}, nil).Once()
	mockPresence.On("PurgeRoom", ctx, uint(7)).Return(nil).Once()
	mockPresence.On("ReleaseGCLock", ctx, uint(7), mock.AnythingOfType("string")).Return(nil).Once()

	// Act & Assert
	require.NoError(t, svc.Collect(ctx, 7, 1000, 3))
	mockPresence.AssertNotCalled(t, "RemoveCreatorRoom", mock.Anything, mock.Anything, mock.Anything)
	_, ok := fanout.find(domain.EventRoomsRemove)
	assert.True(t, ok)
	mockPresence.AssertExpectations(t)
}
