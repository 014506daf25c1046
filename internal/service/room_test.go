package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
	"github.com/wi1ex/mafia-sub000/internal/repository/mocks"
	"github.com/wi1ex/mafia-sub000/internal/service"
)

func newRoomService(t *testing.T) (*service.RoomService, *mocks.RoomRepository, *mocks.AppLogRepository, *mocks.PresenceRepository, *fanoutRecorder) {
	t.Helper()
	mockRooms := new(mocks.RoomRepository)
	mockLogs := new(mocks.AppLogRepository)
	mockPresence := new(mocks.PresenceRepository)
	fanout := &fanoutRecorder{}
	return service.NewRoomService(mockRooms, mockLogs, mockPresence, fanout), mockRooms, mockLogs, mockPresence, fanout
}

func TestRoomService_CreateRoom_Success(t *testing.T) {
	// Arrange
	svc, mockRooms, mockLogs, mockPresence, fanout := newRoomService(t)
	ctx := context.Background()

	mockRooms.On("Create", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		assert.Equal(t, "夜车", room.Title)
		assert.Equal(t, 8, room.UserLimit)
		assert.Equal(t, domain.PrivacyOpen, room.Privacy)
		return true
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Room).ID = 11 // 模拟数据库分配主键
	}).Return(nil).Once()
	mockPresence.On("RegisterRoom", ctx, mock.AnythingOfType("*domain.Room")).Return(nil).Once()
	mockPresence.On("AddCreatorRoom", ctx, uint(5), uint(11)).Return(nil).Once()
	mockLogs.On("Append", ctx, mock.MatchedBy(func(entry *domain.AppLog) bool {
		return entry.Action == domain.ActionRoomCreated && entry.UserID == 5
	})).Return(nil).Once()

	// Act
	brief, err := svc.CreateRoom(ctx, 5, "nika", "  夜车 ", 8, domain.PrivacyOpen, nil)

	// Assert: 热存储写入先于 rooms_upsert 广播
	require.NoError(t, err)
	assert.Equal(t, uint(11), brief.ID)
	assert.Equal(t, "夜车", brief.Title, "标题首尾空白应被剔除")
	evt, ok := fanout.find(domain.EventRoomsUpsert)
	require.True(t, ok)
	assert.Equal(t, "lobby", evt.Topic)
	mockRooms.AssertExpectations(t)
	mockPresence.AssertExpectations(t)
	mockLogs.AssertExpectations(t)
}

func TestRoomService_CreateRoom_Validation(t *testing.T) {
	svc, mockRooms, _, _, fanout := newRoomService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		title   string
		limit   int
		privacy string
	}{
		{"空标题", "   ", 8, domain.PrivacyOpen},
		{"标题超长", strings.Repeat("局", domain.MaxTitleLen+1), 8, domain.PrivacyOpen},
		{"人数下限", "房间", domain.MinUserLimit - 1, domain.PrivacyOpen},
		{"人数上限", "房间", domain.MaxUserLimit + 1, domain.PrivacyOpen},
		{"非法私密性", "房间", 8, "secretish"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRoom(ctx, 5, "nika", tc.title, tc.limit, tc.privacy, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, service.ErrValidation))
		})
	}
	mockRooms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, fanout.names())
}

func TestRoomService_CreateRoom_HotStoreFailure_NoBroadcast(t *testing.T) {
	// Arrange: params 写入失败时房间不能变得“可见但不可读”
	svc, mockRooms, _, mockPresence, fanout := newRoomService(t)
	ctx := context.Background()

	mockRooms.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Room).ID = 11
	}).Return(nil).Once()
	mockPresence.On("RegisterRoom", ctx, mock.Anything).Return(errors.New("redis down")).Once()

	// Act
	_, err := svc.CreateRoom(ctx, 5, "nika", "房间", 8, domain.PrivacyOpen, nil)

	// Assert
	require.Error(t, err)
	assert.Empty(t, fanout.names())
	mockPresence.AssertExpectations(t)
}

func TestRoomService_ListRooms_SkipsVanishedRooms(t *testing.T) {
	// Arrange: 索引里的 8 号房 params 已被并发 GC 清掉，列表应跳过它
	svc, _, _, mockPresence, _ := newRoomService(t)
	ctx := context.Background()

	mockPresence.On("RoomIDs", ctx, int64(100)).Return([]uint{9, 8}, nil).Once()
	mockPresence.On("RoomBrief", ctx, uint(9)).
		Return(&domain.RoomBrief{ID: 9, Title: "甲"}, nil).Once()
	mockPresence.On("RoomBrief", ctx, uint(8)).Return(nil, repository.ErrNotFound).Once()

	// Act
	briefs, err := svc.ListRooms(ctx, 100)

	// Assert
	require.NoError(t, err)
	require.Len(t, briefs, 1)
	assert.Equal(t, uint(9), briefs[0].ID)
	mockPresence.AssertExpectations(t)
}

func TestRoomService_Rehydrate_RestoresMissingRooms(t *testing.T) {
	// Arrange: 9 号已在索引中，11 号丢失需要重建
	svc, mockRooms, _, mockPresence, _ := newRoomService(t)
	ctx := context.Background()

	active := []domain.Room{{ID: 9, Title: "甲"}, {ID: 11, Title: "乙"}}
	mockRooms.On("FindAllActive", ctx).Return(active, nil).Once()
	mockPresence.On("InIndex", ctx, uint(9)).Return(true, nil).Once()
	mockPresence.On("InIndex", ctx, uint(11)).Return(false, nil).Once()
	mockPresence.On("RegisterRoom", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		return room.ID == 11
	})).Return(nil).Once()

	// Act & Assert
	require.NoError(t, svc.Rehydrate(ctx))
	mockRooms.AssertExpectations(t)
	mockPresence.AssertExpectations(t)
}

func TestRoomService_GetBrief_NotFound(t *testing.T) {
	svc, _, _, mockPresence, _ := newRoomService(t)
	ctx := context.Background()

	mockPresence.On("RoomBrief", ctx, uint(7)).Return(nil, repository.ErrNotFound).Once()

	_, err := svc.GetBrief(ctx, 7)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
	mockPresence.AssertExpectations(t)
}
