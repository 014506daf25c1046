package gormpersistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if room.Visitors == nil {
		room.Visitors = domain.SecondsByUser{}
	}
	if room.ScreenTime == nil {
		room.ScreenTime = domain.SecondsByUser{}
	}
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room %q: %w", room.Title, err)
	}
	return nil
}

func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

func (r *GormRoomRepository) FindAllActive(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Order("created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find active rooms: %w", err)
	}
	return rooms, nil
}

// Finalize 在单个事务内终结房间行。唯一访客数 <= 1 时直接删除，
// 否则按 key 合并计数列（热存储值覆盖）并置 deleted_at，
// 同一事务内追加 room_deleted 审计记录。重复调用是空操作。
func (r *GormRoomRepository) Finalize(ctx context.Context, roomID uint, visitors, screenTime domain.SecondsByUser, now time.Time) (*repository.FinalizeOutcome, error) {
	outcome := &repository.FinalizeOutcome{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		if err := tx.First(&room, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 上一个 GC 周期已经处理过该行
				return nil
			}
			return fmt.Errorf("lookup room %d: %w", roomID, err)
		}
		outcome.Found = true
		outcome.CreatorID = room.CreatorID
		outcome.Title = room.Title
		outcome.UserLimit = room.UserLimit

		unique := 0
		for _, sec := range visitors {
			if sec > 0 {
				unique++
			}
		}
		outcome.UniqueVisitors = unique

		if unique <= 1 {
			if err := tx.Delete(&domain.Room{}, roomID).Error; err != nil {
				return fmt.Errorf("delete room %d: %w", roomID, err)
			}
			outcome.Deleted = true
		} else {
			if room.Visitors == nil {
				room.Visitors = domain.SecondsByUser{}
			}
			if room.ScreenTime == nil {
				room.ScreenTime = domain.SecondsByUser{}
			}
			room.Visitors.Merge(visitors)
			room.ScreenTime.Merge(screenTime)
			deletedAt := now.UTC()
			updates := map[string]interface{}{
				"visitors":    room.Visitors,
				"screen_time": room.ScreenTime,
				"deleted_at":  &deletedAt,
			}
			if err := tx.Model(&domain.Room{}).Where("id = ?", roomID).Updates(updates).Error; err != nil {
				return fmt.Errorf("soft delete room %d: %w", roomID, err)
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"room_id":         roomID,
			"title":           room.Title,
			"user_limit":      room.UserLimit,
			"unique_visitors": unique,
		})
		entry := domain.AppLog{
			UserID:   room.CreatorID,
			Username: room.CreatorName,
			Action:   domain.ActionRoomDeleted,
			Details:  string(details),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("append audit entry for room %d: %w", roomID, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: finalize room %d: %w", roomID, err)
	}
	return outcome, nil
}
