package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/wi1ex/mafia-sub000/internal/domain"
)

// GormAppLogRepository 是 AppLogRepository 接口的 GORM 实现
type GormAppLogRepository struct {
	db *gorm.DB
}

// NewGormAppLogRepository 创建 GormAppLogRepository 实例
func NewGormAppLogRepository(db *gorm.DB) *GormAppLogRepository {
	if db == nil {
		panic("database connection cannot be nil for GormAppLogRepository")
	}
	return &GormAppLogRepository{db: db}
}

func (r *GormAppLogRepository) Append(ctx context.Context, entry *domain.AppLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("gorm: append app log (action %s): %w", entry.Action, err)
	}
	return nil
}
