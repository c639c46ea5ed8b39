package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/shelfmate/library_server/internal/model"
)

// ItemRepository 目录条目存储，订阅模块只关心每个用户的条目数量
type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, item *model.MediaItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// CreateBatch 批量导入
func (r *ItemRepository) CreateBatch(ctx context.Context, items []model.MediaItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(items, 100).Error
}

// CountItems 用户当前拥有的条目数量
func (r *ItemRepository) CountItems(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.MediaItem{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	return count, err
}
