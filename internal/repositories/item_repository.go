package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
)

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	return translateError(r.db.WithContext(ctx).Create(item).Error)
}

func (r *ItemRepository) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

// Update 只写入 name / category 两列
func (r *ItemRepository) Update(ctx context.Context, item *models.Item) error {
	res := r.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{"name": item.Name, "category": item.Category})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ItemRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Item{}, id)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ItemRepository) ListByRoom(ctx context.Context, roomID uint) ([]models.Item, error) {
	var items []models.Item
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id").Find(&items).Error
	return items, translateError(err)
}
