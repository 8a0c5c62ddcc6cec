package repositories

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
)

const inviteCacheKeyPrefix = "room:invite:" // Redis String, 值是 room id

type RoomRepository struct {
	db    *gorm.DB
	redis *redis.Client
	ttl   time.Duration
}

// NewRoomRepository redis 可以为 nil，此时邀请码直接查库
func NewRoomRepository(db *gorm.DB, redis *redis.Client, ttl time.Duration) *RoomRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RoomRepository{db: db, redis: redis, ttl: ttl}
}

// Create 在同一个事务中创建房间与房主成员记录，任一步失败整体回滚。
// 邀请码冲突返回 ErrInviteCodeTaken，调用方换码重试。
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			if errors.Is(translateError(err), ErrDuplicateEntry) {
				return ErrInviteCodeTaken
			}
			return err
		}
		member := models.Membership{RoomID: room.ID, UserID: room.OwnerID}
		if err := tx.Create(&member).Error; err != nil {
			return translateError(err)
		}
		return nil
	})
}

func (r *RoomRepository) GetByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &room, nil
}

// GetByInviteCode 根据邀请码查找房间 (带缓存)
func (r *RoomRepository) GetByInviteCode(ctx context.Context, code string) (*models.Room, error) {
	key := inviteCacheKeyPrefix + code
	if r.redis != nil {
		if id, err := r.redis.Get(ctx, key).Uint64(); err == nil {
			room, err := r.GetByID(ctx, uint(id))
			if errors.Is(err, ErrNotFound) {
				r.redis.Del(ctx, key)
			}
			return room, err
		}
	}

	var room models.Room
	if err := r.db.WithContext(ctx).Where("invite_code = ?", code).First(&room).Error; err != nil {
		return nil, translateError(err)
	}
	if r.redis != nil {
		r.redis.Set(ctx, key, strconv.FormatUint(uint64(room.ID), 10), r.ttl)
	}
	return &room, nil
}

// ListByUser 获取用户加入的所有房间
func (r *RoomRepository) ListByUser(ctx context.Context, userID uint) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN room_users ON room_users.room_id = rooms.id").
		Where("room_users.user_id = ?", userID).
		Order("rooms.id").
		Find(&rooms).Error
	return rooms, translateError(err)
}

// UpdateName 房间不存在 (或已被并发删除) 时返回 ErrNotFound
func (r *RoomRepository) UpdateName(ctx context.Context, id uint, name string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Room{}).Where("id = ?", id).Update("name", name)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.First(&room, id).Error
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &room, nil
}

// Delete 级联删除: 条目 -> 成员 -> 房间，同一事务
func (r *RoomRepository) Delete(ctx context.Context, id uint) error {
	var code string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Select("id", "invite_code").First(&room, id).Error; err != nil {
			return err
		}
		code = room.InviteCode

		if err := tx.Where("room_id = ?", id).Delete(&models.Item{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&models.Membership{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Room{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return translateError(err)
	}
	if r.redis != nil {
		r.redis.Del(ctx, inviteCacheKeyPrefix+code)
	}
	return nil
}

// AddMember 唯一索引 (room_id, user_id) 是最终裁决，重复加入返回 ErrDuplicateEntry
func (r *RoomRepository) AddMember(ctx context.Context, roomID, userID uint) (*models.Membership, error) {
	member := &models.Membership{RoomID: roomID, UserID: userID}
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, translateError(err)
	}
	return member, nil
}

// RemoveMember 成员不存在时返回 ErrNotFound
func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	res := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.Membership{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsMember 查询 room_users，利用 (room_id, user_id) 唯一索引
func (r *RoomRepository) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, translateError(err)
}

// ListMembers 按加入顺序返回成员，房主包含在内
func (r *RoomRepository) ListMembers(ctx context.Context, roomID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN room_users ON room_users.user_id = users.id").
		Where("room_users.room_id = ?", roomID).
		Order("room_users.id").
		Find(&users).Error
	return users, translateError(err)
}

func (r *RoomRepository) CountMembers(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Membership{}).Where("room_id = ?", roomID).Count(&count).Error
	return count, translateError(err)
}
