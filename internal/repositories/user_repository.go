package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
)

const userCacheKeyPrefix = "user:ext:" // Redis String, 值是 user JSON

type UserRepository struct {
	db    *gorm.DB
	redis *redis.Client
	ttl   time.Duration
}

// NewUserRepository redis 可以为 nil，此时不使用缓存
func NewUserRepository(db *gorm.DB, redis *redis.Client, ttl time.Duration) *UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &UserRepository{db: db, redis: redis, ttl: ttl}
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// GetByExternalID 根据外部账号获取用户 (带缓存)
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if user, ok := r.getCached(ctx, externalID); ok {
		return user, nil
	}

	var user models.User
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, translateError(err)
	}
	r.setCached(ctx, &user)
	return &user, nil
}

// GetOrCreate 首次出现的外部账号会被创建；name 非空且变化时刷新用户名。
// 两个并发请求同时创建同一账号时，唯一索引冲突的一方重新读取胜出者的记录。
func (r *UserRepository) GetOrCreate(ctx context.Context, externalID, name string) (*models.User, bool, error) {
	user, err := r.GetByExternalID(ctx, externalID)
	switch {
	case err == nil:
		if name != "" && user.UserName != name {
			if err := r.db.WithContext(ctx).Model(user).Update("username", name).Error; err != nil {
				return nil, false, translateError(err)
			}
			user.UserName = name
			r.evict(ctx, externalID)
		}
		return user, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	user = &models.User{ExternalID: externalID, UserName: name}
	if err := translateError(r.db.WithContext(ctx).Create(user).Error); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			user, err = r.GetByExternalID(ctx, externalID)
			return user, false, err
		}
		return nil, false, err
	}
	return user, true, nil
}

func (r *UserRepository) getCached(ctx context.Context, externalID string) (*models.User, bool) {
	if r.redis == nil {
		return nil, false
	}
	val, err := r.redis.Get(ctx, userCacheKeyPrefix+externalID).Result()
	if err != nil {
		return nil, false
	}
	var user models.User
	if json.Unmarshal([]byte(val), &user) != nil {
		return nil, false
	}
	return &user, true
}

func (r *UserRepository) setCached(ctx context.Context, user *models.User) {
	if r.redis == nil {
		return
	}
	if data, err := json.Marshal(user); err == nil {
		r.redis.Set(ctx, userCacheKeyPrefix+user.ExternalID, data, r.ttl)
	}
}

func (r *UserRepository) evict(ctx context.Context, externalID string) {
	if r.redis != nil {
		r.redis.Del(ctx, userCacheKeyPrefix+externalID)
	}
}
