package services

import (
	"context"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/notifier"
)

// RoomStore 由 repositories.RoomRepository 实现
type RoomStore interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uint) (*models.Room, error)
	GetByInviteCode(ctx context.Context, code string) (*models.Room, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Room, error)
	UpdateName(ctx context.Context, id uint, name string) (*models.Room, error)
	Delete(ctx context.Context, id uint) error
	AddMember(ctx context.Context, roomID, userID uint) (*models.Membership, error)
	RemoveMember(ctx context.Context, roomID, userID uint) error
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)
	ListMembers(ctx context.Context, roomID uint) ([]models.User, error)
	CountMembers(ctx context.Context, roomID uint) (int64, error)
}

// ItemStore 由 repositories.ItemRepository 实现
type ItemStore interface {
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	Update(ctx context.Context, item *models.Item) error
	Delete(ctx context.Context, id uint) error
	ListByRoom(ctx context.Context, roomID uint) ([]models.Item, error)
}

// UserStore 由 repositories.UserRepository 实现
type UserStore interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetOrCreate(ctx context.Context, externalID, name string) (*models.User, bool, error)
}

// EventNotifier 由 notifier.Notifier 实现
type EventNotifier interface {
	Notify(ctx context.Context, roomID uint, e notifier.Event)
}

// RoomCloser 由 ws.Registry 实现。
// 房间删除后断开房间内的实时连接，成员离开或被移除后断开该成员的连接
type RoomCloser interface {
	CloseRoom(roomID uint) int
	CloseUser(roomID, userID uint) int
}
