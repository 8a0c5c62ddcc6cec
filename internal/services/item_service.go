package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/notifier"
)

type AddItemRequest struct {
	RoomID   uint    `json:"room_id" binding:"required"`
	Name     string  `json:"name" binding:"required"`
	Category *string `json:"category"`
}

// UpdateItemRequest 字段为 nil 表示不修改；category 为空字符串表示清除分类
type UpdateItemRequest struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
}

type ItemResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Category  *string   `json:"category"`
	RoomID    uint      `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
}

func toItemResponse(item *models.Item) *ItemResponse {
	return &ItemResponse{
		ID:        item.ID,
		Name:      item.Name,
		Category:  item.Category,
		RoomID:    item.RoomID,
		CreatedAt: item.CreatedAt,
	}
}

func validateItemName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > models.ItemNameMaxLen {
		return "", badRequest("item name must be between 1 and %d characters", models.ItemNameMaxLen)
	}
	return name, nil
}

// validateCategory 空分类归一为 nil
func validateCategory(category *string) (*string, error) {
	if category == nil {
		return nil, nil
	}
	c := strings.TrimSpace(*category)
	if c == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(c) > models.ItemCategoryMaxLen {
		return nil, badRequest("item category must be at most %d characters", models.ItemCategoryMaxLen)
	}
	return &c, nil
}

// ItemService 购物清单条目的增删改查，每个操作先做成员校验
type ItemService struct {
	items    ItemStore
	rooms    RoomStore
	access   *AccessControl
	notifier EventNotifier
	locks    *RoomLocks
	log      *zap.Logger
}

func NewItemService(items ItemStore, rooms RoomStore, access *AccessControl, n EventNotifier, locks *RoomLocks, log *zap.Logger) *ItemService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ItemService{
		items:    items,
		rooms:    rooms,
		access:   access,
		notifier: n,
		locks:    locks,
		log:      log,
	}
}

// memberRoom 房间不存在返回 NotFound，非成员返回 Forbidden
func (s *ItemService) memberRoom(ctx context.Context, user *models.User, roomID uint) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fromRepo("get room", err, ErrRoomNotFound)
	}
	if err := s.access.Require(ctx, user.ID, roomID); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *ItemService) AddItem(ctx context.Context, actor *models.User, req *AddItemRequest) (*ItemResponse, error) {
	name, err := validateItemName(req.Name)
	if err != nil {
		return nil, err
	}
	category, err := validateCategory(req.Category)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.RoomID)
	defer unlock()

	room, err := s.memberRoom(ctx, actor, req.RoomID)
	if err != nil {
		return nil, err
	}
	item := &models.Item{Name: name, Category: category, RoomID: room.ID}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, internal("add item", err)
	}

	s.notifier.Notify(ctx, room.ID, notifier.Event{
		Kind:     notifier.ItemAdded,
		RoomName: room.Name,
		Actor:    displayName(actor),
		ItemName: item.Name,
		Category: item.CategoryOr(""),
	})
	return toItemResponse(item), nil
}

// lockedItem 取得条目所在房间的锁，并在锁内重新读取条目。返回的 unlock 非 nil 时由调用方释放
func (s *ItemService) lockedItem(ctx context.Context, itemID uint) (*models.Item, func(), error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, nil, fromRepo("get item", err, ErrItemNotFound)
	}
	unlock := s.locks.Lock(item.RoomID)
	item, err = s.items.GetByID(ctx, itemID)
	if err != nil {
		unlock()
		return nil, nil, fromRepo("get item", err, ErrItemNotFound)
	}
	return item, unlock, nil
}

func (s *ItemService) UpdateItem(ctx context.Context, actor *models.User, itemID uint, req *UpdateItemRequest) (*ItemResponse, error) {
	if req.Name == nil && req.Category == nil {
		return nil, badRequest("nothing to update")
	}
	var (
		name     string
		category *string
		err      error
	)
	if req.Name != nil {
		if name, err = validateItemName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Category != nil {
		if category, err = validateCategory(req.Category); err != nil {
			return nil, err
		}
	}

	item, unlock, err := s.lockedItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	room, err := s.memberRoom(ctx, actor, item.RoomID)
	if err != nil {
		return nil, err
	}

	oldName := item.Name
	if req.Name != nil {
		item.Name = name
	}
	if req.Category != nil {
		item.Category = category
	}
	if err := s.items.Update(ctx, item); err != nil {
		return nil, fromRepo("update item", err, ErrItemNotFound)
	}

	s.notifier.Notify(ctx, room.ID, notifier.Event{
		Kind:     notifier.ItemUpdated,
		RoomName: room.Name,
		Actor:    displayName(actor),
		OldName:  oldName,
		ItemName: item.Name,
		Category: item.CategoryOr(""),
	})
	return toItemResponse(item), nil
}

func (s *ItemService) DeleteItem(ctx context.Context, actor *models.User, itemID uint) error {
	item, unlock, err := s.lockedItem(ctx, itemID)
	if err != nil {
		return err
	}
	defer unlock()

	room, err := s.memberRoom(ctx, actor, item.RoomID)
	if err != nil {
		return err
	}
	if err := s.items.Delete(ctx, itemID); err != nil {
		return fromRepo("delete item", err, ErrItemNotFound)
	}

	s.notifier.Notify(ctx, room.ID, notifier.Event{
		Kind:     notifier.ItemDeleted,
		RoomName: room.Name,
		Actor:    displayName(actor),
		ItemName: item.Name,
	})
	return nil
}

// ListItems 房间被删除后返回 NotFound
func (s *ItemService) ListItems(ctx context.Context, user *models.User, roomID uint) ([]ItemResponse, error) {
	if _, err := s.memberRoom(ctx, user, roomID); err != nil {
		return nil, err
	}
	items, err := s.items.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, internal("list items", err)
	}
	resp := make([]ItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, *toItemResponse(&items[i]))
	}
	return resp, nil
}
