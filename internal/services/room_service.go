package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/notifier"
	"github.com/Gopher0727/ShoppingRoom/internal/repositories"
	logger "github.com/Gopher0727/ShoppingRoom/middleware/log"
	"github.com/Gopher0727/ShoppingRoom/pkg/utils"
)

type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

type RenameRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// MemberRequest 指定目标用户，user_id 与 external_id 二选一
type MemberRequest struct {
	UserID     uint   `json:"user_id" form:"user_id"`
	ExternalID string `json:"external_id" form:"external_id"`
}

type RoomResponse struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	OwnerID    uint      `json:"owner_id"`
	InviteCode string    `json:"invite_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoomSummary 加入房间与查看房间时返回
type RoomSummary struct {
	RoomResponse
	MemberCount int64 `json:"member_count"`
}

type MemberResponse struct {
	ID         uint   `json:"id"`
	ExternalID string `json:"external_id"`
	UserName   string `json:"username"`
	IsOwner    bool   `json:"is_owner"`
}

func toRoomResponse(room *models.Room) *RoomResponse {
	return &RoomResponse{
		ID:         room.ID,
		Name:       room.Name,
		OwnerID:    room.OwnerID,
		InviteCode: room.InviteCode,
		CreatedAt:  room.CreatedAt,
	}
}

type RoomOptions struct {
	InviteCodeLength int
	InviteMaxRetries int
	// EvictOnLeave 成员离开或被移除后断开其实时连接，订阅要求成员资格时开启
	EvictOnLeave     bool
}

// RoomService 房间生命周期与成员关系。
// 所有写操作在房间锁内完成提交与通知，通知失败不会回滚已提交的状态
type RoomService struct {
	rooms    RoomStore
	users    UserStore
	access   *AccessControl
	notifier EventNotifier
	closer   RoomCloser
	locks    *RoomLocks
	opts     RoomOptions
	newCode  func(length int) string
	log      *zap.Logger
}

// NewRoomService closer 可以为 nil
func NewRoomService(rooms RoomStore, users UserStore, n EventNotifier, closer RoomCloser, locks *RoomLocks, opts RoomOptions, log *zap.Logger) *RoomService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.InviteMaxRetries <= 0 {
		opts.InviteMaxRetries = 5
	}
	if opts.InviteCodeLength <= 0 {
		opts.InviteCodeLength = 8
	}
	return &RoomService{
		rooms:    rooms,
		users:    users,
		access:   NewAccessControl(rooms),
		notifier: n,
		closer:   closer,
		locks:    locks,
		opts:     opts,
		newCode:  utils.NewInviteCode,
		log:      log,
	}
}

// Access 暴露给其它服务共用的成员判断
func (s *RoomService) Access() *AccessControl {
	return s.access
}

func validateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < models.RoomNameMinLen || n > models.RoomNameMaxLen {
		return "", badRequest("room name must be between %d and %d characters", models.RoomNameMinLen, models.RoomNameMaxLen)
	}
	return name, nil
}

// displayName 事件中使用的用户名
func displayName(u *models.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return "user " + u.ExternalID
}

// CreateRoom 创建房间，房主成员记录与房间在同一事务中写入。
// 邀请码冲突时换码重试，最多 InviteMaxRetries 次
func (s *RoomService) CreateRoom(ctx context.Context, owner *models.User, req *CreateRoomRequest) (*RoomResponse, error) {
	name, err := validateRoomName(req.Name)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.opts.InviteMaxRetries; attempt++ {
		room := &models.Room{
			Name:       name,
			OwnerID:    owner.ID,
			InviteCode: s.newCode(s.opts.InviteCodeLength),
		}
		err := s.rooms.Create(ctx, room)
		if err == nil {
			s.log.Info("room created",
				zap.Uint("room_id", room.ID),
				zap.Uint("owner_id", owner.ID),
				logger.TraceField(ctx),
			)
			s.notifier.Notify(ctx, room.ID, notifier.Event{
				Kind:     notifier.RoomCreated,
				RoomName: room.Name,
				Actor:    displayName(owner),
			})
			return toRoomResponse(room), nil
		}
		if !errors.Is(err, repositories.ErrInviteCodeTaken) {
			return nil, internal("create room", err)
		}
		s.log.Debug("invite code collision, retrying", zap.Int("attempt", attempt), logger.TraceField(ctx))
	}
	return nil, ErrInviteExhausted
}

// ListRooms 用户加入的所有房间，包括自己创建的
func (s *RoomService) ListRooms(ctx context.Context, user *models.User) ([]RoomResponse, error) {
	rooms, err := s.rooms.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, internal("list rooms", err)
	}
	resp := make([]RoomResponse, 0, len(rooms))
	for i := range rooms {
		resp = append(resp, *toRoomResponse(&rooms[i]))
	}
	return resp, nil
}

// GetRoom 仅成员可见
func (s *RoomService) GetRoom(ctx context.Context, user *models.User, roomID uint) (*RoomSummary, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fromRepo("get room", err, ErrRoomNotFound)
	}
	if err := s.access.Require(ctx, user.ID, roomID); err != nil {
		return nil, err
	}
	return s.summary(ctx, room), nil
}

func (s *RoomService) summary(ctx context.Context, room *models.Room) *RoomSummary {
	count, err := s.rooms.CountMembers(ctx, room.ID)
	if err != nil {
		s.log.Warn("count members failed", zap.Uint("room_id", room.ID), zap.Error(err), logger.TraceField(ctx))
	}
	return &RoomSummary{RoomResponse: *toRoomResponse(room), MemberCount: count}
}

// ownedRoom 调用方持有房间锁
func (s *RoomService) ownedRoom(ctx context.Context, actor *models.User, roomID uint) (*models.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fromRepo("get room", err, ErrRoomNotFound)
	}
	if room.OwnerID != actor.ID {
		return nil, ErrNotOwner
	}
	return room, nil
}

func (s *RoomService) RenameRoom(ctx context.Context, actor *models.User, roomID uint, req *RenameRoomRequest) (*RoomResponse, error) {
	name, err := validateRoomName(req.Name)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.ownedRoom(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	updated, err := s.rooms.UpdateName(ctx, roomID, name)
	if err != nil {
		return nil, fromRepo("rename room", err, ErrRoomNotFound)
	}

	s.notifier.Notify(ctx, roomID, notifier.Event{
		Kind:     notifier.RoomRenamed,
		OldName:  room.Name,
		RoomName: updated.Name,
		Actor:    displayName(actor),
	})
	return toRoomResponse(updated), nil
}

// DeleteRoom 级联删除成员与条目。
// 删除通知进入各连接的发送队列后，再关闭房间内的所有连接
func (s *RoomService) DeleteRoom(ctx context.Context, actor *models.User, roomID uint) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.ownedRoom(ctx, actor, roomID)
	if err != nil {
		return err
	}
	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return fromRepo("delete room", err, ErrRoomNotFound)
	}
	s.log.Info("room deleted", zap.Uint("room_id", roomID), zap.Uint("owner_id", actor.ID), logger.TraceField(ctx))

	s.notifier.Notify(ctx, roomID, notifier.Event{
		Kind:     notifier.RoomDeleted,
		RoomName: room.Name,
		Actor:    displayName(actor),
	})
	if s.closer != nil {
		s.closer.CloseRoom(roomID)
	}
	return nil
}

// JoinRoom 通过邀请码加入房间。
// 重复加入返回 Conflict；并发加入时由 (room_id, user_id) 唯一索引裁决，失败的一方同样得到 Conflict
func (s *RoomService) JoinRoom(ctx context.Context, user *models.User, code string) (*RoomSummary, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInviteNotFound
	}
	room, err := s.rooms.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, fromRepo("resolve invite code", err, ErrInviteNotFound)
	}

	unlock := s.locks.Lock(room.ID)
	defer unlock()

	// 等锁期间房间可能已被删除或改名
	room, err = s.rooms.GetByID(ctx, room.ID)
	if err != nil {
		return nil, fromRepo("get room", err, ErrInviteNotFound)
	}
	if err := s.insertMember(ctx, room.ID, user.ID); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, room.ID, notifier.Event{
		Kind:     notifier.MemberJoined,
		RoomName: room.Name,
		Actor:    displayName(user),
	})
	return s.summary(ctx, room), nil
}

func (s *RoomService) insertMember(ctx context.Context, roomID, userID uint) error {
	ok, err := s.access.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyMember
	}
	if _, err := s.rooms.AddMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEntry) {
			return ErrAlreadyMember
		}
		return internal("add member", err)
	}
	return nil
}

// LeaveRoom 房主不能离开，只能删除房间
func (s *RoomService) LeaveRoom(ctx context.Context, user *models.User, roomID uint) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return fromRepo("get room", err, ErrRoomNotFound)
	}
	if room.OwnerID == user.ID {
		return ErrOwnerCannotLeave
	}
	if err := s.rooms.RemoveMember(ctx, roomID, user.ID); err != nil {
		return fromRepo("leave room", err, ErrNotMember)
	}

	s.notifier.Notify(ctx, roomID, notifier.Event{
		Kind:     notifier.MemberLeft,
		RoomName: room.Name,
		Actor:    displayName(user),
	})
	s.evict(roomID, user.ID)
	return nil
}

// evict 在通知入队之后调用，被断开的连接仍能收到自己离开的消息
func (s *RoomService) evict(roomID, userID uint) {
	if s.closer == nil || !s.opts.EvictOnLeave {
		return
	}
	if n := s.closer.CloseUser(roomID, userID); n > 0 {
		s.log.Info("closed connections of former member",
			zap.Uint("room_id", roomID), zap.Uint("user_id", userID), zap.Int("connections", n))
	}
}

func (s *RoomService) resolveTarget(ctx context.Context, req *MemberRequest) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	switch {
	case req.UserID != 0:
		user, err = s.users.GetByID(ctx, req.UserID)
	case strings.TrimSpace(req.ExternalID) != "":
		user, err = s.users.GetByExternalID(ctx, strings.TrimSpace(req.ExternalID))
	default:
		return nil, badRequest("user_id or external_id is required")
	}
	if err != nil {
		return nil, fromRepo("get user", err, ErrUserNotFound)
	}
	return user, nil
}

// AddMember 仅房主可以直接添加成员
func (s *RoomService) AddMember(ctx context.Context, actor *models.User, roomID uint, req *MemberRequest) (*MemberResponse, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.ownedRoom(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.insertMember(ctx, roomID, target.ID); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, roomID, notifier.Event{
		Kind:     notifier.MemberAdded,
		RoomName: room.Name,
		Actor:    displayName(actor),
		Target:   displayName(target),
	})
	return &MemberResponse{ID: target.ID, ExternalID: target.ExternalID, UserName: target.UserName}, nil
}

// RemoveMember 仅房主可以移除成员，房主本身不能被移除
func (s *RoomService) RemoveMember(ctx context.Context, actor *models.User, roomID uint, req *MemberRequest) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.ownedRoom(ctx, actor, roomID)
	if err != nil {
		return err
	}
	target, err := s.resolveTarget(ctx, req)
	if err != nil {
		return err
	}
	if target.ID == room.OwnerID {
		return ErrOwnerNotRemoved
	}
	if err := s.rooms.RemoveMember(ctx, roomID, target.ID); err != nil {
		return fromRepo("remove member", err, ErrNotMember)
	}

	s.notifier.Notify(ctx, roomID, notifier.Event{
		Kind:     notifier.MemberRemoved,
		RoomName: room.Name,
		Actor:    displayName(actor),
		Target:   displayName(target),
	})
	s.evict(roomID, target.ID)
	return nil
}

// ListMembers 房主包含在内。房间不存在返回 NotFound，非成员返回 Forbidden
func (s *RoomService) ListMembers(ctx context.Context, user *models.User, roomID uint) ([]MemberResponse, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fromRepo("get room", err, ErrRoomNotFound)
	}
	if err := s.access.Require(ctx, user.ID, roomID); err != nil {
		return nil, err
	}
	users, err := s.rooms.ListMembers(ctx, roomID)
	if err != nil {
		return nil, internal("list members", err)
	}
	resp := make([]MemberResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, MemberResponse{
			ID:         u.ID,
			ExternalID: u.ExternalID,
			UserName:   u.UserName,
			IsOwner:    u.ID == room.OwnerID,
		})
	}
	return resp, nil
}
