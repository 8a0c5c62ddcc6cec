package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/services"
)

// RoomAPI 由 services.RoomService 实现
type RoomAPI interface {
	CreateRoom(ctx context.Context, owner *models.User, req *services.CreateRoomRequest) (*services.RoomResponse, error)
	ListRooms(ctx context.Context, user *models.User) ([]services.RoomResponse, error)
	GetRoom(ctx context.Context, user *models.User, roomID uint) (*services.RoomSummary, error)
	RenameRoom(ctx context.Context, actor *models.User, roomID uint, req *services.RenameRoomRequest) (*services.RoomResponse, error)
	DeleteRoom(ctx context.Context, actor *models.User, roomID uint) error
	JoinRoom(ctx context.Context, user *models.User, code string) (*services.RoomSummary, error)
	LeaveRoom(ctx context.Context, user *models.User, roomID uint) error
	AddMember(ctx context.Context, actor *models.User, roomID uint, req *services.MemberRequest) (*services.MemberResponse, error)
	RemoveMember(ctx context.Context, actor *models.User, roomID uint, req *services.MemberRequest) error
	ListMembers(ctx context.Context, user *models.User, roomID uint) ([]services.MemberResponse, error)
}

// TicketIssuer 由 utils.TicketManager 实现
type TicketIssuer interface {
	Enabled() bool
	Issue(userID, roomID uint) (string, time.Time, error)
}

type RoomHandler struct {
	rooms   RoomAPI
	tickets TicketIssuer
	log     *zap.Logger
}

func NewRoomHandler(rooms RoomAPI, tickets TicketIssuer, log *zap.Logger) *RoomHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomHandler{rooms: rooms, tickets: tickets, log: log}
}

// CreateRoom POST /rooms
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req services.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	resp, err := h.rooms.CreateRoom(c.Request.Context(), user, &req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// ListRooms GET /rooms
func (h *RoomHandler) ListRooms(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	resp, err := h.rooms.ListRooms(c.Request.Context(), user)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// GetRoom GET /rooms/:room_id
func (h *RoomHandler) GetRoom(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	resp, err := h.rooms.GetRoom(c.Request.Context(), user, roomID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// RenameRoom PUT /rooms/:room_id
func (h *RoomHandler) RenameRoom(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var req services.RenameRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	resp, err := h.rooms.RenameRoom(c.Request.Context(), user, roomID, &req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// DeleteRoom DELETE /rooms/:room_id
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	if err := h.rooms.DeleteRoom(c.Request.Context(), user, roomID); err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, gin.H{"room_id": roomID})
}

// JoinRoom POST /rooms/join/:code
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	resp, err := h.rooms.JoinRoom(c.Request.Context(), user, c.Param("code"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// LeaveRoom DELETE /rooms/:room_id/leave
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	if err := h.rooms.LeaveRoom(c.Request.Context(), user, roomID); err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, gin.H{"room_id": roomID})
}

// ListMembers GET /rooms/:room_id/members
func (h *RoomHandler) ListMembers(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	resp, err := h.rooms.ListMembers(c.Request.Context(), user, roomID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// bindMember 目标用户可以放在 query 或 JSON body 中
func bindMember(c *gin.Context) (*services.MemberRequest, bool) {
	var req services.MemberRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	if req.UserID == 0 && req.ExternalID == "" && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return nil, false
		}
	}
	return &req, true
}

// AddMember POST /rooms/:room_id/add_user
func (h *RoomHandler) AddMember(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	req, ok := bindMember(c)
	if !ok {
		return
	}
	resp, err := h.rooms.AddMember(c.Request.Context(), user, roomID, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, resp)
}

// RemoveMember DELETE /rooms/:room_id/remove_user
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	req, ok := bindMember(c)
	if !ok {
		return
	}
	if err := h.rooms.RemoveMember(c.Request.Context(), user, roomID, req); err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, gin.H{"room_id": roomID})
}

// IssueTicket GET /rooms/:room_id/ticket
// 成员获取短期有效的 WebSocket 连接凭证
func (h *RoomHandler) IssueTicket(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	if h.tickets == nil || !h.tickets.Enabled() {
		writeError(c, h.log, services.ErrTicketsDisabled)
		return
	}
	if _, err := h.rooms.GetRoom(c.Request.Context(), user, roomID); err != nil {
		writeError(c, h.log, err)
		return
	}
	ticket, exp, err := h.tickets.Issue(user.ID, roomID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, gin.H{"ticket": ticket, "expires_at": exp})
}
