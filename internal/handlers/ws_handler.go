package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/config"
	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/services"
	logger "github.com/Gopher0727/ShoppingRoom/middleware/log"
	"github.com/Gopher0727/ShoppingRoom/pkg/ws"
)

// UserLookup 由 services.UserService 实现
type UserLookup interface {
	Resolve(ctx context.Context, externalID, name string) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// RoomViewer 房间存在且调用方是成员时返回 nil error
type RoomViewer interface {
	GetRoom(ctx context.Context, user *models.User, roomID uint) (*services.RoomSummary, error)
}

// TicketVerifier 由 utils.TicketManager 实现
type TicketVerifier interface {
	Enabled() bool
	Verify(ticket string, roomID uint) (uint, error)
}

// KeyChecker 由 middlewares.BotKey 实现
type KeyChecker interface {
	Allowed(r *http.Request) bool
}

type WSHandler struct {
	registry *ws.Registry
	rooms    RoomViewer
	users    UserLookup
	tickets  TicketVerifier
	keys     KeyChecker
	auth     config.AuthConfig
	opts     ws.Options
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(registry *ws.Registry, rooms RoomViewer, users UserLookup, tickets TicketVerifier, keys KeyChecker, auth config.AuthConfig, opts ws.Options, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		registry: registry,
		rooms:    rooms,
		users:    users,
		tickets:  tickets,
		keys:     keys,
		auth:     auth,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

var errNoIdentity = errors.New("no identity")

// identify 优先使用 ticket 参数，其次使用身份请求头
func (h *WSHandler) identify(c *gin.Context, roomID uint) (*models.User, error) {
	ctx := c.Request.Context()
	if ticket := c.Query("ticket"); ticket != "" {
		if h.tickets == nil || !h.tickets.Enabled() {
			return nil, errNoIdentity
		}
		userID, err := h.tickets.Verify(ticket, roomID)
		if err != nil {
			return nil, errors.Join(errNoIdentity, err)
		}
		return h.users.GetByID(ctx, userID)
	}

	externalID := c.GetHeader(h.auth.IdentityHeader)
	if externalID == "" {
		return nil, errNoIdentity
	}
	if h.keys != nil && !h.keys.Allowed(c.Request) {
		return nil, errNoIdentity
	}
	return h.users.Resolve(ctx, externalID, c.GetHeader(h.auth.NameHeader))
}

// ServeWs GET /ws/:room_id
// 连接建立后只推送房间通知，客户端消息被忽略
func (h *WSHandler) ServeWs(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}

	var userID uint
	user, err := h.identify(c, roomID)
	switch {
	case err == nil:
		userID = user.ID
	case h.auth.RequireMembership:
		if !errors.Is(err, errNoIdentity) {
			writeError(c, h.log, err)
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "room membership must be proven to subscribe"})
		return
	default:
		h.log.Debug("anonymous websocket subscriber", zap.Uint("room_id", roomID), zap.Error(err))
	}

	if h.auth.RequireMembership {
		if _, err := h.rooms.GetRoom(c.Request.Context(), user, roomID); err != nil {
			writeError(c, h.log, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Uint("room_id", roomID), zap.Error(err), logger.TraceField(c.Request.Context()))
		return
	}
	client := ws.NewClient(conn, h.registry, roomID, userID, h.opts, h.log)
	client.Serve()

	// 校验与注册之间房间可能被删除、调用方可能被移除。
	// 删除与移除都是先提交再断开连接，注册之后再确认一次即可覆盖这段窗口
	if h.auth.RequireMembership {
		if _, err := h.rooms.GetRoom(c.Request.Context(), user, roomID); err != nil {
			h.registry.Disconnect(roomID, client)
			client.Close()
			h.log.Info("websocket dropped, membership lost during upgrade",
				zap.Uint("room_id", roomID), zap.Uint("user_id", userID), zap.Error(err))
		}
	}
}
