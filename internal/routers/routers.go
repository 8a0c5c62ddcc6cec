package routers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/config"
	"github.com/Gopher0727/ShoppingRoom/internal/handlers"
	"github.com/Gopher0727/ShoppingRoom/internal/middlewares"
	"github.com/Gopher0727/ShoppingRoom/pkg/ws"
	"github.com/Gopher0727/ShoppingRoom/utils/ratelimit"
)

// Deps 路由需要的所有依赖，由 main 组装
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Rooms    *handlers.RoomHandler
	Items    *handlers.ItemHandler
	WS       *handlers.WSHandler
	Users    middlewares.UserResolver
	BotKey   *middlewares.BotKey
	Limiter  ratelimit.Limiter // 为 nil 时不限流
	Registry *ws.Registry
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, d Deps) {
	r.Use(middlewares.Recovery(d.Log), middlewares.RequestLogger(d.Log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Length", "Content-Type",
		d.Config.Auth.IdentityHeader, d.Config.Auth.NameHeader,
		middlewares.BotKeyHeader, middlewares.TraceHeader,
	}
	r.Use(cors.New(corsConfig))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		rooms, conns := d.Registry.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "OK",
			"rooms":       rooms,
			"connections": conns,
		})
	})

	// WebSocket 路由自行完成身份与成员校验
	r.GET("/ws/:room_id", d.WS.ServeWs)

	// 聊天机器人使用不带前缀的路径
	registerAPI(r.Group(""), d)
	registerAPI(r.Group("/api/v1"), d)
}

func registerAPI(g *gin.RouterGroup, d Deps) {
	cfg := d.Config
	if d.BotKey != nil && d.BotKey.Enabled() {
		g.Use(d.BotKey.Middleware())
	}
	g.Use(middlewares.Identity(d.Users, cfg.Auth.IdentityHeader, cfg.Auth.NameHeader))

	api := g.Group("")
	join := g.Group("")
	if d.Limiter != nil {
		api.Use(middlewares.RateLimit(d.Limiter, ratelimit.EndpointAPI, ratelimit.RuleFor(ratelimit.EndpointAPI, &cfg.RateLimit)))
		join.Use(middlewares.RateLimit(d.Limiter, ratelimit.EndpointJoin, ratelimit.RuleFor(ratelimit.EndpointJoin, &cfg.RateLimit)))
	}

	RegisterRoomRoutes(api, join, d.Rooms)
	RegisterItemRoutes(api, d.Items)
}

// RegisterRoomRoutes 房间与成员
func RegisterRoomRoutes(api, join *gin.RouterGroup, h *handlers.RoomHandler) {
	rooms := api.Group("/rooms")
	{
		rooms.POST("", h.CreateRoom)
		rooms.GET("", h.ListRooms)
		rooms.GET("/:room_id", h.GetRoom)
		rooms.PUT("/:room_id", h.RenameRoom)
		rooms.DELETE("/:room_id", h.DeleteRoom)
		rooms.DELETE("/:room_id/leave", h.LeaveRoom)
		rooms.GET("/:room_id/members", h.ListMembers)
		rooms.POST("/:room_id/add_user", h.AddMember)
		rooms.DELETE("/:room_id/remove_user", h.RemoveMember)
		rooms.GET("/:room_id/ticket", h.IssueTicket)
	}

	join.POST("/rooms/join/:code", h.JoinRoom)
}

// RegisterItemRoutes 购物清单条目
func RegisterItemRoutes(api *gin.RouterGroup, h *handlers.ItemHandler) {
	shopping := api.Group("/shopping")
	{
		shopping.POST("", h.AddItem)
		shopping.GET("/:room_id", h.ListItems)
		shopping.PUT("/:item_id", h.UpdateItem)
		shopping.DELETE("/:item_id", h.DeleteItem)
	}
}
