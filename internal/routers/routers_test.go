package routers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Gopher0727/ShoppingRoom/config"
	"github.com/Gopher0727/ShoppingRoom/internal/handlers"
	"github.com/Gopher0727/ShoppingRoom/internal/middlewares"
	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/services"
	"github.com/Gopher0727/ShoppingRoom/pkg/ws"
	"github.com/Gopher0727/ShoppingRoom/utils/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// roomsStub 只实现路由测试用到的方法
type roomsStub struct {
	handlers.RoomAPI
}

func (roomsStub) ListRooms(_ context.Context, user *models.User) ([]services.RoomResponse, error) {
	return []services.RoomResponse{{ID: 1, Name: "Groceries", OwnerID: user.ID}}, nil
}

func (roomsStub) JoinRoom(_ context.Context, user *models.User, code string) (*services.RoomSummary, error) {
	return &services.RoomSummary{RoomResponse: services.RoomResponse{ID: 1, InviteCode: code}}, nil
}

type itemsStub struct {
	handlers.ItemAPI
}

type users struct{}

func (users) Resolve(_ context.Context, externalID, name string) (*models.User, error) {
	return &models.User{ID: 42, ExternalID: externalID, UserName: name}, nil
}

func newEngine(t *testing.T, botKey *middlewares.BotKey) (*gin.Engine, *ws.Registry) {
	t.Helper()
	cfg := &config.Config{
		Auth: config.AuthConfig{
			IdentityHeader:    "telegram-id",
			NameHeader:        "telegram-username",
			RequireMembership: true,
		},
		RateLimit: config.RateLimitConfig{APIPerMinute: 100, JoinPerMinute: 2},
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	registry := ws.NewRegistry(nil)
	r := gin.New()
	SetupRoutes(r, Deps{
		Config:   cfg,
		Log:      zap.NewNop(),
		Rooms:    handlers.NewRoomHandler(roomsStub{}, nil, nil),
		Items:    handlers.NewItemHandler(itemsStub{}, nil),
		WS:       handlers.NewWSHandler(registry, nil, nil, nil, nil, cfg.Auth, ws.Options{}, nil),
		Users:    users{},
		BotKey:   botKey,
		Limiter:  ratelimit.NewRedisLimiter(client, nil, false),
		Registry: registry,
	})
	return r, registry
}

func request(r *gin.Engine, method, path, identity string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if identity != "" {
		req.Header.Set("telegram-id", identity)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := newEngine(t, nil)
	w := request(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestRoutes_BareAndVersioned(t *testing.T) {
	r, _ := newEngine(t, nil)
	for _, path := range []string{"/rooms", "/api/v1/rooms"} {
		w := request(r, http.MethodGet, path, "1001")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), "Groceries", path)
		assert.NotEmpty(t, w.Header().Get(middlewares.TraceHeader))
	}
}

func TestRoutes_IdentityRequired(t *testing.T) {
	r, _ := newEngine(t, nil)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/rooms", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/v1/shopping/1", "").Code)
}

func TestRoutes_JoinIsRateLimited(t *testing.T) {
	r, _ := newEngine(t, nil)
	assert.Equal(t, http.StatusOK, request(r, http.MethodPost, "/rooms/join/abcd1234", "7").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodPost, "/rooms/join/abcd1234", "7").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(r, http.MethodPost, "/rooms/join/abcd1234", "7").Code)

	// 其它接口使用独立的配额
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/rooms", "7").Code)
}

func TestRoutes_BotKey(t *testing.T) {
	r, _ := newEngine(t, middlewares.NewBotKey(mustHash(t, "bot-key")))
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/rooms", "1001").Code)

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.Header.Set("telegram-id", "1001")
	req.Header.Set(middlewares.BotKeyHeader, "bot-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_WebsocketRequiresIdentity(t *testing.T) {
	r, _ := newEngine(t, nil)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/ws/1", "").Code)
}

func mustHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}
