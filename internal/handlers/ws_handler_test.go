package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ShoppingRoom/config"
	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/services"
	"github.com/Gopher0727/ShoppingRoom/pkg/utils"
	"github.com/Gopher0727/ShoppingRoom/pkg/ws"
)

// memberRooms 只有 members 中的用户可以查看房间 7
type memberRooms struct {
	members map[uint]bool
}

func (m *memberRooms) GetRoom(_ context.Context, user *models.User, roomID uint) (*services.RoomSummary, error) {
	if roomID != 7 {
		return nil, services.ErrRoomNotFound
	}
	if user == nil || !m.members[user.ID] {
		return nil, services.ErrAccessDenied
	}
	return &services.RoomSummary{RoomResponse: services.RoomResponse{ID: roomID}}, nil
}

type fakeUsers struct{}

func (fakeUsers) Resolve(_ context.Context, externalID, name string) (*models.User, error) {
	switch externalID {
	case "alice":
		return &models.User{ID: 1, ExternalID: externalID}, nil
	case "mallory":
		return &models.User{ID: 3, ExternalID: externalID}, nil
	}
	return nil, &services.Error{Kind: services.KindBadRequest, Message: "unknown user"}
}

func (fakeUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	return &models.User{ID: id}, nil
}

type staticKey bool

func (k staticKey) Allowed(*http.Request) bool { return bool(k) }

var wsOptions = ws.Options{
	WriteWait:      time.Second,
	PongWait:       5 * time.Second,
	MaxMessageSize: 512,
	SendBuffer:     8,
}

func startWS(t *testing.T, auth config.AuthConfig, tickets TicketVerifier, keys KeyChecker) (*httptest.Server, *ws.Registry) {
	t.Helper()
	registry := ws.NewRegistry(nil)
	h := NewWSHandler(registry, &memberRooms{members: map[uint]bool{1: true}}, fakeUsers{}, tickets, keys, auth, wsOptions, nil)

	r := gin.New()
	r.GET("/ws/:room_id", h.ServeWs)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		registry.CloseAll()
		srv.Close()
	})
	return srv, registry
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func header(id string) http.Header {
	h := http.Header{}
	if id != "" {
		h.Set("telegram-id", id)
	}
	return h
}

var strictAuth = config.AuthConfig{
	IdentityHeader:    "telegram-id",
	NameHeader:        "telegram-username",
	RequireMembership: true,
}

func TestWSHandler_RejectsBeforeUpgrade(t *testing.T) {
	srv, registry := startWS(t, strictAuth, nil, nil)

	tests := []struct {
		name   string
		path   string
		id     string
		status int
	}{
		{"no identity", "/ws/7", "", http.StatusUnauthorized},
		{"not a member", "/ws/7", "mallory", http.StatusForbidden},
		{"unknown room", "/ws/8", "alice", http.StatusNotFound},
		{"bad room id", "/ws/abc", "alice", http.StatusBadRequest},
		{"bad identity", "/ws/7", "nobody", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.path), header(tt.id))
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	_, conns := registry.Stats()
	assert.Zero(t, conns)
}

func TestWSHandler_MemberReceivesBroadcast(t *testing.T) {
	srv, registry := startWS(t, strictAuth, nil, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/7"), header("alice"))
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return registry.Connections(7) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, registry.Broadcast(7, []byte(`alice added "Milk"`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `alice added "Milk"`, string(msg))
}

func TestWSHandler_BotKeyGuardsHeaderIdentity(t *testing.T) {
	srv, _ := startWS(t, strictAuth, nil, staticKey(false))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/7"), header("alice"))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSHandler_Ticket(t *testing.T) {
	tickets := utils.NewTicketManager("ticket-secret", time.Minute)
	srv, registry := startWS(t, strictAuth, tickets, staticKey(false))

	ticket, _, err := tickets.Issue(1, 7)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/7?ticket="+ticket), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return registry.Connections(7) == 1 }, 2*time.Second, 10*time.Millisecond)

	other, _, err := tickets.Issue(1, 9)
	require.NoError(t, err)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/7?ticket="+other), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "ticket for another room")
}

func TestWSHandler_OpenSubscription(t *testing.T) {
	auth := strictAuth
	auth.RequireMembership = false
	srv, registry := startWS(t, auth, nil, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/7"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return registry.Connections(7) == 1 }, 2*time.Second, 10*time.Millisecond)
}

// vanishingRoom 第一次查询时房间存在，之后房间已被删除
type vanishingRoom struct {
	mu    sync.Mutex
	calls int
}

func (v *vanishingRoom) GetRoom(_ context.Context, _ *models.User, roomID uint) (*services.RoomSummary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.calls > 1 {
		return nil, services.ErrRoomNotFound
	}
	return &services.RoomSummary{RoomResponse: services.RoomResponse{ID: roomID}}, nil
}

func TestWSHandler_RoomDeletedDuringUpgrade(t *testing.T) {
	registry := ws.NewRegistry(nil)
	rooms := &vanishingRoom{}
	h := NewWSHandler(registry, rooms, fakeUsers{}, nil, nil, strictAuth, wsOptions, nil)
	r := gin.New()
	r.GET("/ws/:room_id", h.ServeWs)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		registry.CloseAll()
		srv.Close()
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/7"), header("alice"))
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, registry.Connections(7))
	assert.Equal(t, 0, registry.Broadcast(7, []byte("late")))
}
