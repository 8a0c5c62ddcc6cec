package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/config"
)

// Options 连接参数
type Options struct {
	WriteWait      time.Duration // 允许写入消息到对端的最大时间
	PongWait       time.Duration // 允许读取下一个 pong 消息的最大时间
	MaxMessageSize int64         // 允许来自对端的最大消息大小
	SendBuffer     int
}

func OptionsFromConfig(cfg *config.WebsocketConfig) Options {
	return Options{
		WriteWait:      time.Duration(cfg.WriteWait) * time.Second,
		PongWait:       time.Duration(cfg.PongWait) * time.Second,
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
	}
}

// pingPeriod 必须小于 PongWait
func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

// Client 一个 WebSocket 订阅者，只接收所在房间的通知
type Client struct {
	conn     *websocket.Conn
	registry *Registry
	roomID   uint
	userID   uint
	opts     Options
	log      *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, registry *Registry, roomID, userID uint, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		conn:     conn,
		registry: registry,
		roomID:   roomID,
		userID:   userID,
		opts:     opts,
		log:      log,
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
	}
}

// Send 把消息放入发送缓冲区，不阻塞
func (c *Client) Send(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) UserID() uint {
	return c.userID
}

// Close 通知 writePump 发送完缓冲区中的消息后关闭连接，可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Serve 注册到房间并启动读写协程
func (c *Client) Serve() {
	c.registry.Connect(c.roomID, c)
	c.log.Info("websocket connected", zap.Uint("room_id", c.roomID), zap.Uint("user_id", c.userID))
	go c.writePump()
	go c.readPump()
}

// readPump 只处理控制帧，客户端发来的数据消息被丢弃
func (c *Client) readPump() {
	defer func() {
		c.registry.Disconnect(c.roomID, c)
		c.Close()
		c.conn.Close()
		c.log.Info("websocket disconnected", zap.Uint("room_id", c.roomID), zap.Uint("user_id", c.userID))
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", zap.Uint("room_id", c.roomID), zap.Error(err))
			}
			return
		}
	}
}

// writePump 把缓冲区中的消息写到连接，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// 关闭前先把已排队的消息发完
			for {
				select {
				case msg := <-c.send:
					if err := c.write(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.conn.WriteMessage(messageType, data)
}
