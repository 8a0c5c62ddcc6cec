package notifier

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/ShoppingRoom/middleware/log"
)

// Broadcaster 由连接注册表实现
type Broadcaster interface {
	Broadcast(roomID uint, message []byte) int
}

// EventSink 事件的外部投递目标 (Kafka)，供聊天机器人前端消费
type EventSink interface {
	SendMessage(key string, message any) error
}

// Dispatcher 按 key 串行执行任务，同一房间的事件保持顺序
type Dispatcher interface {
	Submit(key string, job func()) bool
}

// Envelope 投递到 EventSink 的消息体
type Envelope struct {
	Event
	Message string `json:"message"`
}

// Notifier 把已提交的房间事件格式化后推送给房间内所有连接。
// 推送是尽力而为：任何失败只记录日志，不会影响触发它的写操作。
type Notifier struct {
	registry   Broadcaster
	sink       EventSink
	dispatcher Dispatcher
	log        *zap.Logger
	now        func() time.Time
}

type Option func(*Notifier)

// WithSink 事件同时投递到 sink；dispatcher 为 nil 时同步投递
func WithSink(sink EventSink, dispatcher Dispatcher) Option {
	return func(n *Notifier) {
		n.sink = sink
		n.dispatcher = dispatcher
	}
}

func New(registry Broadcaster, log *zap.Logger, opts ...Option) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Notifier{registry: registry, log: log, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify 格式化事件并广播到 roomID 下的所有连接
func (n *Notifier) Notify(ctx context.Context, roomID uint, e Event) {
	e.RoomID = roomID
	if e.At.IsZero() {
		e.At = n.now()
	}

	msg, err := Format(e)
	if err != nil {
		n.log.Warn("event formatting degraded to generic message",
			zap.String("kind", string(e.Kind)),
			zap.Uint("room_id", roomID),
			zap.Error(err),
			logger.TraceField(ctx),
		)
		msg = Generic(e)
	}

	delivered := n.registry.Broadcast(roomID, []byte(msg))
	n.log.Debug("room event broadcast",
		zap.String("kind", string(e.Kind)),
		zap.Uint("room_id", roomID),
		zap.Int("delivered", delivered),
		logger.TraceField(ctx),
	)

	if n.sink != nil {
		n.publish(roomID, Envelope{Event: e, Message: msg})
	}
}

func (n *Notifier) publish(roomID uint, env Envelope) {
	key := strconv.FormatUint(uint64(roomID), 10)
	job := func() {
		if err := n.sink.SendMessage(key, env); err != nil {
			n.log.Warn("publish room event failed",
				zap.String("kind", string(env.Kind)),
				zap.Uint("room_id", roomID),
				zap.Error(err),
			)
		}
	}
	if n.dispatcher == nil {
		job()
		return
	}
	if !n.dispatcher.Submit(key, job) {
		n.log.Warn("event dispatcher rejected job", zap.Uint("room_id", roomID))
	}
}
