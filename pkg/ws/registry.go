package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Conn 注册表中的一个实时连接。
// Send 必须是非阻塞的：连接已关闭或缓冲区已满时返回 false。
// UserID 为 0 表示匿名订阅者
type Conn interface {
	Send(message []byte) bool
	Close()
	UserID() uint
}

// Registry 维护 房间 -> 连接集合 的映射，负责房间内广播。
// 不存在没有连接的房间条目。
type Registry struct {
	mu    sync.RWMutex
	rooms map[uint]map[Conn]struct{}
	log   *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		rooms: make(map[uint]map[Conn]struct{}),
		log:   log,
	}
}

// Connect 把连接加入房间，重复加入无副作用
func (r *Registry) Connect(roomID uint, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.rooms[roomID]
	if !ok {
		conns = make(map[Conn]struct{})
		r.rooms[roomID] = conns
	}
	conns[c] = struct{}{}
}

// Disconnect 把连接移出房间，连接不存在时什么都不做
func (r *Registry) Disconnect(roomID uint, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(roomID, c)
}

// remove 调用方持有写锁
func (r *Registry) remove(roomID uint, c Conn) bool {
	conns, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// Broadcast 把消息投递给房间内的所有连接，返回成功投递的数量。
// 投递失败的连接会被移出房间并关闭
func (r *Registry) Broadcast(roomID uint, message []byte) int {
	r.mu.RLock()
	delivered := 0
	var failed []Conn
	for c := range r.rooms[roomID] {
		if c.Send(message) {
			delivered++
		} else {
			failed = append(failed, c)
		}
	}
	r.mu.RUnlock()

	if len(failed) == 0 {
		return delivered
	}

	r.mu.Lock()
	var removed []Conn
	for _, c := range failed {
		// 读锁释放后连接可能已经被别人移除
		if r.remove(roomID, c) {
			removed = append(removed, c)
		}
	}
	r.mu.Unlock()

	for _, c := range removed {
		c.Close()
	}
	r.log.Warn("dropped unreachable connections",
		zap.Uint("room_id", roomID),
		zap.Int("dropped", len(removed)),
	)
	return delivered
}

// CloseRoom 移除并关闭房间内的所有连接，房间被删除时调用
func (r *Registry) CloseRoom(roomID uint) int {
	r.mu.Lock()
	conns := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()

	for c := range conns {
		c.Close()
	}
	return len(conns)
}

// CloseUser 移除并关闭某个用户在房间内的所有连接，用户失去成员资格时调用。
// 已在发送队列中的消息仍会送达
func (r *Registry) CloseUser(roomID, userID uint) int {
	if userID == 0 {
		return 0
	}
	var closing []Conn
	r.mu.Lock()
	for c := range r.rooms[roomID] {
		if c.UserID() == userID {
			closing = append(closing, c)
			r.remove(roomID, c)
		}
	}
	r.mu.Unlock()

	for _, c := range closing {
		c.Close()
	}
	return len(closing)
}

// Connections 返回房间内的连接数
func (r *Registry) Connections(roomID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Stats 返回有连接的房间数与连接总数
func (r *Registry) Stats() (rooms, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.rooms {
		conns += len(set)
	}
	return len(r.rooms), conns
}

// CloseAll 关闭所有连接，进程退出时调用
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[uint]map[Conn]struct{})
	r.mu.Unlock()

	n := 0
	for _, conns := range rooms {
		for c := range conns {
			c.Close()
			n++
		}
	}
	return n
}
