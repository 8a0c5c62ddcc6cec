package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Gopher0727/ShoppingRoom/internal/models"
	"github.com/Gopher0727/ShoppingRoom/internal/notifier"
	"github.com/Gopher0727/ShoppingRoom/internal/repositories"
)

// memStore is an in-memory stand-in for the gorm repositories. It enforces the
// same uniqueness rules and returns the same sentinel errors.
type memStore struct {
	mu      sync.Mutex
	nextID  uint
	users   map[uint]*models.User
	rooms   map[uint]*models.Room
	members map[[2]uint]uint // (room, user) -> membership id
	items   map[uint]*models.Item

	// hooks for injecting failures
	addMemberErr    error
	createRoomErr   error
	skipMemberCheck bool // IsMember always false, as if another process raced us
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[uint]*models.User),
		rooms:   make(map[uint]*models.Room),
		members: make(map[[2]uint]uint),
		items:   make(map[uint]*models.Item),
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(ext, name string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: s.id(), ExternalID: ext, UserName: name}
	s.users[u.ID] = u
	return u
}

func (s *memStore) memberCount(roomID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.members {
		if k[0] == roomID {
			n++
		}
	}
	return n
}

func (s *memStore) hasMember(roomID, userID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[[2]uint{roomID, userID}]
	return ok
}

func (s *memStore) itemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// rooms

func (s *memStore) Create(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createRoomErr != nil {
		return s.createRoomErr
	}
	for _, r := range s.rooms {
		if r.InviteCode == room.InviteCode {
			return repositories.ErrInviteCodeTaken
		}
	}
	room.ID = s.id()
	room.CreatedAt = time.Now()
	cp := *room
	s.rooms[room.ID] = &cp
	s.members[[2]uint{room.ID, room.OwnerID}] = s.id()
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id uint) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) GetByInviteCode(ctx context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.InviteCode == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *memStore) ListByUser(ctx context.Context, userID uint) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Room
	for k := range s.members {
		if k[1] == userID {
			out = append(out, *s.rooms[k[0]])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) UpdateName(ctx context.Context, id uint, name string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	r.Name = name
	cp := *r
	return &cp, nil
}

func (s *memStore) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return repositories.ErrNotFound
	}
	for itemID, it := range s.items {
		if it.RoomID == id {
			delete(s.items, itemID)
		}
	}
	for k := range s.members {
		if k[0] == id {
			delete(s.members, k)
		}
	}
	delete(s.rooms, id)
	return nil
}

func (s *memStore) AddMember(ctx context.Context, roomID, userID uint) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addMemberErr != nil {
		return nil, s.addMemberErr
	}
	if _, ok := s.rooms[roomID]; !ok {
		return nil, errors.New("foreign key violation")
	}
	key := [2]uint{roomID, userID}
	if _, ok := s.members[key]; ok {
		return nil, repositories.ErrDuplicateEntry
	}
	id := s.id()
	s.members[key] = id
	return &models.Membership{ID: id, RoomID: roomID, UserID: userID}, nil
}

func (s *memStore) RemoveMember(ctx context.Context, roomID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]uint{roomID, userID}
	if _, ok := s.members[key]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.members, key)
	return nil
}

func (s *memStore) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipMemberCheck {
		return false, nil
	}
	_, ok := s.members[[2]uint{roomID, userID}]
	return ok, nil
}

func (s *memStore) ListMembers(ctx context.Context, roomID uint) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type row struct {
		mid uint
		u   models.User
	}
	var rows []row
	for k, mid := range s.members {
		if k[0] == roomID {
			rows = append(rows, row{mid, *s.users[k[1]]})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].mid < rows[j].mid })
	out := make([]models.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.u)
	}
	return out, nil
}

func (s *memStore) CountMembers(ctx context.Context, roomID uint) (int64, error) {
	return int64(s.memberCount(roomID)), nil
}

// items, exposed through itemStore to avoid method name clashes

type itemStore struct{ *memStore }

func (s itemStore) Create(ctx context.Context, item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.id()
	item.CreatedAt = time.Now()
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s itemStore) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s itemStore) Update(ctx context.Context, item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[item.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	it.Name = item.Name
	it.Category = item.Category
	return nil
}

func (s itemStore) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s itemStore) ListByRoom(ctx context.Context, roomID uint) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Item
	for _, it := range s.items {
		if it.RoomID == roomID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// users

type userStore struct{ *memStore }

func (s userStore) GetByID(ctx context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s userStore) GetByExternalID(ctx context.Context, ext string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID == ext {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s userStore) GetOrCreate(ctx context.Context, ext, name string) (*models.User, bool, error) {
	if u, err := s.GetByExternalID(ctx, ext); err == nil {
		if name != "" && u.UserName != name {
			s.mu.Lock()
			s.users[u.ID].UserName = name
			s.mu.Unlock()
			u.UserName = name
		}
		return u, false, nil
	}
	return s.addUser(ext, name), true, nil
}

// recordingNotifier keeps every event in the order Notify was called

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, roomID uint, e notifier.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e.RoomID = roomID
	n.events = append(n.events, e)
}

func (n *recordingNotifier) all() []notifier.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifier.Event(nil), n.events...)
}

func (n *recordingNotifier) kinds() []notifier.Kind {
	var out []notifier.Kind
	for _, e := range n.all() {
		out = append(out, e.Kind)
	}
	return out
}

type recordingCloser struct {
	mu      sync.Mutex
	closed  []uint
	evicted [][2]uint // (room, user)
}

func (c *recordingCloser) CloseUser(roomID, userID uint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evicted = append(c.evicted, [2]uint{roomID, userID})
	return 1
}

func (c *recordingCloser) CloseRoom(roomID uint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, roomID)
	return 0
}

// fixture wires services over one memStore

type fixture struct {
	store  *memStore
	notes  *recordingNotifier
	closer *recordingCloser
	rooms  *RoomService
	items  *ItemService
	users  *UserService
}

func newFixture() *fixture {
	store := newMemStore()
	notes := &recordingNotifier{}
	closer := &recordingCloser{}
	locks := NewRoomLocks()
	rooms := NewRoomService(store, userStore{store}, notes, closer, locks, RoomOptions{InviteCodeLength: 8, InviteMaxRetries: 5, EvictOnLeave: true}, nil)
	return &fixture{
		store:  store,
		notes:  notes,
		closer: closer,
		rooms:  rooms,
		items:  NewItemService(itemStore{store}, store, rooms.Access(), notes, locks, nil),
		users:  NewUserService(userStore{store}, nil),
	}
}
