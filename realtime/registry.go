package realtime

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/kendall-kelly/portfolio-chat-api/logging"
)

// ErrUnknownSocket is returned when a socket id is not registered
var ErrUnknownSocket = errors.New("socket is not registered")

// Member is a connected socket as seen by the registry. Deliver must not block.
type Member interface {
	ID() string
	Deliver(frame []byte) error
}

// Registry tracks connected sockets and their room. A socket is in at most
// one room at a time; joining another room moves it.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Member
	rooms   map[string]map[string]Member
	roomOf  map[string]string
	log     *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		members: make(map[string]Member),
		rooms:   make(map[string]map[string]Member),
		roomOf:  make(map[string]string),
		log:     log,
	}
}

// Register adds a connected socket that has not joined any room yet
func (r *Registry) Register(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ID()] = m
}

// Unregister forgets the socket and removes it from its room
func (r *Registry) Unregister(socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(socketID)
	delete(r.members, socketID)
}

// Join puts the socket in the conversation's room, leaving any previous room.
// It returns the previous room, or "" if there was none.
func (r *Registry) Join(socketID, conversationID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[socketID]
	if !ok {
		return "", ErrUnknownSocket
	}

	previous := r.roomOf[socketID]
	if previous == conversationID {
		return previous, nil
	}
	r.leaveLocked(socketID)

	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]Member)
		r.rooms[conversationID] = room
	}
	room[socketID] = m
	r.roomOf[socketID] = conversationID
	return previous, nil
}

// Leave removes the socket from the conversation's room if it is there
func (r *Registry) Leave(socketID, conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomOf[socketID] != conversationID {
		return false
	}
	r.leaveLocked(socketID)
	return true
}

// LeaveAll removes the socket from whatever room it is in
func (r *Registry) LeaveAll(socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(socketID)
}

func (r *Registry) leaveLocked(socketID string) {
	conversationID, ok := r.roomOf[socketID]
	if !ok {
		return
	}
	delete(r.roomOf, socketID)

	room := r.rooms[conversationID]
	delete(room, socketID)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
}

// Broadcast encodes the event once and delivers it to every socket in the
// conversation's room. Delivery failures are logged and skipped. It returns
// the number of sockets the frame was handed to.
func (r *Registry) Broadcast(conversationID, event string, payload any) (int, error) {
	frame, err := Encode(event, payload, nil)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for socketID, m := range r.rooms[conversationID] {
		if err := m.Deliver(frame); err != nil {
			r.log.Warn("broadcast delivery failed",
				logging.Socket(socketID),
				logging.Conversation(conversationID),
				logging.Event(event),
				logging.Err(err))
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Send delivers an event to one socket
func (r *Registry) Send(socketID, event string, payload any, ackID *int64) error {
	frame, err := Encode(event, payload, ackID)
	if err != nil {
		return err
	}

	r.mu.RLock()
	m, ok := r.members[socketID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownSocket
	}
	return m.Deliver(frame)
}

// RoomSize returns how many sockets are in the conversation's room
func (r *Registry) RoomSize(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[conversationID])
}

// RoomOf returns the room the socket is in
func (r *Registry) RoomOf(socketID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conversationID, ok := r.roomOf[socketID]
	return conversationID, ok
}

// Members returns a snapshot of every registered socket
func (r *Registry) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}
