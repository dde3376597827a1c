package ws

import (
	"sort"
	"sync"
)

// Registry maps users to their live connections and tracks which
// conversations each connection has joined. It is in-memory only.
type Registry struct {
	mu    sync.RWMutex
	users map[int64]map[*Client]struct{}
	rooms map[*Client]map[int64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		users: map[int64]map[*Client]struct{}{},
		rooms: map[*Client]map[int64]struct{}{},
	}
}

// Register adds an authenticated client and returns the user's live
// connection count. Registering the same client twice has no effect.
func (r *Registry) Register(c *Client) int {
	userID := c.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		set = map[*Client]struct{}{}
		r.users[userID] = set
	}
	set[c] = struct{}{}
	if _, ok := r.rooms[c]; !ok {
		r.rooms[c] = map[int64]struct{}{}
	}
	return len(set)
}

// Unregister removes the client. offline is true when it was the user's last
// connection. Unknown clients return (0, false).
func (r *Registry) Unregister(c *Client) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[c]; !ok {
		return 0, false
	}
	delete(r.rooms, c)

	userID := c.UserID()
	set := r.users[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(r.users, userID)
		return userID, true
	}
	return userID, false
}

// HandlesFor returns a snapshot of the user's live connections.
func (r *Registry) HandlesFor(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// OnlineUsers returns the ids of every user with a live connection, sorted.
func (r *Registry) OnlineUsers() []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Join subscribes a registered client to conversation rooms.
func (r *Registry) Join(c *Client, conversationIDs ...int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.rooms[c]
	if !ok {
		return false
	}
	for _, id := range conversationIDs {
		rooms[id] = struct{}{}
	}
	return true
}

func (r *Registry) Leave(c *Client, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rooms, ok := r.rooms[c]; ok {
		delete(rooms, conversationID)
	}
}

// Rooms returns the conversations the client has joined, sorted.
func (r *Registry) Rooms(c *Client) []int64 {
	r.mu.RLock()
	rooms := r.rooms[c]
	out := make([]int64, 0, len(rooms))
	for id := range rooms {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
