// Package channel tracks per-channel state fed by the chat connection:
// which users are currently present, the latest room state, and a short
// history of recent messages per user. All mutation happens on the
// connection's event loop; readers get snapshots under a read lock.
package channel

import (
	"strings"
	"sync"

	"github.com/onnwee/twitchbot/irc"
)

// historyDepth is how many recent messages are retained per user id.
const historyDepth = 5

// Channel holds the tracked state for exactly one chat channel.
type Channel struct {
	login string

	mu          sync.RWMutex
	users       map[string]struct{}
	provisional map[string]struct{} // NAMES burst accumulates here until the end marker
	roomState   *irc.RoomTags
	lastByUser  map[string][]*irc.Message // newest first, capped at historyDepth
}

// New creates an empty channel tracker for the given channel login.
func New(login string) *Channel {
	return &Channel{
		login:      strings.ToLower(strings.TrimPrefix(login, "#")),
		users:      make(map[string]struct{}),
		lastByUser: make(map[string][]*irc.Message),
	}
}

// Login returns the channel login this tracker is scoped to.
func (c *Channel) Login() string { return c.login }

// HandleJoin marks a user present. Re-joining an already-present login is
// a no-op.
func (c *Channel) HandleJoin(login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[strings.ToLower(login)] = struct{}{}
}

// HandlePart marks a user absent. Parting an absent login is a no-op.
func (c *Channel) HandlePart(login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, strings.ToLower(login))
}

// HandleNamesChunk accumulates one chunk of the post-join membership burst.
// The tracked set is untouched until HandleNamesEnd publishes the burst
// atomically, so readers never observe partial membership.
func (c *Channel) HandleNamesChunk(logins []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provisional == nil {
		c.provisional = make(map[string]struct{}, len(logins))
	}
	for _, l := range logins {
		c.provisional[strings.ToLower(l)] = struct{}{}
	}
}

// HandleNamesEnd replaces the tracked set with the accumulated burst.
func (c *Channel) HandleNamesEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provisional == nil {
		c.provisional = make(map[string]struct{})
	}
	c.users = c.provisional
	c.provisional = nil
}

// HandleMessage records a chat message in the per-user history and treats
// the sender as present, since Twitch membership events can lag behind
// actual chatters.
func (c *Channel) HandleMessage(m *irc.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[m.Sender] = struct{}{}
	id := m.Tags.User().UserID
	if id == "" {
		return
	}
	history := c.lastByUser[id]
	history = append([]*irc.Message{m}, history...)
	if len(history) > historyDepth {
		history = history[:historyDepth]
	}
	c.lastByUser[id] = history
}

// HandleRoomState stores the most recent ROOMSTATE tags.
func (c *Channel) HandleRoomState(tags irc.Tags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := tags.Room()
	c.roomState = &room
}

// BroadcasterID returns the channel owner's user id from the room state,
// or "" before any ROOMSTATE has arrived.
func (c *Channel) BroadcasterID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.roomState == nil {
		return ""
	}
	return c.roomState.RoomID
}

// RoomState returns a copy of the latest room state, or nil before any
// ROOMSTATE has arrived.
func (c *Channel) RoomState() *irc.RoomTags {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.roomState == nil {
		return nil
	}
	rs := *c.roomState
	return &rs
}

// IsUserIn reports whether the login is currently known to be present.
func (c *Channel) IsUserIn(login string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.users[strings.ToLower(login)]
	return ok
}

// Users returns a snapshot of the present logins.
func (c *Channel) Users() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.users))
	for u := range c.users {
		out = append(out, u)
	}
	return out
}

// UserCount returns the number of present logins.
func (c *Channel) UserCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// LatestMessage returns the newest recorded message from the user, matched
// by login or display name, or nil if they have not chatted recently.
func (c *Channel) LatestMessage(user string) *irc.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, history := range c.lastByUser {
		if len(history) > 0 && history[0].IsFromUser(user) {
			return history[0]
		}
	}
	return nil
}

// RecentMessages returns the retained history for a user id, newest first.
func (c *Channel) RecentMessages(userID string) []*irc.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	history := c.lastByUser[userID]
	out := make([]*irc.Message, len(history))
	copy(out, history)
	return out
}

// Reset clears all tracked state. Called when the connection drops, since
// presence learned on a dead connection is stale.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[string]struct{})
	c.provisional = nil
	c.lastByUser = make(map[string][]*irc.Message)
}
