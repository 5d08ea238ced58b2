// Package irc implements the line-level codec for the Twitch chat protocol:
// parsing raw tag-annotated IRC lines into typed messages and serializing
// outbound control commands. Parsing never fails; lines that match no known
// shape come back as KindUnknown so callers can log and move on.
package irc

import (
	"strings"
	"time"
)

// Kind identifies the shape of a parsed line.
type Kind int

const (
	KindUnknown Kind = iota
	KindPing
	KindReconnect
	KindAuthAccepted
	KindAuthRejected
	KindCapAck
	KindJoin
	KindPart
	KindNamesChunk
	KindNamesEnd
	KindPrivMsg
	KindNotice
	KindClearChat
	KindClearMsg
	KindRoomState
	KindUserState
	KindGlobalUserState
	KindUserNotice
	KindWhisper
	KindHostTarget
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindReconnect:
		return "reconnect"
	case KindAuthAccepted:
		return "auth_accepted"
	case KindAuthRejected:
		return "auth_rejected"
	case KindCapAck:
		return "cap_ack"
	case KindJoin:
		return "join"
	case KindPart:
		return "part"
	case KindNamesChunk:
		return "names_chunk"
	case KindNamesEnd:
		return "names_end"
	case KindPrivMsg:
		return "privmsg"
	case KindNotice:
		return "notice"
	case KindClearChat:
		return "clearchat"
	case KindClearMsg:
		return "clearmsg"
	case KindRoomState:
		return "roomstate"
	case KindUserState:
		return "userstate"
	case KindGlobalUserState:
		return "globaluserstate"
	case KindUserNotice:
		return "usernotice"
	case KindWhisper:
		return "whisper"
	case KindHostTarget:
		return "hosttarget"
	default:
		return "unknown"
	}
}

// Message is a single parsed line from the chat connection. Fields are only
// populated where the kind defines them; Raw always carries the original
// line for diagnostics.
type Message struct {
	Kind    Kind
	Raw     string
	Tags    Tags
	Sender  string   // login from the prefix, lowercased; empty for server lines
	Channel string   // target channel login without the '#'
	Body    string   // trailing text where the kind defines one
	Code    string   // numeric for auth-class lines (001, 376, ...)
	Caps    []string // acknowledged capabilities on a CAP ACK
	Users   []string // logins listed in a NAMES chunk
	Target  string   // secondary subject: cleared user, whisper recipient, host target
	Viewers int      // HOSTTARGET viewer count; -1 when absent
	At      time.Time
}

// IsChat reports whether the message should flow to command dispatch rather
// than being consumed by the connection state machine.
func (m *Message) IsChat() bool {
	switch m.Kind {
	case KindPrivMsg, KindWhisper, KindUserNotice, KindClearChat, KindClearMsg, KindNotice:
		return true
	default:
		return false
	}
}

// Words splits the message body on whitespace. Convenient for
// first-word command triggers.
func (m *Message) Words() []string {
	return strings.Fields(m.Body)
}

// IsFromUser matches the sender by login or display name, case-insensitively.
// The distinction matters for non-ascii display names.
func (m *Message) IsFromUser(user string) bool {
	if strings.EqualFold(m.Sender, user) {
		return true
	}
	return strings.EqualFold(m.Tags.Get("display-name"), user)
}

// IsSenderModerator reports whether the sender is a moderator or the
// broadcaster of the channel the message was sent in.
func (m *Message) IsSenderModerator() bool {
	u := m.Tags.User()
	if u.Mod {
		return true
	}
	_, ok := u.Badges["broadcaster"]
	return ok
}

// IsSenderSubscribed reports whether the sender carries a subscriber or
// founder badge.
func (m *Message) IsSenderSubscribed() bool {
	u := m.Tags.User()
	if _, ok := u.Badges["subscriber"]; ok {
		return true
	}
	if _, ok := u.BadgeInfo["subscriber"]; ok {
		return true
	}
	_, ok := u.Badges["founder"]
	return ok
}
