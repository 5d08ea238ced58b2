// Package commands implements keyword-triggered chat commands: trigger
// matching, an ordered registry, and an explicit cooldown store keyed by
// command and user. The store is passed in by the owner rather than living
// in package-level state, so tests and multiple bots stay independent.
package commands

import (
	"strings"

	"github.com/onnwee/twitchbot/channel"
	"github.com/onnwee/twitchbot/irc"
)

// Trigger decides whether a chat message invokes a command.
type Trigger interface {
	Check(m *irc.Message, ch *channel.Channel) bool
}

// FirstWord matches when the first word of the message equals Word.
// Matching is case-insensitive unless CaseSensitive is set.
type FirstWord struct {
	Word          string
	CaseSensitive bool
}

func (t FirstWord) Check(m *irc.Message, _ *channel.Channel) bool {
	words := m.Words()
	if len(words) == 0 {
		return false
	}
	if t.CaseSensitive {
		return words[0] == t.Word
	}
	return strings.EqualFold(words[0], t.Word)
}

// SenderIsMod matches when the sender is a moderator or the broadcaster.
type SenderIsMod struct{}

func (SenderIsMod) Check(m *irc.Message, _ *channel.Channel) bool {
	return m.IsSenderModerator()
}

// SenderIsPresent matches when the presence tracker currently lists the
// sender in the channel.
type SenderIsPresent struct{}

func (SenderIsPresent) Check(m *irc.Message, ch *channel.Channel) bool {
	return ch != nil && ch.IsUserIn(m.Sender)
}

type andTrigger []Trigger

func (t andTrigger) Check(m *irc.Message, ch *channel.Channel) bool {
	if len(t) == 0 {
		return false
	}
	for _, sub := range t {
		if !sub.Check(m, ch) {
			return false
		}
	}
	return true
}

type orTrigger []Trigger

func (t orTrigger) Check(m *irc.Message, ch *channel.Channel) bool {
	for _, sub := range t {
		if sub.Check(m, ch) {
			return true
		}
	}
	return false
}

// And combines triggers so all must pass. An empty And never matches.
func And(ts ...Trigger) Trigger { return andTrigger(ts) }

// Or combines triggers so at least one must pass. An empty Or never matches.
func Or(ts ...Trigger) Trigger { return orTrigger(ts) }
