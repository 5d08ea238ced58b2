package channel

import (
	"fmt"
	"sort"
	"testing"

	"github.com/onnwee/twitchbot/irc"
)

func TestJoinPartIdempotent(t *testing.T) {
	c := New("somechannel")

	c.HandleJoin("alice")
	c.HandleJoin("alice")
	if got := c.UserCount(); got != 1 {
		t.Errorf("UserCount after double join = %d, want 1", got)
	}
	if !c.IsUserIn("ALICE") {
		t.Errorf("IsUserIn should match case-insensitively")
	}

	c.HandlePart("alice")
	c.HandlePart("alice")
	if c.IsUserIn("alice") {
		t.Errorf("alice still present after part")
	}
	// Parting an absent user must not error or change anything.
	c.HandlePart("nobody")
	if got := c.UserCount(); got != 0 {
		t.Errorf("UserCount = %d, want 0", got)
	}
}

func TestNamesBurstAtomicity(t *testing.T) {
	c := New("somechannel")
	c.HandleJoin("olduser")

	c.HandleNamesChunk([]string{"alice", "bob"})
	// Mid-burst, readers still see the pre-burst set.
	if c.IsUserIn("alice") {
		t.Fatalf("provisional member visible before NamesEnd")
	}
	if !c.IsUserIn("olduser") {
		t.Fatalf("pre-burst member vanished mid-burst")
	}

	c.HandleNamesChunk([]string{"carol"})
	c.HandleNamesEnd()

	got := c.Users()
	sort.Strings(got)
	want := []string{"alice", "bob", "carol"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Users after burst = %v, want %v", got, want)
	}
	if c.IsUserIn("olduser") {
		t.Errorf("NamesEnd should replace, not merge, the tracked set")
	}
}

func TestNamesEndWithoutChunks(t *testing.T) {
	c := New("somechannel")
	c.HandleJoin("alice")
	c.HandleNamesEnd()
	if c.UserCount() != 0 {
		t.Errorf("empty burst should publish an empty set")
	}
}

func TestJoinLineFeedsPresence(t *testing.T) {
	c := New("somechannel")
	m := irc.Parse(":alice!alice@alice.tmi.twitch.tv JOIN #somechannel")
	if m.Kind != irc.KindJoin {
		t.Fatalf("unexpected kind %v", m.Kind)
	}
	c.HandleJoin(m.Sender)
	if !c.IsUserIn("alice") {
		t.Errorf("is_present(alice) = false after JOIN line")
	}
}

func TestMessageHistory(t *testing.T) {
	c := New("somechannel")
	for i := 0; i < 8; i++ {
		c.HandleMessage(irc.Parse(fmt.Sprintf(
			"@display-name=Alice;user-id=99 :alice!alice@alice.tmi.twitch.tv PRIVMSG #somechannel :msg %d", i)))
	}
	history := c.RecentMessages("99")
	if len(history) != historyDepth {
		t.Fatalf("history length = %d, want %d", len(history), historyDepth)
	}
	if history[0].Body != "msg 7" {
		t.Errorf("newest message = %q, want msg 7", history[0].Body)
	}
	if !c.IsUserIn("alice") {
		t.Errorf("chatter should be treated as present")
	}

	latest := c.LatestMessage("Alice")
	if latest == nil || latest.Body != "msg 7" {
		t.Errorf("LatestMessage = %v", latest)
	}
}

func TestRoomState(t *testing.T) {
	c := New("somechannel")
	if c.BroadcasterID() != "" {
		t.Errorf("BroadcasterID before ROOMSTATE should be empty")
	}
	m := irc.Parse("@emote-only=0;room-id=1234;slow=30 :tmi.twitch.tv ROOMSTATE #somechannel")
	c.HandleRoomState(m.Tags)
	if c.BroadcasterID() != "1234" {
		t.Errorf("BroadcasterID = %q, want 1234", c.BroadcasterID())
	}
	if rs := c.RoomState(); rs == nil || rs.Slow != 30 {
		t.Errorf("RoomState = %+v", rs)
	}
}

func TestReset(t *testing.T) {
	c := New("somechannel")
	c.HandleJoin("alice")
	c.HandleNamesChunk([]string{"bob"})
	c.Reset()
	if c.UserCount() != 0 {
		t.Errorf("Reset should clear presence")
	}
	c.HandleNamesEnd()
	if c.UserCount() != 0 {
		t.Errorf("Reset should discard the provisional burst")
	}
}
