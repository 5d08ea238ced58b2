package irc

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseKinds(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		sender  string
		channel string
		body    string
	}{
		{
			name: "ping",
			raw:  "PING :tmi.twitch.tv",
			kind: KindPing,
			body: "tmi.twitch.tv",
		},
		{
			name: "reconnect",
			raw:  ":tmi.twitch.tv RECONNECT",
			kind: KindReconnect,
		},
		{
			name: "welcome numeric",
			raw:  ":tmi.twitch.tv 001 somebot :Welcome, GLHF!",
			kind: KindAuthAccepted,
			body: "Welcome, GLHF!",
		},
		{
			name: "auth rejected",
			raw:  ":tmi.twitch.tv NOTICE * :Login authentication failed",
			kind: KindAuthRejected,
			body: "Login authentication failed",
		},
		{
			name:    "join",
			raw:     ":alice!alice@alice.tmi.twitch.tv JOIN #somechannel",
			kind:    KindJoin,
			sender:  "alice",
			channel: "somechannel",
		},
		{
			name:    "part",
			raw:     ":alice!alice@alice.tmi.twitch.tv PART #somechannel",
			kind:    KindPart,
			sender:  "alice",
			channel: "somechannel",
		},
		{
			name:    "privmsg",
			raw:     "@badges=;color=;display-name=Alice;mod=0 :alice!alice@alice.tmi.twitch.tv PRIVMSG #somechannel :hello world",
			kind:    KindPrivMsg,
			sender:  "alice",
			channel: "somechannel",
			body:    "hello world",
		},
		{
			name:    "notice to channel",
			raw:     "@msg-id=slow_on :tmi.twitch.tv NOTICE #somechannel :This room is now in slow mode.",
			kind:    KindNotice,
			channel: "somechannel",
			body:    "This room is now in slow mode.",
		},
		{
			name:    "clearchat",
			raw:     "@ban-duration=600 :tmi.twitch.tv CLEARCHAT #somechannel :baduser",
			kind:    KindClearChat,
			channel: "somechannel",
		},
		{
			name:    "clearmsg",
			raw:     "@login=alice;target-msg-id=abc :tmi.twitch.tv CLEARMSG #somechannel :the deleted text",
			kind:    KindClearMsg,
			channel: "somechannel",
			body:    "the deleted text",
		},
		{
			name:    "roomstate",
			raw:     "@emote-only=0;room-id=1234;slow=0 :tmi.twitch.tv ROOMSTATE #somechannel",
			kind:    KindRoomState,
			channel: "somechannel",
		},
		{
			name:    "userstate",
			raw:     "@badges=moderator/1;mod=1 :tmi.twitch.tv USERSTATE #somechannel",
			kind:    KindUserState,
			channel: "somechannel",
		},
		{
			name:    "usernotice",
			raw:     "@msg-id=sub;room-id=1234 :tmi.twitch.tv USERNOTICE #somechannel :thanks for the sub",
			kind:    KindUserNotice,
			channel: "somechannel",
			body:    "thanks for the sub",
		},
		{
			name:   "whisper",
			raw:    "@badges=;display-name=Alice :alice!alice@alice.tmi.twitch.tv WHISPER somebot :psst",
			kind:   KindWhisper,
			sender: "alice",
			body:   "psst",
		},
		{
			name:    "hosttarget",
			raw:     ":tmi.twitch.tv HOSTTARGET #somechannel :otherchan 42",
			kind:    KindHostTarget,
			channel: "somechannel",
		},
		{
			name:    "names chunk",
			raw:     ":somebot.tmi.twitch.tv 353 somebot = #somechannel :alice bob carol",
			kind:    KindNamesChunk,
			channel: "somechannel",
		},
		{
			name:    "names end",
			raw:     ":somebot.tmi.twitch.tv 366 somebot #somechannel :End of /NAMES list",
			kind:    KindNamesEnd,
			channel: "somechannel",
		},
		{
			name: "garbage",
			raw:  "this is not an IRC line at all",
			kind: KindUnknown,
		},
		{
			name: "unhandled numeric",
			raw:  ":tmi.twitch.tv 421 somebot WHO :Unknown command",
			kind: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Parse(tt.raw)
			if m.Kind != tt.kind {
				t.Fatalf("Parse(%q).Kind = %v, want %v", tt.raw, m.Kind, tt.kind)
			}
			if m.Raw != tt.raw {
				t.Errorf("Raw = %q, want original line preserved", m.Raw)
			}
			if m.Sender != tt.sender {
				t.Errorf("Sender = %q, want %q", m.Sender, tt.sender)
			}
			if m.Channel != tt.channel {
				t.Errorf("Channel = %q, want %q", m.Channel, tt.channel)
			}
			if tt.body != "" && m.Body != tt.body {
				t.Errorf("Body = %q, want %q", m.Body, tt.body)
			}
		})
	}
}

func TestParseNamesChunkUsers(t *testing.T) {
	m := Parse(":somebot.tmi.twitch.tv 353 somebot = #somechannel :Alice bob CAROL")
	want := []string{"alice", "bob", "carol"}
	if !reflect.DeepEqual(m.Users, want) {
		t.Errorf("Users = %v, want %v (lowercased)", m.Users, want)
	}
}

func TestParseCapAck(t *testing.T) {
	m := Parse(":tmi.twitch.tv CAP * ACK :twitch.tv/commands twitch.tv/membership twitch.tv/tags")
	if m.Kind != KindCapAck {
		t.Fatalf("Kind = %v, want KindCapAck", m.Kind)
	}
	want := []string{"twitch.tv/commands", "twitch.tv/membership", "twitch.tv/tags"}
	if !reflect.DeepEqual(m.Caps, want) {
		t.Errorf("Caps = %v, want %v", m.Caps, want)
	}
}

func TestParseClearChatTarget(t *testing.T) {
	m := Parse("@ban-duration=600 :tmi.twitch.tv CLEARCHAT #somechannel :BadUser")
	if m.Target != "baduser" {
		t.Errorf("Target = %q, want %q", m.Target, "baduser")
	}
	if m.Tags.Int("ban-duration") != 600 {
		t.Errorf("ban-duration = %d, want 600", m.Tags.Int("ban-duration"))
	}
}

func TestParseHostTargetViewers(t *testing.T) {
	m := Parse(":tmi.twitch.tv HOSTTARGET #somechannel :otherchan 42")
	if m.Target != "otherchan" || m.Viewers != 42 {
		t.Errorf("Target/Viewers = %q/%d, want otherchan/42", m.Target, m.Viewers)
	}
	m = Parse(":tmi.twitch.tv HOSTTARGET #somechannel :-")
	if m.Target != "" {
		t.Errorf("Target = %q, want empty for host end", m.Target)
	}
	if m.Viewers != -1 {
		t.Errorf("Viewers = %d, want -1 when absent", m.Viewers)
	}
}

func TestParseNeverPanicsOnGarbage(t *testing.T) {
	lines := []string{
		"",
		"@",
		":",
		"@tags-only",
		"@k=v",
		": PRIVMSG",
		"@;;; :!@ X",
		strings.Repeat("a", 4096),
	}
	for _, l := range lines {
		m := Parse(l)
		if m == nil {
			t.Fatalf("Parse(%q) returned nil", l)
		}
	}
}

func TestRoundTripPrivmsg(t *testing.T) {
	out, err := Privmsg("SomeChannel", "hello world")
	if err != nil {
		t.Fatalf("Privmsg: %v", err)
	}
	if !strings.HasSuffix(out, "\r\n") {
		t.Fatalf("serialized line missing CRLF: %q", out)
	}
	m := Parse(strings.TrimSuffix(out, "\r\n"))
	if m.Kind != KindPrivMsg || m.Channel != "somechannel" || m.Body != "hello world" {
		t.Errorf("round trip = %+v, want privmsg somechannel/hello world", m)
	}
}

func TestRoundTripJoinPart(t *testing.T) {
	join, _ := Join("somechannel")
	m := Parse(strings.TrimSuffix(join, "\r\n"))
	if m.Kind != KindJoin || m.Channel != "somechannel" {
		t.Errorf("join round trip = %+v", m)
	}
	part, _ := Part("#somechannel")
	m = Parse(strings.TrimSuffix(part, "\r\n"))
	if m.Kind != KindPart || m.Channel != "somechannel" {
		t.Errorf("part round trip = %+v", m)
	}
}
