package irc

import (
	"strconv"
	"strings"
	"time"
)

// authAcceptCodes are the welcome/MOTD numerics the server sends after a
// successful PASS/NICK exchange. The first one observed resolves the auth
// step; the rest are absorbed harmlessly.
var authAcceptCodes = map[string]bool{
	"001": true, "002": true, "003": true, "004": true,
	"372": true, "375": true, "376": true,
}

// authRejectBodies are NOTICE bodies the server uses to refuse a login.
var authRejectBodies = []string{
	"login authentication failed",
	"login unsuccessful",
	"improperly formatted auth",
	"invalid nick",
}

// Parse decodes a single raw line (without its CRLF terminator) into a
// Message. It never fails: lines matching no known shape return a Message
// with KindUnknown and the raw line preserved.
func Parse(raw string) *Message {
	return ParseAt(raw, time.Now().UTC())
}

// ParseAt is Parse with an explicit receive timestamp.
func ParseAt(raw string, at time.Time) *Message {
	m := &Message{Kind: KindUnknown, Raw: raw, Viewers: -1, At: at}

	rest := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")

	if strings.HasPrefix(rest, "@") {
		tagsPart, remainder, ok := strings.Cut(rest[1:], " ")
		if !ok {
			return m
		}
		m.Tags = parseTags(tagsPart)
		rest = remainder
	}

	var prefix string
	if strings.HasPrefix(rest, ":") {
		prefix, rest, _ = strings.Cut(rest[1:], " ")
	}
	m.Sender = senderLogin(prefix)

	command, rest, _ := strings.Cut(rest, " ")
	if command == "" {
		return m
	}

	params, trailing := splitParams(rest)
	classify(m, strings.ToUpper(command), params, trailing)
	return m
}

// senderLogin extracts the login from a nick!user@host prefix. Server
// prefixes (plain hostnames) yield "".
func senderLogin(prefix string) string {
	nick, _, ok := strings.Cut(prefix, "!")
	if !ok {
		return ""
	}
	return strings.ToLower(nick)
}

// splitParams separates middle parameters from the trailing parameter,
// which begins at the first " :" (or a leading ':').
func splitParams(s string) (params []string, trailing string) {
	if strings.HasPrefix(s, ":") {
		return nil, s[1:]
	}
	middle, rest, found := strings.Cut(s, " :")
	params = strings.Fields(middle)
	if found {
		trailing = rest
	}
	return params, trailing
}

func classify(m *Message, command string, params []string, trailing string) {
	switch command {
	case "PING":
		m.Kind = KindPing
		m.Body = trailing
		if m.Body == "" && len(params) > 0 {
			m.Body = params[0]
		}
	case "RECONNECT":
		m.Kind = KindReconnect
	case "CAP":
		// :tmi.twitch.tv CAP * ACK :twitch.tv/tags twitch.tv/commands
		if len(params) >= 2 && params[1] == "ACK" {
			m.Kind = KindCapAck
			m.Caps = strings.Fields(trailing)
		}
	case "JOIN":
		m.Kind = KindJoin
		m.Channel = channelParam(params, trailing)
	case "PART":
		m.Kind = KindPart
		m.Channel = channelParam(params, trailing)
	case "PRIVMSG":
		m.Kind = KindPrivMsg
		m.Channel = channelParam(params, "")
		m.Body = trailing
	case "NOTICE":
		if len(params) > 0 && params[0] == "*" && isAuthReject(trailing) {
			m.Kind = KindAuthRejected
			m.Body = trailing
			return
		}
		m.Kind = KindNotice
		m.Channel = channelParam(params, "")
		m.Body = trailing
	case "CLEARCHAT":
		m.Kind = KindClearChat
		m.Channel = channelParam(params, "")
		m.Target = strings.ToLower(trailing)
	case "CLEARMSG":
		m.Kind = KindClearMsg
		m.Channel = channelParam(params, "")
		m.Body = trailing
	case "ROOMSTATE":
		m.Kind = KindRoomState
		m.Channel = channelParam(params, "")
	case "USERSTATE":
		m.Kind = KindUserState
		m.Channel = channelParam(params, "")
	case "GLOBALUSERSTATE":
		m.Kind = KindGlobalUserState
	case "USERNOTICE":
		m.Kind = KindUserNotice
		m.Channel = channelParam(params, "")
		m.Body = trailing
	case "WHISPER":
		m.Kind = KindWhisper
		if len(params) > 0 {
			m.Target = strings.ToLower(params[0])
		}
		m.Body = trailing
	case "HOSTTARGET":
		// :tmi.twitch.tv HOSTTARGET #chan :target 42
		m.Kind = KindHostTarget
		m.Channel = channelParam(params, "")
		fields := strings.Fields(trailing)
		if len(fields) > 0 && fields[0] != "-" {
			m.Target = strings.ToLower(fields[0])
		}
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				m.Viewers = n
			}
		}
	case "353":
		// :bot.tmi.twitch.tv 353 bot = #chan :a b c
		m.Kind = KindNamesChunk
		m.Channel = namesChannel(params)
		for _, u := range strings.Fields(trailing) {
			m.Users = append(m.Users, strings.ToLower(u))
		}
	case "366":
		m.Kind = KindNamesEnd
		m.Channel = namesChannel(params)
	default:
		if authAcceptCodes[command] {
			m.Kind = KindAuthAccepted
			m.Code = command
			m.Body = trailing
		}
	}
}

func isAuthReject(body string) bool {
	lower := strings.ToLower(body)
	for _, reject := range authRejectBodies {
		if strings.Contains(lower, reject) {
			return true
		}
	}
	return false
}

// channelParam finds the first #-prefixed parameter and strips the prefix.
func channelParam(params []string, trailing string) string {
	for _, p := range params {
		if strings.HasPrefix(p, "#") {
			return strings.ToLower(p[1:])
		}
	}
	if strings.HasPrefix(trailing, "#") {
		return strings.ToLower(trailing[1:])
	}
	return ""
}

// namesChannel handles the 353/366 parameter shape, where the channel
// follows the bot's own login (and a "=" marker on 353).
func namesChannel(params []string) string {
	for _, p := range params {
		if strings.HasPrefix(p, "#") {
			return strings.ToLower(p[1:])
		}
	}
	return ""
}
