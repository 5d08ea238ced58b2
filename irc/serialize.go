package irc

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLineLen is the protocol's maximum outbound line length in bytes,
// including the trailing CRLF.
const MaxLineLen = 512

// ErrMessageTooLong is returned when a serialized line would exceed
// MaxLineLen. The line is never sent.
var ErrMessageTooLong = errors.New("irc: line exceeds 512 byte limit")

// line terminates a command with CRLF and enforces the length limit.
func line(s string) (string, error) {
	out := s + "\r\n"
	if len(out) > MaxLineLen {
		return "", fmt.Errorf("%w: %d bytes", ErrMessageTooLong, len(out))
	}
	return out, nil
}

// FormatOAuth prefixes a token with "oauth:" when missing, which is the
// form the PASS command requires.
func FormatOAuth(token string) string {
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

// normalizeChannel lowercases a channel login and strips any '#'.
func normalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimPrefix(channel, "#"))
}

// Pass serializes the authentication command.
func Pass(token string) (string, error) {
	return line("PASS " + FormatOAuth(token))
}

// Nick serializes the nickname registration command.
func Nick(login string) (string, error) {
	return line("NICK " + strings.ToLower(login))
}

// CapReq serializes a capability request for the given capability names.
func CapReq(caps []string) (string, error) {
	return line("CAP REQ :" + strings.Join(caps, " "))
}

// Join serializes a channel join.
func Join(channel string) (string, error) {
	return line("JOIN #" + normalizeChannel(channel))
}

// Part serializes a channel part.
func Part(channel string) (string, error) {
	return line("PART #" + normalizeChannel(channel))
}

// Privmsg serializes an outbound chat message to a channel.
func Privmsg(channel, text string) (string, error) {
	return line("PRIVMSG #" + normalizeChannel(channel) + " :" + strings.TrimRight(text, "\r\n "))
}

// Pong serializes the answer to a PING with the server's payload echoed.
func Pong(payload string) (string, error) {
	if payload == "" {
		return line("PONG")
	}
	return line("PONG :" + payload)
}
