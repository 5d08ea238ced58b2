package irc

import (
	"strconv"
	"strings"
	"time"
)

// Tags is the flat key to raw-value mapping decoded from the @-prefixed
// section of a line. Typed access happens per message kind through the
// field-group views below rather than generically.
type Tags map[string]string

// Get returns the raw tag value, or "" when the key was absent.
func (t Tags) Get(key string) string { return t[key] }

// Has reports whether the key was present on the line, even with an
// empty value.
func (t Tags) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Int decodes the tag as an integer, returning 0 on absence or garbage.
func (t Tags) Int(key string) int {
	n, err := strconv.Atoi(t[key])
	if err != nil {
		return 0
	}
	return n
}

// Bool decodes the protocol's 0/1 flags.
func (t Tags) Bool(key string) bool { return t[key] == "1" }

// Time decodes a millisecond unix timestamp tag (tmi-sent-ts).
func (t Tags) Time(key string) time.Time {
	ms, err := strconv.ParseInt(t[key], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// tagUnescaper reverses the IRCv3 escaping applied to tag values.
var tagUnescaper = strings.NewReplacer(
	`\:`, ";",
	`\s`, " ",
	`\r`, "\r",
	`\n`, "\n",
	`\\`, `\`,
)

// parseTags decodes the semicolon-separated key=value pairs following '@'.
// Empty keys are dropped; values are unescaped.
func parseTags(s string) Tags {
	tags := make(Tags)
	for _, pair := range strings.Split(s, ";") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if k == "" {
			continue
		}
		tags[k] = tagUnescaper.Replace(v)
	}
	return tags
}

// Badges maps a badge name to its version string, e.g. "subscriber" -> "12".
type Badges map[string]string

func parseBadges(s string) Badges {
	if s == "" {
		return nil
	}
	b := make(Badges)
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		name, version, _ := strings.Cut(part, "/")
		b[name] = version
	}
	return b
}

// UserTags is the field group describing the sending user. Concrete tag
// views embed the groups they need instead of forming an inheritance chain.
type UserTags struct {
	Badges      Badges
	BadgeInfo   Badges
	Color       string
	DisplayName string
	UserID      string
	Mod         bool
}

// MessageTags is the field group attached to individual chat messages.
type MessageTags struct {
	ID        string
	RoomID    string
	TmiSentAt time.Time
	Emotes    string
}

// RoomTags is the field group carried by ROOMSTATE lines.
type RoomTags struct {
	RoomID        string
	EmoteOnly     bool
	FollowersOnly int
	R9K           bool
	Slow          int
	SubsOnly      bool
}

// User assembles the user field group from the flat map.
func (t Tags) User() UserTags {
	return UserTags{
		Badges:      parseBadges(t.Get("badges")),
		BadgeInfo:   parseBadges(t.Get("badge-info")),
		Color:       t.Get("color"),
		DisplayName: t.Get("display-name"),
		UserID:      t.Get("user-id"),
		Mod:         t.Bool("mod"),
	}
}

// Message assembles the per-message field group from the flat map.
func (t Tags) Message() MessageTags {
	return MessageTags{
		ID:        t.Get("id"),
		RoomID:    t.Get("room-id"),
		TmiSentAt: t.Time("tmi-sent-ts"),
		Emotes:    t.Get("emotes"),
	}
}

// Room assembles the room-state field group from the flat map. Absent keys
// decode to their zero values, which matches the protocol's semantics of
// "setting unchanged".
func (t Tags) Room() RoomTags {
	followers := -1
	if t.Has("followers-only") {
		followers = t.Int("followers-only")
	}
	return RoomTags{
		RoomID:        t.Get("room-id"),
		EmoteOnly:     t.Bool("emote-only"),
		FollowersOnly: followers,
		R9K:           t.Bool("r9k"),
		Slow:          t.Int("slow"),
		SubsOnly:      t.Bool("subs-only"),
	}
}
