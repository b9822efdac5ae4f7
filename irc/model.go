package irc

import (
	"fmt"
	"strings"
	"time"
)

// Tag identifies one client connection: "<front-end-id>:<connection-id>".
type Tag string

// FrontEnd returns the id of the front-end process owning the connection.
func (t Tag) FrontEnd() string {
	prefix, _, _ := strings.Cut(string(t), ":")
	return prefix
}

// Channel membership modes.
const (
	ModeOwner     = 'q'
	ModeOperator  = 'o'
	ModeVoice     = 'v'
	ModeModerated = 'm'
	ModeBan       = 'b'
)

// User is the persisted record of one connection.
type User struct {
	Tag      Tag    `msgpack:"tag"`
	IP       string `msgpack:"ip"`
	Nick     string `msgpack:"nick"`
	Username string `msgpack:"user,omitempty"`
	Realname string `msgpack:"realname,omitempty"`

	// ID is the nick!user@host prefix; set with Auth when registration completes.
	ID   string `msgpack:"id,omitempty"`
	Auth string `msgpack:"auth,omitempty"`

	// PassOK records a matching PASS before registration.
	PassOK bool `msgpack:"pass,omitempty"`
}

// Registered reports whether the user completed NICK/USER registration.
func (u *User) Registered() bool {
	return u.Auth != ""
}

// Channel is the persisted record of a channel. Membership lives in
// separate keys.
type Channel struct {
	Name  string `msgpack:"name"`
	Topic string `msgpack:"topic"`
	Modes string `msgpack:"modes"`
}

// Member is one nick's membership entry in a channel.
type Member struct {
	Tag   Tag    `msgpack:"tag"`
	Modes string `msgpack:"modes"`
}

// IsOp reports channel-operator privilege: op or owner.
func (m *Member) IsOp() bool {
	return m != nil && (hasMode(m.Modes, ModeOperator) || hasMode(m.Modes, ModeOwner))
}

// IsOwner reports the owner flag.
func (m *Member) IsOwner() bool {
	return m != nil && hasMode(m.Modes, ModeOwner)
}

// CanSpeak reports whether the member may talk in a moderated channel.
func (m *Member) CanSpeak() bool {
	return m.IsOp() || (m != nil && hasMode(m.Modes, ModeVoice))
}

// Prefix is the NAMES prefix for the member.
func (m *Member) Prefix() string {
	switch {
	case hasMode(m.Modes, ModeOperator):
		return "@"
	case hasMode(m.Modes, ModeOwner):
		return "~"
	case hasMode(m.Modes, ModeVoice):
		return "+"
	}
	return ""
}

func hasMode(modes string, c byte) bool {
	return strings.IndexByte(modes, c) >= 0
}

// setMode adds or removes c from modes. changed is false when modes
// already had the requested state.
func setMode(modes string, c byte, adding bool) (string, bool) {
	if hasMode(modes, c) == adding {
		return modes, false
	}
	if adding {
		return modes + string(c), true
	}
	return strings.ReplaceAll(modes, string(c), ""), true
}

// AccessLevel is the grant an access entry carries.
type AccessLevel string

const (
	AccessOwner AccessLevel = "OWNER"
	AccessOp    AccessLevel = "OP"
	AccessVoice AccessLevel = "VOICE"
	AccessDeny  AccessLevel = "DENY"
)

// ParseAccessLevel accepts a level name in any case.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch l := AccessLevel(strings.ToUpper(s)); l {
	case AccessOwner, AccessOp, AccessVoice, AccessDeny:
		return l, nil
	}
	return "", fmt.Errorf("unknown access level %q", s)
}

// modes seeds membership modes for a grant on join.
func (l AccessLevel) modes() string {
	switch l {
	case AccessOwner:
		return "qo"
	case AccessOp:
		return "o"
	case AccessVoice:
		return "v"
	}
	return ""
}

// rank orders grants; higher wins when several entries match.
func (l AccessLevel) rank() int {
	switch l {
	case AccessOwner:
		return 3
	case AccessOp:
		return 2
	case AccessVoice:
		return 1
	}
	return 0
}

// AccessEntry is a standing channel grant that outlives membership.
type AccessEntry struct {
	Level  AccessLevel `msgpack:"level"`
	Mask   string      `msgpack:"mask"`
	Expiry int64       `msgpack:"expiry"` // unix seconds, 0 = permanent
	Setter string      `msgpack:"setter"`
	Reason string      `msgpack:"reason"`
}

// Key is the hash field the entry is stored under.
func (e *AccessEntry) Key() string {
	return accessKey(e.Level, e.Mask)
}

func accessKey(level AccessLevel, mask string) string {
	return string(level) + " " + mask
}

// Expired reports whether a timed entry has lapsed.
func (e *AccessEntry) Expired(now time.Time) bool {
	return e.Expiry != 0 && now.Unix() >= e.Expiry
}
