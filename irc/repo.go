package irc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lrstanley/girc"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/presbrey/ircq/store"
)

// Key prefixes of the persisted state layout.
const (
	keyUser        = "user:"
	keyChan        = "chan:"
	keyChanNicks   = "chan-nicks:"
	keyChanUsers   = "chan-users:"
	keyUserChans   = "user-chans:"
	keyServerUsers = "server-users:"
	keyNickUsers   = "nick-users:"
	keyChanAccess  = "chan-access:"
)

// Repository owns every read and write of users, channels, memberships,
// the nick registry and access lists. It is the only code allowed to create
// or destroy a channel record.
//
// Lookups of absent entities return nil and no error; errors are store
// failures only.
type Repository struct {
	store store.Store
	now   func() time.Time
}

// NewRepository wraps s. now is used for access-entry expiry; nil means
// time.Now.
func NewRepository(s store.Store, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{store: s, now: now}
}

func (r *Repository) load(ctx context.Context, key string, v interface{}) (bool, error) {
	data, found, err := r.store.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Repository) save(ctx context.Context, key string, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.store.Set(ctx, key, data)
}

// Users

// LoadUser returns the user of a connection, or nil.
func (r *Repository) LoadUser(ctx context.Context, tag Tag) (*User, error) {
	u := &User{}
	found, err := r.load(ctx, keyUser+string(tag), u)
	if err != nil || !found {
		return nil, err
	}
	return u, nil
}

// SaveUser writes the user record.
func (r *Repository) SaveUser(ctx context.Context, u *User) error {
	return r.save(ctx, keyUser+string(u.Tag), u)
}

// DeleteUser removes the user record and its channel index.
func (r *Repository) DeleteUser(ctx context.Context, tag Tag) error {
	return r.store.Del(ctx, keyUser+string(tag), keyUserChans+string(tag))
}

// UserTags lists every connection with a user record.
func (r *Repository) UserTags(ctx context.Context) ([]Tag, error) {
	keys, err := r.store.Keys(ctx, keyUser+"*")
	if err != nil {
		return nil, err
	}
	tags := make([]Tag, len(keys))
	for i, k := range keys {
		tags[i] = Tag(strings.TrimPrefix(k, keyUser))
	}
	return tags, nil
}

// AddServerUser records tag under its front-end.
func (r *Repository) AddServerUser(ctx context.Context, tag Tag) error {
	return r.store.SAdd(ctx, keyServerUsers+tag.FrontEnd(), string(tag))
}

// RemoveServerUser forgets tag under its front-end.
func (r *Repository) RemoveServerUser(ctx context.Context, tag Tag) error {
	return r.store.SRem(ctx, keyServerUsers+tag.FrontEnd(), string(tag))
}

// ServerUsers lists the connections owned by a front-end.
func (r *Repository) ServerUsers(ctx context.Context, frontEnd string) ([]Tag, error) {
	return r.tags(ctx, keyServerUsers+frontEnd)
}

func (r *Repository) tags(ctx context.Context, key string) ([]Tag, error) {
	members, err := r.store.SMembers(ctx, key)
	if err != nil {
		return nil, err
	}
	tags := make([]Tag, len(members))
	for i, m := range members {
		tags[i] = Tag(m)
	}
	return tags, nil
}

// Channels

// FindChannel returns the named channel, or nil.
func (r *Repository) FindChannel(ctx context.Context, name string) (*Channel, error) {
	ch := &Channel{}
	found, err := r.load(ctx, keyChan+name, ch)
	if err != nil || !found {
		return nil, err
	}
	return ch, nil
}

// FindOrCreateChannel returns the named channel, creating an empty record
// when none exists.
func (r *Repository) FindOrCreateChannel(ctx context.Context, name string) (*Channel, bool, error) {
	ch, err := r.FindChannel(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if ch != nil {
		return ch, false, nil
	}

	ch = &Channel{Name: name}
	if err := r.SaveChannel(ctx, ch); err != nil {
		return nil, false, err
	}
	return ch, true, nil
}

// SaveChannel writes the channel record.
func (r *Repository) SaveChannel(ctx context.Context, ch *Channel) error {
	return r.save(ctx, keyChan+ch.Name, ch)
}

// DestroyChannel removes the channel record. Access lists are kept.
func (r *Repository) DestroyChannel(ctx context.Context, name string) error {
	return r.store.Del(ctx, keyChan+name, keyChanNicks+name, keyChanUsers+name)
}

// ChannelNames lists every existing channel.
func (r *Repository) ChannelNames(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, keyChan+"*")
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, keyChan)
	}
	sort.Strings(names)
	return names, nil
}

// Membership

// Join records u as a member of ch. The membership entry is written first,
// then the two indices. A failed join is undone like a part, so a channel
// created for it does not outlive the attempt.
func (r *Repository) Join(ctx context.Context, u *User, ch *Channel, m *Member) error {
	m.Tag = u.Tag
	if err := r.join(ctx, u, ch, m); err != nil {
		if _, undoErr := r.Part(ctx, ch.Name, u.Nick, u.Tag); undoErr != nil {
			return errors.Join(err, fmt.Errorf("undo join %s: %w", ch.Name, undoErr))
		}
		return err
	}
	return nil
}

func (r *Repository) join(ctx context.Context, u *User, ch *Channel, m *Member) error {
	if err := r.SetChannelMember(ctx, ch.Name, u.Nick, m); err != nil {
		return err
	}
	if err := r.store.SAdd(ctx, keyChanUsers+ch.Name, string(u.Tag)); err != nil {
		return err
	}
	return r.store.SAdd(ctx, keyUserChans+string(u.Tag), ch.Name)
}

// Part removes the membership entry and both indices, then destroys the
// channel if nobody is left. destroyed reports the latter.
func (r *Repository) Part(ctx context.Context, channel, nick string, tag Tag) (destroyed bool, err error) {
	if err := r.store.HDel(ctx, keyChanNicks+channel, nick); err != nil {
		return false, err
	}
	if err := r.store.SRem(ctx, keyChanUsers+channel, string(tag)); err != nil {
		return false, err
	}
	if err := r.store.SRem(ctx, keyUserChans+string(tag), channel); err != nil {
		return false, err
	}

	n, err := r.ChannelCount(ctx, channel)
	if err != nil || n > 0 {
		return false, err
	}
	if err := r.DestroyChannel(ctx, channel); err != nil {
		return false, err
	}
	return true, nil
}

// NickInChannel reports whether nick has a membership entry.
func (r *Repository) NickInChannel(ctx context.Context, channel, nick string) (bool, error) {
	return r.store.HExists(ctx, keyChanNicks+channel, nick)
}

// UserInChannel reports whether tag is indexed as a member.
func (r *Repository) UserInChannel(ctx context.Context, channel string, tag Tag) (bool, error) {
	return r.store.SIsMember(ctx, keyChanUsers+channel, string(tag))
}

// UserChannels lists the channels a connection is on.
func (r *Repository) UserChannels(ctx context.Context, tag Tag) ([]string, error) {
	return r.store.SMembers(ctx, keyUserChans+string(tag))
}

// ChannelCount is the number of membership entries.
func (r *Repository) ChannelCount(ctx context.Context, channel string) (int64, error) {
	return r.store.HLen(ctx, keyChanNicks+channel)
}

// ChannelTags lists the connections joined to a channel.
func (r *Repository) ChannelTags(ctx context.Context, channel string) ([]Tag, error) {
	return r.tags(ctx, keyChanUsers+channel)
}

// NamedMember pairs a membership entry with its nick.
type NamedMember struct {
	Nick string
	*Member
}

// ChannelMembers returns all membership entries sorted by nick.
func (r *Repository) ChannelMembers(ctx context.Context, channel string) ([]NamedMember, error) {
	all, err := r.store.HGetAll(ctx, keyChanNicks+channel)
	if err != nil {
		return nil, err
	}

	members := make([]NamedMember, 0, len(all))
	for nick, data := range all {
		m := &Member{}
		if err := msgpack.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("decode member %s in %s: %w", nick, channel, err)
		}
		members = append(members, NamedMember{Nick: nick, Member: m})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Nick < members[j].Nick })
	return members, nil
}

// ChannelMember returns nick's membership entry, or nil.
func (r *Repository) ChannelMember(ctx context.Context, channel, nick string) (*Member, error) {
	data, found, err := r.store.HGet(ctx, keyChanNicks+channel, nick)
	if err != nil || !found {
		return nil, err
	}
	m := &Member{}
	if err := msgpack.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode member %s in %s: %w", nick, channel, err)
	}
	return m, nil
}

// SetChannelMember overwrites the membership entry of nick.
func (r *Repository) SetChannelMember(ctx context.Context, channel, nick string, m *Member) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode member %s in %s: %w", nick, channel, err)
	}
	return r.store.HSet(ctx, keyChanNicks+channel, nick, data)
}

// Nick registry

// RegisterNick adds u to the registry under its nick.
func (r *Repository) RegisterNick(ctx context.Context, u *User) error {
	return r.store.SAdd(ctx, keyNickUsers+u.Nick, string(u.Tag))
}

// UnregisterNick removes u from the registry under its nick.
func (r *Repository) UnregisterNick(ctx context.Context, u *User) error {
	return r.store.SRem(ctx, keyNickUsers+u.Nick, string(u.Tag))
}

// FindNick lists every connection registered under nick.
func (r *Repository) FindNick(ctx context.Context, nick string) ([]Tag, error) {
	return r.tags(ctx, keyNickUsers+nick)
}

// Access lists

// SetAccess stores e. added is false when an entry with the same level and
// mask already existed and was left untouched.
func (r *Repository) SetAccess(ctx context.Context, channel string, e *AccessEntry) (added bool, err error) {
	exists, err := r.store.HExists(ctx, keyChanAccess+channel, e.Key())
	if err != nil || exists {
		return false, err
	}
	data, err := msgpack.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("encode access %s in %s: %w", e.Key(), channel, err)
	}
	if err := r.store.HSet(ctx, keyChanAccess+channel, e.Key(), data); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAccess removes one entry; removed is false when it did not exist.
func (r *Repository) DeleteAccess(ctx context.Context, channel string, level AccessLevel, mask string) (removed bool, err error) {
	key := accessKey(level, mask)
	exists, err := r.store.HExists(ctx, keyChanAccess+channel, key)
	if err != nil || !exists {
		return false, err
	}
	return true, r.store.HDel(ctx, keyChanAccess+channel, key)
}

// ListAccess returns the live entries of a channel ordered by level then
// mask. Expired entries are deleted on the way.
func (r *Repository) ListAccess(ctx context.Context, channel string) ([]*AccessEntry, error) {
	all, err := r.store.HGetAll(ctx, keyChanAccess+channel)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var entries []*AccessEntry
	var expired []string
	for key, data := range all {
		e := &AccessEntry{}
		if err := msgpack.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("decode access %s in %s: %w", key, channel, err)
		}
		if e.Expired(now) {
			expired = append(expired, key)
			continue
		}
		entries = append(entries, e)
	}
	if err := r.store.HDel(ctx, keyChanAccess+channel, expired...); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Level != entries[j].Level {
			return entries[i].Level.rank() > entries[j].Level.rank()
		}
		return entries[i].Mask < entries[j].Mask
	})
	return entries, nil
}

// ClearAccess removes every entry, or only those of level when it is set.
// It returns how many were removed.
func (r *Repository) ClearAccess(ctx context.Context, channel string, level AccessLevel) (int, error) {
	entries, err := r.ListAccess(ctx, channel)
	if err != nil {
		return 0, err
	}
	var keys []string
	for _, e := range entries {
		if level == "" || e.Level == level {
			keys = append(keys, e.Key())
		}
	}
	return len(keys), r.store.HDel(ctx, keyChanAccess+channel, keys...)
}

// MatchAccess returns the strongest live entry whose mask matches id, with
// DENY taking precedence over every grant. nil means no entry matched.
func (r *Repository) MatchAccess(ctx context.Context, channel, id string) (*AccessEntry, error) {
	entries, err := r.ListAccess(ctx, channel)
	if err != nil {
		return nil, err
	}

	var best *AccessEntry
	id = strings.ToLower(id)
	for _, e := range entries {
		if !girc.Glob(id, strings.ToLower(e.Mask)) {
			continue
		}
		if e.Level == AccessDeny {
			return e, nil
		}
		if best == nil || e.Level.rank() > best.Level.rank() {
			best = e
		}
	}
	return best, nil
}

// Stats is a point-in-time count of persisted entities.
type Stats struct {
	Users    int `json:"users"`
	Channels int `json:"channels"`
}

// Stats counts users and channels.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	users, err := r.store.Keys(ctx, keyUser+"*")
	if err != nil {
		return Stats{}, err
	}
	chans, err := r.store.Keys(ctx, keyChan+"*")
	if err != nil {
		return Stats{}, err
	}
	return Stats{Users: len(users), Channels: len(chans)}, nil
}
