package irc

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var accessMask = regexp.MustCompile(`^[^\s,]{1,255}$`)

// errDurationRange marks a duration that is numeric but negative or too
// large to represent.
var errDurationRange = errors.New("duration out of range")

var durationUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
	'y': 365 * 24 * time.Hour,
}

// parseDuration accepts "30s", "10m", "2h", "1d", "1w", "1y", a bare number
// of minutes, or Go duration syntax.
func parseDuration(s string) (time.Duration, error) {
	num, unit := s, time.Minute
	if len(s) > 1 {
		if u, ok := durationUnits[s[len(s)-1]]; ok {
			num, unit = s[:len(s)-1], u
		}
	}
	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		if n < 0 || n > math.MaxInt64/int64(unit) {
			return 0, errDurationRange
		}
		return time.Duration(n) * unit, nil
	} else if errors.Is(err, strconv.ErrRange) {
		return 0, errDurationRange
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errDurationRange
	}
	return d, nil
}

// cmdAccess serves ACCESS <chan> [LIST|ADD|DEL|CLEAR] ...
func cmdAccess(c *Context) error {
	switch strings.ToUpper(c.Param(0)) {
	case "", "LIST":
		return accessList(c)
	case "ADD":
		return accessAdd(c)
	case "DEL", "DELETE":
		return accessDel(c)
	case "CLEAR":
		return accessClear(c)
	}
	return replyErr("ERR_NEEDMOREPARAMS", c.Command.Name)
}

func accessList(c *Context) error {
	ch := c.Channel
	entries, err := c.Kernel.repo.ListAccess(c.Ctx, ch.Name)
	if err != nil {
		return err
	}

	if err := c.Reply("RPL_ACCESSSTART", ch.Name); err != nil {
		return err
	}
	now := c.Kernel.opts.Now()
	for _, e := range entries {
		if err := c.Reply("RPL_ACCESSLIST", ch.Name, e.Level, e.Mask, remaining(e, now), e.Setter, e.Reason); err != nil {
			return err
		}
	}
	return c.Reply("RPL_ACCESSEND", ch.Name)
}

// remaining is the entry's time left in minutes, 0 when permanent.
func remaining(e *AccessEntry, now time.Time) int64 {
	if e.Expiry == 0 {
		return 0
	}
	left := e.Expiry - now.Unix()
	return (left + 59) / 60
}

// accessTarget parses "<level> <mask>" and checks the caller may manage
// that level.
func accessTarget(c *Context) (AccessLevel, string, error) {
	if !c.Member.IsOp() {
		return "", "", replyErr("ERR_CHANOPRIVSNEEDED", c.Channel.Name)
	}
	if len(c.Params) < 3 {
		return "", "", replyErr("ERR_NEEDMOREPARAMS", c.Command.Name)
	}
	level, err := ParseAccessLevel(c.Params[1])
	if err != nil {
		return "", "", replyErr("ERR_BADLEVEL", c.Params[1])
	}
	if level == AccessOwner && !c.Member.IsOwner() {
		return "", "", replyErr("ERR_CHANOPRIVSNEEDED", c.Channel.Name)
	}
	mask := c.Params[2]
	if !accessMask.MatchString(mask) {
		return "", "", replyErr("ERR_NEEDMOREPARAMS", c.Command.Name)
	}
	return level, mask, nil
}

func accessAdd(c *Context) error {
	ch := c.Channel
	level, mask, err := accessTarget(c)
	if err != nil {
		return err
	}

	// ADD <level> <mask> [<duration>] [:<reason>]
	var d time.Duration
	var reason string
	switch rest := c.Params[3:]; len(rest) {
	case 0:
	case 1:
		d, err = parseDuration(rest[0])
		if errors.Is(err, errDurationRange) {
			return replyErr("ERR_NEEDMOREPARAMS", c.Command.Name)
		}
		if err != nil {
			d, reason = 0, rest[0]
		}
	default:
		if d, err = parseDuration(rest[0]); err != nil {
			return replyErr("ERR_NEEDMOREPARAMS", c.Command.Name)
		}
		reason = rest[1]
	}

	now := c.Kernel.opts.Now()
	e := &AccessEntry{
		Level:  level,
		Mask:   mask,
		Setter: c.User.ID,
		Reason: reason,
	}
	if d > 0 {
		e.Expiry = now.Add(d).Unix()
	}

	added, err := c.Kernel.repo.SetAccess(c.Ctx, ch.Name, e)
	if err != nil {
		return err
	}
	if !added {
		return replyErr("ERR_DUPACCESS", ch.Name, level, mask)
	}
	return c.Reply("RPL_ACCESSADD", ch.Name, e.Level, e.Mask, remaining(e, now), e.Setter, e.Reason)
}

func accessDel(c *Context) error {
	ch := c.Channel
	level, mask, err := accessTarget(c)
	if err != nil {
		return err
	}

	removed, err := c.Kernel.repo.DeleteAccess(c.Ctx, ch.Name, level, mask)
	if err != nil {
		return err
	}
	if !removed {
		return replyErr("ERR_MISACCESS", ch.Name, level, mask)
	}
	return c.Reply("RPL_ACCESSDELETE", ch.Name, level, mask)
}

func accessClear(c *Context) error {
	ch := c.Channel
	if !c.Member.IsOp() {
		return replyErr("ERR_CHANOPRIVSNEEDED", ch.Name)
	}

	var levels []AccessLevel
	label := "*"
	if raw := c.Param(1); raw != "" {
		level, err := ParseAccessLevel(raw)
		if err != nil {
			return replyErr("ERR_BADLEVEL", raw)
		}
		if level == AccessOwner && !c.Member.IsOwner() {
			return replyErr("ERR_CHANOPRIVSNEEDED", ch.Name)
		}
		levels = []AccessLevel{level}
		label = string(level)
	} else if c.Member.IsOwner() {
		levels = []AccessLevel{""}
	} else {
		// owner grants stay out of reach of plain operators
		levels = []AccessLevel{AccessOp, AccessVoice, AccessDeny}
	}

	for _, level := range levels {
		if _, err := c.Kernel.repo.ClearAccess(c.Ctx, ch.Name, level); err != nil {
			return err
		}
	}
	return c.Reply("RPL_ACCESSCLEAR", ch.Name, label)
}
