package irc

import (
	"errors"
	"regexp"
	"strings"

	"github.com/lrstanley/girc"
)

// channelName narrows girc's channel check to '#' channels of plain
// nick-like characters.
var channelName = regexp.MustCompile(`^#[\p{L}\p{N}_\-.\[\]{}\\|^]{1,49}$`)

func validChannel(name string) bool {
	return girc.IsValidChannel(name) && channelName.MatchString(name)
}

func cmdJoin(c *Context) error {
	for _, name := range strings.Split(c.Params[0], ",") {
		if name == "" {
			continue
		}
		err := join(c, name)

		var re *ReplyError
		if errors.As(err, &re) {
			err = c.Reply(re.Name, re.Args...)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func join(c *Context, name string) error {
	u := c.User
	repo := c.Kernel.repo

	if !validChannel(name) {
		return replyErr("ERR_BADCHANNAME", name)
	}

	on, err := repo.NickInChannel(c.Ctx, name, u.Nick)
	if err != nil {
		return err
	}
	if on {
		return replyErr("ERR_ALREADYONCHANNEL", name)
	}

	grant, err := repo.MatchAccess(c.Ctx, name, u.ID)
	if err != nil {
		return err
	}
	if grant != nil && grant.Level == AccessDeny {
		return replyErr("ERR_BANNEDFROMCHAN", name)
	}

	ch, created, err := repo.FindOrCreateChannel(c.Ctx, name)
	if err != nil {
		return err
	}
	m := &Member{}
	switch {
	case created:
		m.Modes = AccessOwner.modes()
	case grant != nil:
		m.Modes = grant.Level.modes()
	}
	if err := repo.Join(c.Ctx, u, ch, m); err != nil {
		return err
	}

	if err := c.Kernel.sendChannel(c.Ctx, u, "JOIN", ch.Name, "", false); err != nil {
		return err
	}
	if err := sendTopic(c, ch); err != nil {
		return err
	}
	return sendNames(c, ch.Name)
}

func sendTopic(c *Context, ch *Channel) error {
	if ch.Topic == "" {
		return c.Reply("RPL_NOTOPIC", ch.Name)
	}
	return c.Reply("RPL_TOPIC", ch.Name, ch.Topic)
}

func sendNames(c *Context, name string) error {
	members, err := c.Kernel.repo.ChannelMembers(c.Ctx, name)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		nicks := make([]string, len(members))
		for i, m := range members {
			nicks[i] = m.Prefix() + m.Nick
		}
		if err := c.Reply("RPL_NAMREPLY", name, strings.Join(nicks, " ")); err != nil {
			return err
		}
	}
	return c.Reply("RPL_ENDOFNAMES", name)
}

func cmdPart(c *Context) error {
	u := c.User
	ch := c.Channel
	repo := c.Kernel.repo

	in, err := repo.UserInChannel(c.Ctx, ch.Name, u.Tag)
	if err != nil {
		return err
	}
	if !in {
		return replyErr("ERR_NOTONCHANNEL", ch.Name)
	}

	var args string
	if reason := c.Param(0); reason != "" {
		args = ":" + reason
	}
	if err := c.Kernel.sendChannel(c.Ctx, u, "PART", ch.Name, args, false); err != nil {
		return err
	}

	destroyed, err := repo.Part(c.Ctx, ch.Name, u.Nick, u.Tag)
	if err != nil {
		return err
	}
	if destroyed {
		c.Kernel.log.Debug("channel destroyed", "channel", ch.Name)
	}
	return nil
}

func cmdNames(c *Context) error {
	name := c.Params[0]
	ch, err := c.Kernel.repo.FindChannel(c.Ctx, name)
	if err != nil {
		return err
	}
	if ch == nil {
		return c.Reply("RPL_ENDOFNAMES", name)
	}
	return sendNames(c, ch.Name)
}

func cmdTopic(c *Context) error {
	ch := c.Channel
	if len(c.Params) == 0 {
		return sendTopic(c, ch)
	}
	if !c.Member.IsOp() {
		return replyErr("ERR_CHANOPRIVSNEEDED", ch.Name)
	}

	ch.Topic = c.Params[0]
	if err := c.Kernel.repo.SaveChannel(c.Ctx, ch); err != nil {
		return err
	}
	return c.Kernel.sendChannel(c.Ctx, c.User, "TOPIC", ch.Name, ":"+ch.Topic, false)
}

func cmdPrivmsg(c *Context) error {
	return deliver(c, "PRIVMSG")
}

// cmdNotice delivers like PRIVMSG but never answers with an error.
func cmdNotice(c *Context) error {
	err := deliver(c, "NOTICE")
	var re *ReplyError
	if errors.As(err, &re) {
		return nil
	}
	return err
}

func deliver(c *Context, verb string) error {
	u := c.User
	repo := c.Kernel.repo
	target, text := c.Params[0], c.Params[1]

	if strings.HasPrefix(target, "#") {
		ch, err := repo.FindChannel(c.Ctx, target)
		if err != nil {
			return err
		}
		if ch == nil {
			return replyErr("ERR_NOSUCHCHANNEL", target)
		}

		m, err := repo.ChannelMember(c.Ctx, ch.Name, u.Nick)
		if err != nil {
			return err
		}
		if m == nil || m.Tag != u.Tag {
			return replyErr("ERR_CANNOTSENDTOCHAN", ch.Name)
		}
		if hasMode(ch.Modes, ModeModerated) && !m.CanSpeak() {
			return replyErr("ERR_CANNOTSENDTOCHAN", ch.Name)
		}
		return c.Kernel.sendChannel(c.Ctx, u, verb, ch.Name, ":"+text, true)
	}

	tags, err := repo.FindNick(c.Ctx, target)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return replyErr("ERR_NOSUCHNICK", target)
	}
	return c.Kernel.sendCommand(c.Ctx, tags, u, verb, target, ":"+text)
}
