package irc

import (
	"context"
	"sort"
	"strings"
)

// Context carries one command invocation through its guards and handler.
type Context struct {
	Ctx     context.Context
	Kernel  *Kernel
	User    *User
	Command *Command

	// Params are the positional parameters. Once the chan guard passed, the
	// channel name has been consumed and Channel and Member are set.
	Params  []string
	Channel *Channel
	Member  *Member
}

// Reply sends a numeric to the caller.
func (c *Context) Reply(name string, args ...interface{}) error {
	return c.Kernel.reply(c.Ctx, c.User, name, args...)
}

// Param returns the i-th parameter or "".
func (c *Context) Param(i int) string {
	if i < len(c.Params) {
		return c.Params[i]
	}
	return ""
}

// Guard is one precondition of a command. A failing guard returns a
// *ReplyError naming the numeric to send.
type Guard struct {
	Name  string
	Check func(c *Context) error
}

// Auth requires a registered caller.
var Auth = Guard{Name: "auth", Check: func(c *Context) error {
	if !c.User.Registered() {
		return replyErr("ERR_NOTREGISTERED")
	}
	return nil
}}

// Args requires n positional parameters. On channel-scoped commands the
// channel is counted on top of n.
func Args(n int) Guard {
	return Guard{Name: "args", Check: func(c *Context) error {
		need := n
		if c.Command.channelScoped() {
			need++
		}
		if len(c.Params) < need {
			return replyErr("ERR_NEEDMOREPARAMS", c.Command.Name)
		}
		return nil
	}}
}

// Chan resolves the first parameter to an existing channel and the caller's
// membership in it.
var Chan = Guard{Name: "chan", Check: func(c *Context) error {
	if len(c.Params) == 0 {
		return replyErr("ERR_NEEDMOREPARAMS", c.Command.Name)
	}
	name := c.Params[0]
	repo := c.Kernel.repo

	ch, err := repo.FindChannel(c.Ctx, name)
	if err != nil {
		return err
	}
	if ch == nil {
		return replyErr("ERR_NOSUCHCHANNEL", name)
	}
	m, err := repo.ChannelMember(c.Ctx, ch.Name, c.User.Nick)
	if err != nil {
		return err
	}
	if m != nil && m.Tag != c.User.Tag {
		// the entry belongs to a clone of this nick
		m = nil
	}

	c.Channel = ch
	c.Member = m
	c.Params = c.Params[1:]
	return nil
}}

// ChanOp requires op or owner in the resolved channel.
var ChanOp = Guard{Name: "chanop", Check: func(c *Context) error {
	if !c.Member.IsOp() {
		return replyErr("ERR_CHANOPRIVSNEEDED", c.Channel.Name)
	}
	return nil
}}

// Command is a protocol verb: the guards it must pass and its handler.
type Command struct {
	Name    string
	Guards  []Guard
	Handler func(c *Context) error
}

func (cmd *Command) channelScoped() bool {
	for _, g := range cmd.Guards {
		if g.Name == Chan.Name {
			return true
		}
	}
	return false
}

// run evaluates the guards in order and stops at the first failure.
func (cmd *Command) run(c *Context) error {
	for _, g := range cmd.Guards {
		if err := g.Check(c); err != nil {
			return err
		}
	}
	return cmd.Handler(c)
}

// Commands indexes commands by upper-case name.
type Commands struct {
	byName map[string]*Command
}

func NewCommands() *Commands {
	return &Commands{byName: make(map[string]*Command)}
}

// Register adds cmd, replacing any command of the same name.
func (r *Commands) Register(cmd *Command) {
	r.byName[strings.ToUpper(cmd.Name)] = cmd
}

// Lookup is case-insensitive; nil means unknown.
func (r *Commands) Lookup(name string) *Command {
	return r.byName[strings.ToUpper(name)]
}

// Names lists registered commands sorted.
func (r *Commands) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// defaultCommands is the protocol surface the kernel serves.
func defaultCommands() *Commands {
	r := NewCommands()
	for _, cmd := range []*Command{
		{Name: "PASS", Guards: []Guard{Args(1)}, Handler: cmdPass},
		{Name: "NICK", Guards: []Guard{Args(1)}, Handler: cmdNick},
		{Name: "USER", Guards: []Guard{Args(1)}, Handler: cmdUser},
		{Name: "PING", Guards: []Guard{Args(1)}, Handler: cmdPing},
		{Name: "PONG", Handler: cmdPong},
		{Name: "QUIT", Handler: cmdQuit},
		{Name: "JOIN", Guards: []Guard{Auth, Args(1)}, Handler: cmdJoin},
		{Name: "PART", Guards: []Guard{Auth, Chan}, Handler: cmdPart},
		{Name: "NAMES", Guards: []Guard{Auth, Args(1)}, Handler: cmdNames},
		{Name: "TOPIC", Guards: []Guard{Auth, Chan}, Handler: cmdTopic},
		{Name: "PRIVMSG", Guards: []Guard{Auth, Args(2)}, Handler: cmdPrivmsg},
		{Name: "NOTICE", Guards: []Guard{Auth, Args(2)}, Handler: cmdNotice},
		{Name: "MODE", Guards: []Guard{Auth, Args(1)}, Handler: cmdMode},
		{Name: "KICK", Guards: []Guard{Auth, Args(2), Chan, ChanOp}, Handler: cmdKick},
		{Name: "ACCESS", Guards: []Guard{Auth, Chan}, Handler: cmdAccess},
	} {
		r.Register(cmd)
	}
	return r
}
