package irc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replyName(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	var re *ReplyError
	require.True(t, errors.As(err, &re), "unexpected error %v", err)
	return re.Name
}

func TestGuards(t *testing.T) {
	h := newHarness(t)
	h.user("1")
	h.msg("fe:1", "JOIN #a")
	h.user("2")
	h.msg("fe:2", "JOIN #a")
	h.drain()

	registered, err := h.k.repo.LoadUser(h.ctx, "fe:2")
	require.NoError(t, err)
	op, err := h.k.repo.LoadUser(h.ctx, "fe:1")
	require.NoError(t, err)
	anonymous := &User{Tag: "fe:9", Nick: "*"}

	plain := &Command{Name: "PLAIN"}
	scoped := &Command{Name: "SCOPED", Guards: []Guard{Chan}}

	tests := []struct {
		name   string
		guard  Guard
		cmd    *Command
		user   *User
		params []string
		want   string
	}{
		{"auth rejects anonymous", Auth, plain, anonymous, nil, "ERR_NOTREGISTERED"},
		{"auth passes registered", Auth, plain, registered, nil, ""},
		{"args short", Args(2), plain, registered, []string{"x"}, "ERR_NEEDMOREPARAMS"},
		{"args enough", Args(2), plain, registered, []string{"x", "y"}, ""},
		{"args counts channel apart", Args(2), scoped, registered, []string{"#a", "x"}, "ERR_NEEDMOREPARAMS"},
		{"args scoped enough", Args(2), scoped, registered, []string{"#a", "x", "y"}, ""},
		{"chan missing param", Chan, scoped, registered, nil, "ERR_NEEDMOREPARAMS"},
		{"chan unknown", Chan, scoped, registered, []string{"#nope"}, "ERR_NOSUCHCHANNEL"},
		{"chan known", Chan, scoped, registered, []string{"#a"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Context{Ctx: h.ctx, Kernel: h.k, User: tt.user, Command: tt.cmd, Params: tt.params}
			assert.Equal(t, tt.want, replyName(t, tt.guard.Check(c)))
		})
	}

	t.Run("chan resolves membership", func(t *testing.T) {
		c := &Context{Ctx: h.ctx, Kernel: h.k, User: op, Command: scoped, Params: []string{"#a", "rest"}}
		require.NoError(t, Chan.Check(c))
		assert.Equal(t, "#a", c.Channel.Name)
		assert.Equal(t, []string{"rest"}, c.Params)
		assert.True(t, c.Member.IsOp())
		assert.NoError(t, ChanOp.Check(c))
	})

	t.Run("chanop rejects plain member", func(t *testing.T) {
		c := &Context{Ctx: h.ctx, Kernel: h.k, User: registered, Command: scoped, Params: []string{"#a"}}
		require.NoError(t, Chan.Check(c))
		assert.Equal(t, "ERR_CHANOPRIVSNEEDED", replyName(t, ChanOp.Check(c)))
	})

	t.Run("chanop ignores a clone's entry", func(t *testing.T) {
		clone := &User{Tag: "fe:7", Nick: "test1", Auth: "test1"}
		c := &Context{Ctx: h.ctx, Kernel: h.k, User: clone, Command: scoped, Params: []string{"#a"}}
		require.NoError(t, Chan.Check(c))
		assert.Nil(t, c.Member)
		assert.Equal(t, "ERR_CHANOPRIVSNEEDED", replyName(t, ChanOp.Check(c)))
	})
}

func TestCommandStopsAtFirstGuard(t *testing.T) {
	h := newHarness(t)

	var called []string
	track := func(name string, fail bool) Guard {
		return Guard{Name: name, Check: func(*Context) error {
			called = append(called, name)
			if fail {
				return replyErr("ERR_" + name)
			}
			return nil
		}}
	}
	handled := false
	cmd := &Command{
		Name:    "TEST",
		Guards:  []Guard{track("one", false), track("two", true), track("three", true)},
		Handler: func(*Context) error { handled = true; return nil },
	}

	err := cmd.run(&Context{Ctx: h.ctx, Kernel: h.k, User: &User{Tag: "fe:1"}, Command: cmd})
	assert.Equal(t, "ERR_two", replyName(t, err))
	assert.Equal(t, []string{"one", "two"}, called)
	assert.False(t, handled)
}

func TestCommandsLookup(t *testing.T) {
	r := defaultCommands()

	assert.NotNil(t, r.Lookup("privmsg"))
	assert.Same(t, r.Lookup("JOIN"), r.Lookup("Join"))
	assert.Nil(t, r.Lookup("WHOIS"))
	assert.Contains(t, r.Names(), "ACCESS")

	kick := r.Lookup("KICK")
	require.NotNil(t, kick)
	var order []string
	for _, g := range kick.Guards {
		order = append(order, g.Name)
	}
	assert.Equal(t, []string{"auth", "args", "chan", "chanop"}, order)
}
