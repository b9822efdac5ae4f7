package irc

import (
	"fmt"
	"time"

	"github.com/lrstanley/girc"
	"golang.org/x/crypto/bcrypt"
)

func cmdPass(c *Context) error {
	u := c.User
	if u.Registered() {
		return replyErr("ERR_ALREADYREGISTRED")
	}

	hash := c.Kernel.opts.PasswordHash
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(c.Params[0])); err != nil {
		u.PassOK = false
		if err := c.Kernel.repo.SaveUser(c.Ctx, u); err != nil {
			return err
		}
		return replyErr("ERR_PASSWDMISMATCH")
	}

	u.PassOK = true
	if err := c.Kernel.repo.SaveUser(c.Ctx, u); err != nil {
		return err
	}
	return register(c)
}

func cmdNick(c *Context) error {
	u := c.User
	nick := c.Params[0]
	if !girc.IsValidNick(nick) {
		return replyErr("ERR_ERRONEUSNICKNAME", nick)
	}

	if !u.Registered() {
		u.Nick = nick
		if err := c.Kernel.repo.SaveUser(c.Ctx, u); err != nil {
			return err
		}
		return register(c)
	}

	if nick == u.Nick {
		return nil
	}

	// membership entries are keyed by nick
	chans, err := c.Kernel.repo.UserChannels(c.Ctx, u.Tag)
	if err != nil {
		return err
	}
	if len(chans) > 0 {
		return replyErr("ERR_UNAVAILRESOURCE", nick)
	}

	repo := c.Kernel.repo
	oldID := u.ID
	if err := repo.UnregisterNick(c.Ctx, u); err != nil {
		return err
	}
	u.Nick = nick
	u.ID = userID(u)
	if err := repo.RegisterNick(c.Ctx, u); err != nil {
		return err
	}
	if err := repo.SaveUser(c.Ctx, u); err != nil {
		return err
	}
	return c.Kernel.out.SendTo(c.Ctx, u.Tag, fmt.Sprintf(":%s NICK :%s", oldID, nick))
}

func cmdUser(c *Context) error {
	u := c.User
	if u.Registered() {
		return replyErr("ERR_ALREADYREGISTRED")
	}

	u.Username = c.Params[0]
	if len(c.Params) >= 4 {
		u.Realname = c.Params[3]
	}
	if err := c.Kernel.repo.SaveUser(c.Ctx, u); err != nil {
		return err
	}
	return register(c)
}

// register completes registration once nick, user and password are in.
func register(c *Context) error {
	u := c.User
	k := c.Kernel
	if u.Nick == "*" || u.Username == "" {
		return nil
	}
	if k.opts.PasswordHash != "" && !u.PassOK {
		return nil
	}

	u.ID = userID(u)
	u.Auth = u.Nick
	if err := k.repo.RegisterNick(c.Ctx, u); err != nil {
		return err
	}
	if err := k.repo.SaveUser(c.Ctx, u); err != nil {
		return err
	}
	k.log.Info("registered", "tag", u.Tag, "id", u.ID)

	for _, r := range []struct {
		name string
		args []interface{}
	}{
		{"RPL_WELCOME", []interface{}{u.ID}},
		{"RPL_YOURHOST", []interface{}{k.opts.ServerName, Version}},
		{"RPL_CREATED", []interface{}{k.created.UTC().Format(time.RFC1123)}},
		{"RPL_MYINFO", []interface{}{k.opts.ServerName, Version, "mqov"}},
	} {
		if err := c.Reply(r.name, r.args...); err != nil {
			return err
		}
	}
	if k.opts.Network != "" {
		return c.Reply("RPL_ISUPPORT", "NETWORK="+k.opts.Network)
	}
	return nil
}

func userID(u *User) string {
	return fmt.Sprintf("%s!%s@%s", u.Nick, u.Username, u.IP)
}

func cmdPing(c *Context) error {
	server := c.Kernel.opts.ServerName
	return c.Kernel.out.SendTo(c.Ctx, c.User.Tag, fmt.Sprintf(":%s PONG %s :%s", server, server, c.Params[0]))
}

// cmdPong has nothing to do: every message already refreshed liveness.
func cmdPong(*Context) error {
	return nil
}

func cmdQuit(c *Context) error {
	return c.Kernel.out.Disconnect(c.Ctx, c.User.Tag)
}
