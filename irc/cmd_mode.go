package irc

import "strings"

func cmdMode(c *Context) error {
	target := c.Params[0]
	if !strings.HasPrefix(target, "#") {
		// user modes are not supported
		return nil
	}
	return channelMode(c, target, c.Params[1:])
}

func channelMode(c *Context, name string, args []string) error {
	u := c.User
	repo := c.Kernel.repo

	ch, err := repo.FindChannel(c.Ctx, name)
	if err != nil {
		return err
	}
	if ch == nil {
		return replyErr("ERR_NOSUCHCHANNEL", name)
	}

	if len(args) == 0 {
		return c.Reply("RPL_CHANNELMODEIS", ch.Name, ch.Modes)
	}

	// bans are handled by ACCESS
	if len(args) == 1 && (args[0] == "b" || args[0] == "+b") {
		return c.Reply("RPL_ENDOFBANLIST", ch.Name)
	}

	self, err := repo.ChannelMember(c.Ctx, ch.Name, u.Nick)
	if err != nil {
		return err
	}
	if self != nil && self.Tag != u.Tag {
		self = nil
	}
	if !self.IsOp() {
		return replyErr("ERR_CHANOPRIVSNEEDED", ch.Name)
	}

	chars, targets := args[0], args[1:]
	adding := true
	for i := 0; i < len(chars); i++ {
		mode := chars[i]
		switch mode {
		case '+', '-':
			adding = mode == '+'

		case ModeOwner, ModeOperator, ModeVoice:
			if len(targets) == 0 {
				continue
			}
			nick := targets[0]
			targets = targets[1:]

			if mode == ModeOwner && !self.IsOwner() {
				continue
			}

			m, err := repo.ChannelMember(c.Ctx, ch.Name, nick)
			if err != nil {
				return err
			}
			if m == nil {
				if err := c.Reply("ERR_USERNOTINCHANNEL", nick, ch.Name); err != nil {
					return err
				}
				continue
			}

			modes, changed := setMode(m.Modes, mode, adding)
			if !changed {
				continue
			}
			m.Modes = modes
			if err := repo.SetChannelMember(c.Ctx, ch.Name, nick, m); err != nil {
				return err
			}
			if err := c.Kernel.sendChannel(c.Ctx, u, "MODE", ch.Name, modeChange(adding, mode)+" "+nick, false); err != nil {
				return err
			}

		case ModeModerated:
			modes, changed := setMode(ch.Modes, mode, adding)
			if !changed {
				continue
			}
			ch.Modes = modes
			if err := repo.SaveChannel(c.Ctx, ch); err != nil {
				return err
			}
			if err := c.Kernel.sendChannel(c.Ctx, u, "MODE", ch.Name, modeChange(adding, mode), false); err != nil {
				return err
			}

		default:
			if err := c.Reply("ERR_UNKNOWNMODE", mode); err != nil {
				return err
			}
		}
	}
	return nil
}

func modeChange(adding bool, mode byte) string {
	if adding {
		return "+" + string(mode)
	}
	return "-" + string(mode)
}

func cmdKick(c *Context) error {
	ch := c.Channel
	repo := c.Kernel.repo
	nick, reason := c.Params[0], c.Params[1]

	m, err := repo.ChannelMember(c.Ctx, ch.Name, nick)
	if err != nil {
		return err
	}
	if m == nil {
		return replyErr("ERR_USERNOTINCHANNEL", nick, ch.Name)
	}

	if err := c.Kernel.sendChannel(c.Ctx, c.User, "KICK", ch.Name, nick+" :"+reason, false); err != nil {
		return err
	}
	destroyed, err := repo.Part(c.Ctx, ch.Name, nick, m.Tag)
	if err != nil {
		return err
	}
	if destroyed {
		c.Kernel.log.Debug("channel destroyed", "channel", ch.Name)
	}
	return nil
}
