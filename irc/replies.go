package irc

import (
	"fmt"
	"strings"
)

type reply struct {
	numeric string
	format  string
}

// replies maps symbolic reply names to their numeric and argument format.
var replies = map[string]reply{
	"RPL_WELCOME":          {"001", ":Welcome to the Internet Relay Network %s"},
	"RPL_YOURHOST":         {"002", ":Your host is %s, running version %s"},
	"RPL_CREATED":          {"003", ":This server was created %s"},
	"RPL_MYINFO":           {"004", "%s %s %s"},
	"RPL_ISUPPORT":         {"005", "%s CHANTYPES=# PREFIX=(qov)~@+ :are supported by this server"},
	"RPL_CHANNELMODEIS":    {"324", "%s +%s"},
	"RPL_NOTOPIC":          {"331", "%s :No topic is set"},
	"RPL_TOPIC":            {"332", "%s :%s"},
	"RPL_NAMREPLY":         {"353", "= %s :%s"},
	"RPL_ENDOFNAMES":       {"366", "%s :End of NAMES list"},
	"RPL_ENDOFBANLIST":     {"368", "%s :End of channel ban list"},
	"ERR_NOSUCHNICK":       {"401", "%s :No such nick/channel"},
	"ERR_NOSUCHCHANNEL":    {"403", "%s :No such channel"},
	"ERR_CANNOTSENDTOCHAN": {"404", "%s :Cannot send to channel"},
	"ERR_ERRONEUSNICKNAME": {"432", "%s :Erroneous nickname"},
	"ERR_UNAVAILRESOURCE":  {"437", "%s :Nick/channel is temporarily unavailable"},
	"ERR_USERNOTINCHANNEL": {"441", "%s %s :They aren't on that channel"},
	"ERR_NOTONCHANNEL":     {"442", "%s :You're not on that channel"},
	"ERR_NOTREGISTERED":    {"451", ":You have not registered"},
	"ERR_NEEDMOREPARAMS":   {"461", "%s :Not enough parameters"},
	"ERR_ALREADYREGISTRED": {"462", ":Unauthorized command (already registered)"},
	"ERR_PASSWDMISMATCH":   {"464", ":Password incorrect"},
	"ERR_UNKNOWNMODE":      {"472", "%c :is unknown mode char to me"},
	"ERR_BANNEDFROMCHAN":   {"474", "%s :Cannot join channel (access denied)"},
	"ERR_BADCHANNAME":      {"479", "%s :Illegal channel name"},
	"ERR_CHANOPRIVSNEEDED": {"482", "%s :You're not channel operator"},

	"RPL_ACCESSADD":    {"801", "%s %s %s %d %s :%s"},
	"RPL_ACCESSDELETE": {"802", "%s %s %s"},
	"RPL_ACCESSSTART":  {"803", "%s :Start of access entries"},
	"RPL_ACCESSLIST":   {"804", "%s %s %s %d %s :%s"},
	"RPL_ACCESSEND":    {"805", "%s :End of access entries"},
	"RPL_ACCESSCLEAR":  {"820", "%s %s :Access list cleared"},
	"ERR_BADLEVEL":     {"903", "%s :Bad level"},
	"ERR_DUPACCESS":    {"914", "%s %s %s :Duplicate access entry"},
	"ERR_MISACCESS":    {"915", "%s %s %s :Unknown access entry"},

	"ERR_ALREADYONCHANNEL": {"901", "%s :You are already on that channel"},
	"ERR_NONUTF8":          {"980", ":Message is not valid UTF-8"},
}

// formatReply renders ":<server> <numeric> <nick> <args>". A name missing
// from the table is sent as a literal numeric followed by its arguments.
func formatReply(server, nick, name string, args ...interface{}) string {
	r, ok := replies[name]
	if !ok {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		r = reply{numeric: name, format: "%s"}
		args = []interface{}{strings.Join(parts, " ")}
	}
	line := fmt.Sprintf(":%s %s %s %s", server, r.numeric, nick, fmt.Sprintf(r.format, args...))
	return strings.TrimSpace(line)
}

// ReplyError is a guard or handler failure answered with one numeric.
type ReplyError struct {
	Name string
	Args []interface{}
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("reply %s %v", e.Name, e.Args)
}

func replyErr(name string, args ...interface{}) error {
	return &ReplyError{Name: name, Args: args}
}
