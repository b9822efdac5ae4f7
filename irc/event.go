package irc

import (
	"fmt"
	"strings"
)

// Event kinds carried on the inbound queue.
const (
	KindMessage    = "message"
	KindConnect    = "connect"
	KindDisconnect = "disconnect"
	KindReset      = "reset"
	KindShutdown   = "shutdown"
)

// Event is one inbound queue element: "<kind> <origin> <data>". Origin is a
// connection tag, or a front-end id for reset.
type Event struct {
	Kind   string `json:"kind" validate:"required,oneof=message connect disconnect reset shutdown"`
	Origin string `json:"origin"`
	Data   string `json:"data"`
}

// ParseEvent splits a raw queue element. Origin and data may be absent.
func ParseEvent(raw string) (Event, error) {
	parts := strings.SplitN(raw, " ", 3)
	if parts[0] == "" {
		return Event{}, fmt.Errorf("empty event %q", raw)
	}
	ev := Event{Kind: parts[0]}
	if len(parts) > 1 {
		ev.Origin = parts[1]
	}
	if len(parts) > 2 {
		ev.Data = parts[2]
	}
	return ev, nil
}

// String encodes the event for the inbound queue.
func (e Event) String() string {
	return e.Kind + " " + e.Origin + " " + e.Data
}
