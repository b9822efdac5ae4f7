package irc

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/presbrey/ircq/store"
)

// Outbox routes protocol lines to the queues of the front-ends owning the
// recipient connections.
type Outbox struct {
	store   store.Store
	prefix  string
	log     *slog.Logger
	metrics *Metrics
}

// NewOutbox writes to "<prefix><front-end-id>" lists. metrics may be nil.
func NewOutbox(s store.Store, prefix string, log *slog.Logger, metrics *Metrics) *Outbox {
	if log == nil {
		log = slog.Default()
	}
	return &Outbox{
		store:   s,
		prefix:  prefix,
		log:     log.With("component", "outbox"),
		metrics: metrics,
	}
}

// Send delivers line to every tag, one push per front-end.
func (o *Outbox) Send(ctx context.Context, tags []Tag, line string) error {
	line = strings.TrimSpace(line)
	if len(tags) == 0 {
		return nil
	}

	groups := make(map[string][]string)
	for _, tag := range tags {
		fe := tag.FrontEnd()
		groups[fe] = append(groups[fe], string(tag))
	}

	frontEnds := make([]string, 0, len(groups))
	for fe := range groups {
		frontEnds = append(frontEnds, fe)
	}
	sort.Strings(frontEnds)

	for _, fe := range frontEnds {
		recipients := strings.Join(groups[fe], ",")
		o.log.Debug("send", "front_end", fe, "tags", recipients, "line", line)
		if err := o.store.RPush(ctx, o.prefix+fe, recipients+" "+line+"\r\n"); err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.OutboundLines.Inc()
		}
	}
	return nil
}

// SendTo delivers line to a single connection.
func (o *Outbox) SendTo(ctx context.Context, tag Tag, line string) error {
	return o.Send(ctx, []Tag{tag}, line)
}

// Disconnect instructs the owning front-end to close the connection.
func (o *Outbox) Disconnect(ctx context.Context, tag Tag) error {
	o.log.Debug("disconnect", "tag", tag)
	return o.store.RPush(ctx, o.prefix+tag.FrontEnd(), string(tag)+" ")
}
