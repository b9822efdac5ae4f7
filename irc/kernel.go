// Package irc is the stateful core of a queue-fed IRC daemon. Front-end
// processes own the client sockets and exchange line events with the kernel
// through lists in a shared store; the kernel owns every piece of protocol
// state.
package irc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/presbrey/ircq/hooks"
	"github.com/presbrey/ircq/store"
)

// Version is reported in the registration burst.
const Version = "ircq-1.0"

// Options configures a Kernel. Zero values take the defaults noted.
type Options struct {
	ServerName string // "irc.localhost"
	Network    string // announced in 005 when set

	// PasswordHash is a bcrypt hash; when set, clients must send a
	// matching PASS before registering.
	PasswordHash string

	Queue          string        // "mq:kernel"
	OutboundPrefix string        // "mq:"
	PingTimeout    time.Duration // 2m
	PopTimeout     time.Duration // 1s

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *Metrics
}

func (o *Options) setDefaults() {
	if o.ServerName == "" {
		o.ServerName = "irc.localhost"
	}
	if o.Queue == "" {
		o.Queue = "mq:kernel"
	}
	if o.OutboundPrefix == "" {
		o.OutboundPrefix = "mq:"
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 2 * time.Minute
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Kernel consumes the inbound queue on a single goroutine. Every event is
// processed to completion before the next one is popped.
type Kernel struct {
	opts    Options
	id      string
	created time.Time

	store    store.Store
	repo     *Repository
	out      *Outbox
	tracker  *Tracker
	commands *Commands
	hooks    *hooks.Registry[Event]
	log      *slog.Logger
	metrics  *Metrics

	mu       sync.Mutex
	running  bool
	stopped  bool // Stop was called; Run will not start again
	inFlight bool
	cancel   context.CancelFunc
}

// New builds a kernel over s and starts liveness tracking for every user
// record already in the store.
func New(ctx context.Context, s store.Store, opts Options) (*Kernel, error) {
	opts.setDefaults()

	id := uuid.NewString()
	k := &Kernel{
		opts:     opts,
		id:       id,
		created:  opts.Now(),
		store:    s,
		repo:     NewRepository(s, opts.Now),
		tracker:  NewTracker(opts.PingTimeout, opts.Now),
		commands: defaultCommands(),
		hooks:    hooks.NewRegistry[Event](),
		log:      opts.Logger.With("component", "kernel", "kernel_id", id),
		metrics:  opts.Metrics,
	}
	k.out = NewOutbox(s, opts.OutboundPrefix, opts.Logger, opts.Metrics)

	tags, err := k.repo.UserTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild liveness: %w", err)
	}
	for _, tag := range tags {
		k.tracker.Update(tag)
	}
	k.log.Info("kernel created", "server", opts.ServerName, "tracked", len(tags))
	return k, nil
}

// ID identifies this kernel instance in logs.
func (k *Kernel) ID() string { return k.id }

// Repository exposes the entity repository for read-only inspection.
func (k *Kernel) Repository() *Repository { return k.repo }

// Hooks run after every processed event.
func (k *Kernel) Hooks() *hooks.Registry[Event] { return k.hooks }

// Commands is the protocol command table.
func (k *Kernel) Commands() *Commands { return k.commands }

// Run pops and processes events until Stop is called, a shutdown event
// arrives or ctx is cancelled.
func (k *Kernel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return nil
	}
	k.running = true
	k.cancel = cancel
	k.mu.Unlock()

	k.log.Info("kernel started", "queue", k.opts.Queue)
	defer k.log.Info("kernel stopped")

	for k.isRunning() {
		k.checkLiveness(ctx)

		raw, found, err := k.store.BLPop(ctx, k.opts.PopTimeout, k.opts.Queue)
		if err != nil {
			if ctx.Err() != nil {
				if !k.isRunning() {
					return nil
				}
				return ctx.Err()
			}
			if errors.Is(err, store.ErrClosed) {
				return err
			}
			k.log.Error("pop failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(k.opts.PopTimeout):
			}
			continue
		}
		if found {
			k.Process(ctx, raw)
		}
	}
	return nil
}

// Stop ends Run after the event in flight, if any. With nothing in flight
// it also interrupts the blocking pop. A stopped kernel does not run again.
// Safe to call from a hook or handler, or before Run.
func (k *Kernel) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.running = false
	k.stopped = true
	if !k.inFlight && k.cancel != nil {
		k.cancel()
	}
}

func (k *Kernel) isRunning() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running
}

func (k *Kernel) setInFlight(v bool) {
	k.mu.Lock()
	k.inFlight = v
	k.mu.Unlock()
}

// Process handles one raw inbound element. Failures are logged and the
// event is dropped.
func (k *Kernel) Process(ctx context.Context, raw string) {
	k.setInFlight(true)
	defer k.setInFlight(false)

	start := time.Now()
	ev, err := ParseEvent(raw)
	if err != nil {
		k.log.Error("bad event", "error", err)
		return
	}

	kind := ev.Kind
	switch ev.Kind {
	case KindMessage:
		err = k.message(ctx, Tag(ev.Origin), ev.Data)
	case KindConnect:
		err = k.connect(ctx, Tag(ev.Origin), ev.Data)
	case KindDisconnect:
		err = k.disconnect(ctx, Tag(ev.Origin), ev.Data)
	case KindReset:
		err = k.reset(ctx, ev.Origin, ev.Data)
	case KindShutdown:
		k.log.Info("shutdown requested", "origin", ev.Origin)
		k.Stop()
	default:
		kind = "unknown"
		k.log.Warn("unknown event kind", "kind", ev.Kind, "origin", ev.Origin)
	}
	if err != nil {
		k.log.Error("event dropped", "kind", ev.Kind, "origin", ev.Origin, "error", err)
	}

	if err := k.hooks.Run(ev); err != nil {
		k.log.Warn("event hooks failed", "kind", ev.Kind, "error", err)
	}

	if k.metrics != nil {
		k.metrics.EventsTotal.WithLabelValues(kind).Inc()
		k.metrics.EventDuration.Observe(time.Since(start).Seconds())
		k.metrics.Tracked.Set(float64(k.tracker.Len()))
	}
}

func (k *Kernel) checkLiveness(ctx context.Context) {
	ping, expired := k.tracker.Check()
	for _, tag := range ping {
		if err := k.out.SendTo(ctx, tag, "PING :"+k.opts.ServerName); err != nil {
			k.log.Error("ping failed", "tag", tag, "error", err)
		}
	}
	for _, tag := range expired {
		k.log.Info("ping timeout", "tag", tag)
		if err := k.out.Disconnect(ctx, tag); err != nil {
			k.log.Error("disconnect failed", "tag", tag, "error", err)
		}
	}
	if k.metrics != nil {
		k.metrics.PingsTotal.Add(float64(len(ping)))
		k.metrics.TimeoutsTotal.Add(float64(len(expired)))
		k.metrics.Tracked.Set(float64(k.tracker.Len()))
	}
}

func (k *Kernel) message(ctx context.Context, tag Tag, data string) error {
	k.log.Debug("message", "tag", tag, "data", data)
	k.tracker.Update(tag)

	u, err := k.repo.LoadUser(ctx, tag)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user %s not found", tag)
	}

	if !utf8.ValidString(data) {
		return k.reply(ctx, u, "ERR_NONUTF8")
	}
	return k.dispatch(ctx, u, data)
}

func (k *Kernel) connect(ctx context.Context, tag Tag, ip string) error {
	k.log.Debug("connect", "tag", tag, "ip", ip)
	k.tracker.Update(tag)

	if err := k.repo.SaveUser(ctx, &User{Tag: tag, IP: ip, Nick: "*"}); err != nil {
		return err
	}
	return k.repo.AddServerUser(ctx, tag)
}

func (k *Kernel) disconnect(ctx context.Context, tag Tag, reason string) error {
	k.log.Debug("disconnect", "tag", tag, "reason", reason)
	k.tracker.Remove(tag)

	u, err := k.repo.LoadUser(ctx, tag)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user %s not found", tag)
	}

	chans, err := k.repo.UserChannels(ctx, tag)
	if err != nil {
		return err
	}
	for _, name := range chans {
		if err := k.dispatch(ctx, u, "PART "+name); err != nil {
			k.log.Error("part on disconnect", "tag", tag, "channel", name, "error", err)
		}
	}

	if u.Registered() {
		if err := k.repo.UnregisterNick(ctx, u); err != nil {
			return err
		}
	}
	if err := k.repo.DeleteUser(ctx, tag); err != nil {
		return err
	}
	return k.repo.RemoveServerUser(ctx, tag)
}

func (k *Kernel) reset(ctx context.Context, frontEnd, reason string) error {
	k.log.Info("reset", "front_end", frontEnd, "reason", reason)

	tags, err := k.repo.ServerUsers(ctx, frontEnd)
	if err != nil {
		return err
	}
	var errs []error
	for _, tag := range tags {
		errs = append(errs, k.disconnect(ctx, tag, reason))
	}
	return errors.Join(errs...)
}

// dispatch parses line as a protocol message from u and runs its command.
// Unknown commands are ignored.
func (k *Kernel) dispatch(ctx context.Context, u *User, line string) error {
	msg := girc.ParseEvent(line)
	if msg == nil {
		k.log.Debug("unparsable message", "tag", u.Tag, "line", line)
		return nil
	}

	cmd := k.commands.Lookup(msg.Command)
	if cmd == nil {
		k.log.Debug("unknown command", "tag", u.Tag, "command", msg.Command)
		return nil
	}
	if k.metrics != nil {
		k.metrics.CommandsTotal.WithLabelValues(cmd.Name).Inc()
	}

	c := &Context{
		Ctx:     ctx,
		Kernel:  k,
		User:    u,
		Command: cmd,
		Params:  msg.Params,
	}
	err := cmd.run(c)

	var re *ReplyError
	if errors.As(err, &re) {
		return k.reply(ctx, u, re.Name, re.Args...)
	}
	return err
}

// reply sends a numeric from the server to u.
func (k *Kernel) reply(ctx context.Context, u *User, name string, args ...interface{}) error {
	return k.out.SendTo(ctx, u.Tag, formatReply(k.opts.ServerName, u.Nick, name, args...))
}

// sendCommand sends ":<source-id> <verb> <target> <args>" to tags.
func (k *Kernel) sendCommand(ctx context.Context, tags []Tag, source *User, verb, target, args string) error {
	line := strings.TrimSpace(fmt.Sprintf(":%s %s %s %s", source.ID, verb, target, args))
	return k.out.Send(ctx, tags, line)
}

// sendChannel sends a command from source to every member of channel,
// optionally skipping source itself.
func (k *Kernel) sendChannel(ctx context.Context, source *User, verb, channel, args string, othersOnly bool) error {
	tags, err := k.repo.ChannelTags(ctx, channel)
	if err != nil {
		return err
	}
	if othersOnly {
		tags = without(tags, source.Tag)
	}
	return k.sendCommand(ctx, tags, source, verb, channel, args)
}

func without(tags []Tag, tag Tag) []Tag {
	out := tags[:0]
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}
