package irc

import "time"

type liveness struct {
	last     time.Time
	pingSent bool
}

type deadline struct {
	tag Tag
	at  time.Time
}

// Tracker decides when an idle connection gets a PING and when an
// unanswered PING ends the connection.
//
// The queue only schedules checks. It may hold several entries per tag, or
// entries for tags that were refreshed or removed since; the entries map is
// authoritative.
type Tracker struct {
	timeout time.Duration
	now     func() time.Time

	entries map[Tag]*liveness
	queue   []deadline
	head    int
}

// NewTracker returns a tracker with threshold timeout. now defaults to
// time.Now.
func NewTracker(timeout time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		timeout: timeout,
		now:     now,
		entries: make(map[Tag]*liveness),
	}
}

// Update marks activity on tag and resets it to idle.
func (t *Tracker) Update(tag Tag) {
	now := t.now()
	t.entries[tag] = &liveness{last: now}
	t.push(tag, now)
}

// Remove stops tracking tag.
func (t *Tracker) Remove(tag Tag) {
	delete(t.entries, tag)
}

// Len is the number of tracked connections.
func (t *Tracker) Len() int {
	return len(t.entries)
}

// Check pops every queue entry at least one threshold old and returns the
// tags due a PING and the tags whose PING went unanswered. Expired tags are
// no longer tracked after Check returns.
func (t *Tracker) Check() (ping, expired []Tag) {
	now := t.now()

	for t.head < len(t.queue) {
		d := t.queue[t.head]
		if now.Sub(d.at) < t.timeout {
			break
		}
		t.pop()

		e, ok := t.entries[d.tag]
		if !ok {
			continue
		}

		idle := now.Sub(e.last)
		switch {
		case idle >= 2*t.timeout && e.pingSent:
			delete(t.entries, d.tag)
			expired = append(expired, d.tag)
		case idle >= t.timeout && !e.pingSent:
			e.pingSent = true
			t.push(d.tag, now)
			ping = append(ping, d.tag)
		}
	}
	return ping, expired
}

func (t *Tracker) push(tag Tag, at time.Time) {
	t.queue = append(t.queue, deadline{tag: tag, at: at})
}

func (t *Tracker) pop() {
	t.queue[t.head] = deadline{}
	t.head++

	// reclaim the consumed prefix once it dominates the slice
	if t.head > 64 && t.head*2 > len(t.queue) {
		n := copy(t.queue, t.queue[t.head:])
		t.queue = t.queue[:n]
		t.head = 0
	}
}
