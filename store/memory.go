package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lrstanley/girc"
)

// Memory is an in-process Store. It backs tests and single-process
// deployments where the front-ends share the kernel's address space.
//
// Set and hash-key listings are returned sorted so that callers iterating
// them behave deterministically.
type Memory struct {
	mu      sync.Mutex
	strings map[string][]byte
	hashes  map[string]map[string][]byte
	sets    map[string]map[string]struct{}
	lists   map[string][]string
	pushed  chan struct{}
	closed  bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string][]byte),
		hashes:  make(map[string]map[string][]byte),
		sets:    make(map[string]map[string]struct{}),
		lists:   make(map[string][]string),
		pushed:  make(chan struct{}),
	}
}

func (m *Memory) lock() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := m.lock(); err != nil {
		return nil, false, err
	}
	defer m.mu.Unlock()

	v, ok := m.strings[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	m.dropKey(key)
	m.strings[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	for _, key := range keys {
		m.dropKey(key)
	}
	return nil
}

// dropKey removes key from every keyspace. Callers hold m.mu.
func (m *Memory) dropKey(key string) {
	delete(m.strings, key)
	delete(m.hashes, key)
	delete(m.sets, key)
	delete(m.lists, key)
}

// Keys matches pattern with Redis KEYS "*" wildcards, which also cross "/"
// in opaque tags. Character classes are not supported.
func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	var keys []string
	collect := func(key string) {
		if girc.Glob(key, pattern) {
			keys = append(keys, key)
		}
	}
	for k := range m.strings {
		collect(k)
	}
	for k := range m.hashes {
		collect(k)
	}
	for k := range m.sets {
		collect(k)
	}
	for k := range m.lists {
		collect(k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) HGet(_ context.Context, key, field string) ([]byte, bool, error) {
	if err := m.lock(); err != nil {
		return nil, false, err
	}
	defer m.mu.Unlock()

	v, ok := m.hashes[key][field]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) HSet(_ context.Context, key, field string, value []byte) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		m.hashes[key] = h
	}
	h[field] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	h := m.hashes[key]
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(m.hashes, key)
	}
	return nil
}

func (m *Memory) HExists(_ context.Context, key, field string) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	_, ok := m.hashes[key][field]
	return ok, nil
}

func (m *Memory) HLen(_ context.Context, key string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	return int64(len(m.hashes[key])), nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	out := make(map[string][]byte, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	s := m.sets[key]
	for _, member := range members {
		delete(s, member)
	}
	if len(s) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *Memory) SIsMember(_ context.Context, key, member string) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	_, ok := m.sets[key][member]
	return ok, nil
}

func (m *Memory) RPush(_ context.Context, key string, values ...string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	m.lists[key] = append(m.lists[key], values...)

	// wake every blocked BLPop; each re-checks its own key
	close(m.pushed)
	m.pushed = make(chan struct{})
	return nil
}

func (m *Memory) BLPop(ctx context.Context, timeout time.Duration, key string) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if err := m.lock(); err != nil {
			return "", false, err
		}
		if l := m.lists[key]; len(l) > 0 {
			v := l[0]
			if len(l) == 1 {
				delete(m.lists, key)
			} else {
				m.lists[key] = l[1:]
			}
			m.mu.Unlock()
			return v, true, nil
		}
		pushed := m.pushed
		m.mu.Unlock()

		select {
		case <-pushed:
		case <-timer.C:
			return "", false, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

func (m *Memory) LLen(_ context.Context, key string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	return int64(len(m.lists[key])), nil
}

func (m *Memory) Ping(context.Context) error {
	if err := m.lock(); err != nil {
		return err
	}
	m.mu.Unlock()
	return nil
}

// Close releases blocked poppers; every later call returns ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.pushed)
	}
	return nil
}
