// Package store provides the shared state store the kernel persists its
// entities in. The store doubles as the transport between the kernel and its
// front-ends: both the inbound event queue and the per-front-end outbound
// queues are lists inside it.
//
// Every single operation is atomic at the store level. Nothing here offers
// multi-key transactions; callers order their writes instead.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store: closed")

// Store is the key/value, hash, set and list surface the kernel needs.
//
// Reads of missing keys are not errors: Get and HGet report found=false,
// collection reads return empty results.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	HGet(ctx context.Context, key, field string) (value []byte, found bool, err error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HDel(ctx context.Context, key string, fields ...string) error
	HExists(ctx context.Context, key, field string) (bool, error)
	HLen(ctx context.Context, key string) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	RPush(ctx context.Context, key string, values ...string) error
	// BLPop pops the head of the list at key, waiting up to timeout for an
	// element to arrive. found is false when the wait expired. A zero
	// timeout does not wait at all.
	BLPop(ctx context.Context, timeout time.Duration, key string) (value string, found bool, err error)
	LLen(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
