// Package keylock serialises renders of the same storage key. Without a lock
// concurrent renders of one variation race and the last writer wins.
package keylock

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"stdimage/internal/models"
)

// Locker acquires an exclusive lock on key. The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// None performs no locking.
type None struct{}

func (None) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// Local serialises renders within one process.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(key, e, true) }) }, nil
}

func (l *Local) release(key string, e *entry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// New builds the locker selected by the render.lock setting.
func New(kind string, client *redis.Client) (Locker, error) {
	switch kind {
	case "", "none":
		return None{}, nil
	case "local":
		return NewLocal(), nil
	case "redis":
		if client == nil {
			return nil, models.NewConfigError("keylock: redis lock requires a redis client")
		}
		return NewRedis(client), nil
	}
	return nil, models.NewConfigError(fmt.Sprintf("keylock: unknown lock %q", kind))
}
