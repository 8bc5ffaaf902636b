// Package lock serializes materialization runs of the same account.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when another run already holds the key.
var ErrLocked = errors.New("lock is held by another run")

// Locker acquires a non-blocking exclusive lock on a key. The returned
// function releases it.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// LocalLocker locks keys within a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
