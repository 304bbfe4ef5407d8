package app

import (
	"context"
	"sync"
	"time"

	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
)

// ItemLocks serializes work on a single item inside this process.
// Entries are reference counted and removed once nobody holds or waits for them.
type ItemLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*itemLock
}

type itemLock struct {
	sem  chan struct{}
	refs int
}

func NewItemLocks() *ItemLocks {
	return &ItemLocks{locks: make(map[uuid.UUID]*itemLock)}
}

// Acquire waits at most timeout for the item's lock. The returned func releases it
// and must be called exactly once.
func (l *ItemLocks) Acquire(ctx context.Context, itemID uuid.UUID, timeout time.Duration) (func(), error) {
	entry := l.ref(itemID)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case entry.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.sem
				l.unref(itemID)
			})
		}, nil
	case <-waitCtx.Done():
		l.unref(itemID)
		return nil, shared.ErrLockTimeout
	}
}

// Len reports how many items currently have a live lock entry
func (l *ItemLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *ItemLocks) ref(itemID uuid.UUID) *itemLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[itemID]
	if !ok {
		entry = &itemLock{sem: make(chan struct{}, 1)}
		l.locks[itemID] = entry
	}
	entry.refs++
	return entry
}

func (l *ItemLocks) unref(itemID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[itemID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, itemID)
	}
}
