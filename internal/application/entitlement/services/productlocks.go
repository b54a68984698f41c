package services

import (
	"context"
	"sync"
)

// productLocks serializes ledger writes per product identifier while letting
// different products proceed concurrently.
type productLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newProductLocks() *productLocks {
	return &productLocks{slots: make(map[string]chan struct{})}
}

func (l *productLocks) slot(productID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[productID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[productID] = ch
	}
	return ch
}

func (l *productLocks) acquire(ctx context.Context, productID string) error {
	select {
	case l.slot(productID) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *productLocks) release(productID string) {
	<-l.slot(productID)
}
