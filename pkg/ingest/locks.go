package ingest

import (
	"context"
	"sync"
)

// TenantLocks serializes work per tenant. Different tenants never wait on
// each other, and a tenant's entry is dropped once nobody holds or waits for
// it.
type TenantLocks struct {
	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	sem  chan struct{}
	refs int
}

// NewTenantLocks returns an empty lock table.
func NewTenantLocks() *TenantLocks {
	return &TenantLocks{locks: make(map[string]*tenantLock)}
}

// Lock blocks until tenantID is free or ctx is done. On success the returned
// function releases the lock; it must be called exactly once.
func (t *TenantLocks) Lock(ctx context.Context, tenantID string) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[tenantID]
	if !ok {
		l = &tenantLock{sem: make(chan struct{}, 1)}
		t.locks[tenantID] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			t.release(tenantID, l)
		}, nil
	case <-ctx.Done():
		t.release(tenantID, l)
		return nil, ctx.Err()
	}
}

func (t *TenantLocks) release(tenantID string, l *tenantLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, tenantID)
	}
}

// Len reports how many tenants currently have an entry.
func (t *TenantLocks) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
