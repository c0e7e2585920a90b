package grove

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// heldLocks records the scope creation locks owned by one resolution.
type heldLocks map[*instanceCache]bool

func (h heldLocks) clone() heldLocks {
	out := make(heldLocks, len(h))
	for ic := range h {
		out[ic] = true
	}
	return out
}

// instanceCache stores the instances of one scope, keyed by provider id.
//
// Creation within a scope is serialised by a single creation lock. The
// resolution that holds it builds the whole subtree below the instance,
// including nested instances of the same scope, without taking it again, so
// a create function runs at most once per provider and scope.
type instanceCache struct {
	mu    sync.RWMutex
	items map[uint64]any

	// closers records io.Closer instances in creation order.
	closers []io.Closer

	// err is set by drain; stores after that fail with it.
	err error

	sem *semaphore.Weighted
}

func newInstanceCache() *instanceCache {
	return &instanceCache{
		items: make(map[uint64]any),
		sem:   semaphore.NewWeighted(1),
	}
}

func (ic *instanceCache) get(id uint64) (any, bool) {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	v, ok := ic.items[id]
	return v, ok
}

// store caches v under id unless the cache was drained. An instance already
// stored under the same id wins; kept reports whether v was stored.
func (ic *instanceCache) store(id uint64, v any) (cached any, kept bool, err error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if ic.err != nil {
		return nil, false, ic.err
	}
	if existing, ok := ic.items[id]; ok {
		return existing, false, nil
	}

	ic.items[id] = v
	if closer, ok := v.(io.Closer); ok {
		ic.closers = append(ic.closers, closer)
	}
	return v, true, nil
}

// getOrCreate returns the instance cached under id, calling create when
// there is none. Callers waiting for the creation lock give up when ctx is
// done; a failed create is not cached, so the next holder tries again with
// its own context.
func (ic *instanceCache) getOrCreate(ctx context.Context, id uint64, held heldLocks, create func() (any, error)) (any, error) {
	if v, ok := ic.get(id); ok {
		return v, nil
	}

	if !held[ic] {
		if err := ic.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		held[ic] = true
		defer func() {
			delete(held, ic)
			ic.sem.Release(1)
		}()

		if v, ok := ic.get(id); ok {
			return v, nil
		}
	}

	v, err := create()
	if err != nil {
		return nil, err
	}

	cached, kept, err := ic.store(id, v)
	if !kept {
		// The instance was never handed out; release it here.
		if closer, ok := v.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// drain empties the cache, refuses later stores with err and returns the
// recorded closers in creation order.
func (ic *instanceCache) drain(err error) []io.Closer {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	closers := ic.closers
	ic.items = make(map[uint64]any)
	ic.closers = nil
	ic.err = err
	return closers
}

// scopeManager decides where an instance lives according to its provider's
// lifetime: the container-wide singleton cache, nowhere (transient), or the
// cache of the current request context.
type scopeManager struct {
	singletons *instanceCache
	metrics    *metrics
}

func newScopeManager(m *metrics) *scopeManager {
	return &scopeManager{
		singletons: newInstanceCache(),
		metrics:    m,
	}
}

func (s *scopeManager) cacheFor(p *Provider, rc *RequestContext) *instanceCache {
	switch p.lifetime {
	case Singleton:
		return s.singletons
	case Request:
		return rc.cache
	default:
		return nil
	}
}

// getOrCreate returns the instance of p for its scope, calling create at most
// once per scope for singleton and request providers. create resolves the
// provider's dependencies as well as instantiating it.
func (s *scopeManager) getOrCreate(ctx context.Context, p *Provider, rc *RequestContext, held heldLocks, create func() (any, error)) (any, error) {
	counted := func() (any, error) {
		v, err := create()
		if err == nil {
			s.metrics.instanceCreated(p.lifetime)
		}
		return v, err
	}

	ic := s.cacheFor(p, rc)
	if ic == nil {
		return counted()
	}
	return ic.getOrCreate(ctx, p.id, held, counted)
}
