package grove

import (
	"fmt"
	"sync"
)

// registry maps tokens to their providers. Registration is serialised by the
// container; the lock here keeps lookups from callers such as Has safe
// while a registration is in progress.
type registry struct {
	mu      sync.RWMutex
	entries map[Token][]*Provider

	// order preserves the first registration of each token.
	order []Token

	allowOverride bool
}

func newRegistry(allowOverride bool) *registry {
	return &registry{
		entries:       make(map[Token][]*Provider),
		allowOverride: allowOverride,
	}
}

// register adds p. Without overrides a second provider for the same token is
// rejected; with overrides the latest registration becomes active and the
// earlier ones stay listed in registration order.
func (r *registry) register(p *Provider) (overridden bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[p.token]
	if ok && !r.allowOverride {
		return false, fmt.Errorf("%w: %s", ErrDuplicateProvider, tokenName(p.token))
	}
	if !ok {
		r.order = append(r.order, p.token)
	}
	r.entries[p.token] = append(existing, p)
	return ok, nil
}

// lookup returns the active provider for token.
func (r *registry) lookup(token Token) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.entries[token]
	if len(all) == 0 {
		return nil, false
	}
	return all[len(all)-1], true
}

func (r *registry) has(token Token) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[token]) > 0
}

// all returns every registration for token, oldest first.
func (r *registry) all(token Token) []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Provider(nil), r.entries[token]...)
}

// providers returns the active provider of each token in registration order.
func (r *registry) providers() []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Provider, 0, len(r.order))
	for _, t := range r.order {
		all := r.entries[t]
		out = append(out, all[len(all)-1])
	}
	return out
}

// len returns the number of registered tokens.
func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
