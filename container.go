package grove

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Container defines the interface for the dependency injection container.
// Use [New] to create an instance.
type Container interface {
	// Register adds providers to the container. A token may only be
	// registered once unless the container was created [WithOverride], in
	// which case the last registration wins. Registration is all-or-nothing
	// per call only in the sense that it stops at the first invalid
	// provider; providers before it stay registered.
	Register(providers ...Provider) error

	// Build validates the full dependency graph, detecting missing required
	// providers, circular required dependencies and singletons that would
	// capture request-scoped instances, then instantiates all [Singleton]
	// providers unless [WithLazySingletons] was given. After Build succeeds
	// no further registrations are accepted.
	Build(ctx context.Context) error

	// Resolve returns the instance for token. Singleton instances are
	// cached for the lifetime of the container, transient ones are created
	// on every call and request-scoped ones are cached in the
	// [RequestContext] carried by ctx (see [WithRequestContext]). Prefer the
	// generic [ResolveToken] and [Resolve] helpers.
	Resolve(ctx context.Context, token Token) (any, error)

	// Has reports whether a provider is registered for token.
	Has(token Token) bool

	// NewRequestContext opens a scope for [Request] providers. An empty id
	// is replaced with a random UUID.
	NewRequestContext(id string) *RequestContext

	// Shutdown gracefully closes all singleton instances that implement
	// io.Closer, in reverse creation order (dependents are closed before
	// their dependencies). The context controls the overall deadline; if it
	// expires, remaining closers are skipped and the context error is
	// included in the result.
	//
	// Subsequent calls return [ErrAlreadyShutdown], as do resolutions
	// started after Shutdown.
	Shutdown(ctx context.Context) error
}

type container struct {
	mu sync.Mutex

	registry *registry
	scopes   *scopeManager

	log     *zap.Logger
	metrics *metrics
	lazy    bool

	nextID   uint64
	built    atomic.Bool
	shutdown atomic.Bool
}

// New creates an empty [Container] ready for registration.
func New(opts ...Option) Container {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	m, err := newMetrics(cfg.registerer)
	if err != nil {
		cfg.logger.Warn("metrics disabled", zap.Error(err))
	}

	return &container{
		registry: newRegistry(cfg.allowOverride),
		scopes:   newScopeManager(m),
		log:      cfg.logger,
		metrics:  m,
		lazy:     cfg.lazySingletons,
	}
}

func (c *container) Register(providers ...Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built.Load() {
		return ErrAlreadyBuilt
	}

	for i := range providers {
		p := providers[i]
		if err := p.validate(); err != nil {
			return err
		}

		c.nextID++
		p.id = c.nextID
		p.deps = append([]Dependency(nil), p.deps...)

		overridden, err := c.registry.register(&p)
		if err != nil {
			return err
		}

		if overridden {
			c.log.Debug("provider overridden", zap.String("token", tokenName(p.token)))
		}
		c.log.Debug("provider registered",
			zap.String("token", tokenName(p.token)),
			zap.Stringer("lifetime", p.lifetime),
			zap.Stringer("strategy", p.strategy),
			zap.Stringers("deps", p.deps))
	}
	return nil
}

func (c *container) Has(token Token) bool {
	if validateToken(token) != nil {
		return false
	}
	return c.registry.has(token)
}

func (c *container) NewRequestContext(id string) *RequestContext {
	return newRequestContext(c, id, false)
}

func (c *container) Build(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built.Load() {
		return ErrAlreadyBuilt
	}

	if err := c.validateGraph(); err != nil {
		return err
	}

	c.built.Store(true)

	if !c.lazy {
		if err := c.instantiateSingletons(ctx); err != nil {
			// Singletons created so far stay cached; a later Build reuses them.
			c.built.Store(false)
			return err
		}
	}

	c.log.Debug("container built",
		zap.Int("providers", c.registry.len()),
		zap.Bool("lazy_singletons", c.lazy))
	return nil
}

// instantiateSingletons resolves every singleton in registration order;
// dependencies are created first by the resolver itself.
func (c *container) instantiateSingletons(ctx context.Context) error {
	for _, p := range c.registry.providers() {
		if p.lifetime != Singleton || p.strategy == strategyValue {
			continue
		}
		if _, err := c.resolveTop(ctx, p.token, nil); err != nil {
			return fmt.Errorf("constructing %s: %w", tokenName(p.token), err)
		}
	}
	return nil
}

func (c *container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.built.Load() {
		return ErrNotBuilt
	}

	if !c.shutdown.CompareAndSwap(false, true) {
		return ErrAlreadyShutdown
	}

	closers := c.scopes.singletons.drain(ErrAlreadyShutdown)

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := closers[i].Close(); err != nil {
			c.log.Warn("closing singleton failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
