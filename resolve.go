package grove

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Resolver is implemented by [Container] and [*RequestContext].
type Resolver interface {
	Resolve(ctx context.Context, token Token) (any, error)
}

// ---------------------------------------------------------------------------
// Container methods
// ---------------------------------------------------------------------------

func (c *container) Resolve(ctx context.Context, token Token) (any, error) {
	rc, _ := RequestContextFrom(ctx)
	return c.resolveTop(ctx, token, rc)
}

// ---------------------------------------------------------------------------
// Generic helpers
// ---------------------------------------------------------------------------

// ResolveToken resolves token and asserts the instance to T:
//
//	repo, err := grove.ResolveToken[*Repo](ctx, c, RepoToken)
func ResolveToken[T any](ctx context.Context, r Resolver, token Token) (T, error) {
	var zero T

	v, err := r.Resolve(ctx, token)
	if err != nil {
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		if v == nil {
			return zero, nil
		}
		return zero, fmt.Errorf("%w: %s resolved to %T, not %s",
			ErrTypeMismatch, tokenName(token), v, TypeOf[T]())
	}

	return out, nil
}

// Resolve resolves the provider registered under the type token of T, as
// registered by [Constructor] or under [TypeOf]:
//
//	db, err := grove.Resolve[*Database](ctx, c)
func Resolve[T any](ctx context.Context, r Resolver) (T, error) {
	return ResolveToken[T](ctx, r, TypeOf[T]())
}

// ---------------------------------------------------------------------------
// Internal
// ---------------------------------------------------------------------------

// resolution is the state of one top-level resolve call.
type resolution struct {
	rc *RequestContext

	// path holds the tokens currently being resolved, outermost first.
	path   []Token
	onPath map[Token]bool

	held heldLocks
}

type resolutionKey struct{}

// child returns the state for a resolve call made by a factory while r is in
// progress. It shares r's request context and creation locks and continues
// its path, so a factory resolving its own token is reported as a cycle.
func (r *resolution) child() *resolution {
	onPath := make(map[Token]bool, len(r.onPath))
	for t := range r.onPath {
		onPath[t] = true
	}
	return &resolution{
		rc:     r.rc,
		path:   append([]Token(nil), r.path...),
		onPath: onPath,
		held:   r.held.clone(),
	}
}

func (r *resolution) push(t Token) {
	r.path = append(r.path, t)
	r.onPath[t] = true
}

func (r *resolution) pop() {
	last := r.path[len(r.path)-1]
	r.path = r.path[:len(r.path)-1]
	delete(r.onPath, last)
}

// resolveTop runs one top-level resolution. With a nil rc, request-scoped
// providers get a private context that is released when the call returns.
func (c *container) resolveTop(ctx context.Context, token Token, rc *RequestContext) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !c.built.Load() {
		return nil, ErrNotBuilt
	}
	if c.shutdown.Load() {
		return nil, ErrAlreadyShutdown
	}
	if err := validateToken(token); err != nil {
		return nil, err
	}

	parent, _ := ctx.Value(resolutionKey{}).(*resolution)
	if parent != nil && parent.rc.c != c {
		parent = nil
	}
	if rc == nil && parent != nil {
		rc = parent.rc
	}

	if rc == nil {
		rc = newRequestContext(c, "", true)
		defer rc.Close(ctx)
	} else if rc.c != c {
		return nil, ErrForeignRequestContext
	}
	if rc.isClosed() {
		return nil, fmt.Errorf("%w: %s", ErrRequestContextClosed, rc.id)
	}
	if !rc.ephemeral {
		ctx = WithRequestContext(ctx, rc)
	}

	var res *resolution
	if parent != nil && parent.rc == rc {
		res = parent.child()
	} else {
		res = &resolution{rc: rc, onPath: make(map[Token]bool), held: make(heldLocks)}
	}

	v, err := c.resolve(ctx, res, token)
	if err != nil {
		c.metrics.resolveFailed(err)
		return nil, err
	}
	return v, nil
}

func (c *container) resolve(ctx context.Context, res *resolution, token Token) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, ok := c.registry.lookup(token)
	if !ok {
		if len(res.path) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, tokenName(token))
		}
		return nil, fmt.Errorf("%w: %s (required by %s)",
			ErrProviderNotFound, tokenName(token), chainString(res.path[:len(res.path)-1], res.path[len(res.path)-1]))
	}

	if res.onPath[token] {
		return nil, fmt.Errorf("%w: %s", ErrCircularDependency, chainString(res.path, token))
	}

	if p.strategy == strategyValue {
		return p.value, nil
	}

	return c.scopes.getOrCreate(ctx, p, res.rc, res.held, func() (any, error) {
		res.push(token)
		defer res.pop()

		args, err := c.resolveDeps(ctx, res, p)
		if err != nil {
			return nil, err
		}

		v, err := instantiate(context.WithValue(ctx, resolutionKey{}, res), p, args)
		if err != nil {
			return nil, err
		}
		c.log.Debug("instance created",
			zap.String("token", tokenName(token)),
			zap.Stringer("lifetime", p.lifetime),
			zap.String("request", res.rc.id))
		return v, nil
	})
}

// resolveDeps resolves p's dependencies in declaration order. An optional
// dependency that is unregistered or fails to resolve yields Absent; only
// cancellation of ctx itself is passed on.
func (c *container) resolveDeps(ctx context.Context, res *resolution, p *Provider) ([]any, error) {
	args := make([]any, len(p.deps))

	for i, d := range p.deps {
		if d.Optional && !c.registry.has(d.Token) {
			c.log.Debug("optional dependency absent",
				zap.String("token", tokenName(p.token)),
				zap.String("dependency", tokenName(d.Token)))
			args[i] = Absent
			continue
		}

		v, err := c.resolve(ctx, res, d.Token)
		if err != nil {
			if d.Optional && ctx.Err() == nil {
				c.log.Debug("optional dependency failed",
					zap.String("token", tokenName(p.token)),
					zap.String("dependency", tokenName(d.Token)),
					zap.Error(err))
				args[i] = Absent
				continue
			}
			return nil, err
		}
		args[i] = v
	}

	return args, nil
}
