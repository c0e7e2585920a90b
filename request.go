package grove

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestContext bounds the lifetime of [Request] providers. Each context
// owns a private instance cache; nothing is shared between contexts.
//
// A RequestContext is safe for concurrent use. Close it when the request is
// done to release its instances.
type RequestContext struct {
	id    string
	c     *container
	cache *instanceCache

	mu     sync.RWMutex
	closed bool

	// ephemeral contexts are created by Container.Resolve for a single call
	// and released without running closers.
	ephemeral bool
}

func newRequestContext(c *container, id string, ephemeral bool) *RequestContext {
	if id == "" {
		id = uuid.NewString()
	}
	if !ephemeral {
		c.metrics.requestContextOpened()
	}
	return &RequestContext{
		id:        id,
		c:         c,
		cache:     newInstanceCache(),
		ephemeral: ephemeral,
	}
}

// ID returns the request context's identifier.
func (rc *RequestContext) ID() string {
	return rc.id
}

// Resolve resolves token within this request context.
func (rc *RequestContext) Resolve(ctx context.Context, token Token) (any, error) {
	return rc.c.resolveTop(ctx, token, rc)
}

func (rc *RequestContext) isClosed() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.closed
}

// Close releases the context's instances. Instances implementing io.Closer
// are closed in reverse creation order. The ctx controls the overall
// deadline; if it expires, remaining closers are skipped and the context
// error is included in the result. Close is idempotent.
func (rc *RequestContext) Close(ctx context.Context) error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil
	}
	rc.closed = true
	rc.mu.Unlock()

	closers := rc.cache.drain(fmt.Errorf("%w: %s", ErrRequestContextClosed, rc.id))
	if rc.ephemeral {
		return nil
	}
	rc.c.metrics.requestContextClosed()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := closers[i].Close(); err != nil {
			rc.c.log.Warn("closing request-scoped instance failed",
				zap.String("request", rc.id), zap.Error(err))
			errs = append(errs, err)
		}
	}

	rc.c.log.Debug("request context closed",
		zap.String("request", rc.id), zap.Int("closers", len(closers)))
	return errors.Join(errs...)
}

type requestContextKey struct{}

// WithRequestContext returns a copy of ctx carrying rc. [Container.Resolve]
// resolves request-scoped providers in the carried context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the request context carried by ctx, if any.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
