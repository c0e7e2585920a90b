// Package grovehttp opens a grove request context for every inbound HTTP
// request, so request-scoped providers live exactly as long as the request.
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID)
//	r.Use(grovehttp.Middleware(c))
//
//	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
//		user, err := grove.ResolveToken[*User](r.Context(), c, CurrentUser)
//		...
//	})
package grovehttp

import (
	"context"
	"net/http"

	"github.com/ARTM2000/grove"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type config struct {
	logger *zap.Logger
}

// Option configures the middleware.
type Option func(*config)

// WithLogger sets the logger that reports request contexts failing to close.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Middleware returns a handler wrapper that opens a request context before
// the next handler runs and closes it once the handler returns. The context
// reuses the id set by chi's middleware.RequestID when present.
func Middleware(c grove.Container, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := c.NewRequestContext(middleware.GetReqID(r.Context()))
			defer func() {
				// The request context may already be canceled; closers still run.
				if err := rc.Close(context.WithoutCancel(r.Context())); err != nil {
					cfg.logger.Error("closing request context",
						zap.String("request", rc.ID()), zap.Error(err))
				}
			}()

			next.ServeHTTP(w, r.WithContext(grove.WithRequestContext(r.Context(), rc)))
		})
	}
}

// FromRequest returns the request context opened by [Middleware].
func FromRequest(r *http.Request) (*grove.RequestContext, bool) {
	return grove.RequestContextFrom(r.Context())
}
