package grove

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type config struct {
	logger         *zap.Logger
	allowOverride  bool
	lazySingletons bool
	registerer     prometheus.Registerer
}

// Option configures a container during [New].
type Option func(*config)

// WithLogger sets the logger used for debug events and teardown warnings.
// The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOverride lets a later registration for a token replace the earlier
// one instead of failing with [ErrDuplicateProvider].
func WithOverride() Option {
	return func(c *config) {
		c.allowOverride = true
	}
}

// WithLazySingletons defers singleton instantiation from Build to the first
// resolution.
func WithLazySingletons() Option {
	return func(c *config) {
		c.lazySingletons = true
	}
}

// WithMetrics registers the container's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}
