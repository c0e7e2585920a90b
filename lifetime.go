package grove

import (
	"fmt"
	"strings"
)

// Lifetime controls how many instances of a provider the container creates.
type Lifetime int

const (
	// Singleton is the default lifetime. The provider is instantiated once
	// and the instance is shared for the lifetime of the container.
	Singleton Lifetime = iota

	// Transient means a new instance is constructed on every resolution.
	// Transient instances are never cached.
	Transient

	// Request means one instance per [RequestContext]. The instance is
	// discarded when the request context is closed.
	Request
)

// String returns the human-readable name of the lifetime.
func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Transient:
		return "transient"
	case Request:
		return "request"
	default:
		return "unknown"
	}
}

// ParseLifetime parses a lifetime name as printed by [Lifetime.String].
// "default" and "scoped" are accepted as aliases of singleton and request.
func ParseLifetime(s string) (Lifetime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "singleton", "default":
		return Singleton, nil
	case "transient":
		return Transient, nil
	case "request", "scoped":
		return Request, nil
	default:
		return 0, fmt.Errorf("unknown lifetime %q", s)
	}
}
