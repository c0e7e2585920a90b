package grove

import "errors"

var (
	// ErrNotBuilt is returned when Resolve is called before Build.
	ErrNotBuilt = errors.New("container not built")

	// ErrAlreadyBuilt is returned when Register or Build is called after the
	// container has already been built.
	ErrAlreadyBuilt = errors.New("container already built")

	// ErrProviderNotFound is returned when a required dependency has no
	// registered provider. The error message names the requiring chain.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrCircularDependency is returned when required dependencies form a
	// cycle. The error message includes the full chain.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrDuplicateProvider is returned when a second provider is registered
	// for a token and the container does not allow overrides.
	ErrDuplicateProvider = errors.New("duplicate provider")

	// ErrInvalidProvider is returned by Register for malformed providers.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidToken is returned when a token cannot be used as a map key.
	ErrInvalidToken = errors.New("invalid token")

	// ErrScopeMismatch is returned by Build when a singleton would capture a
	// request-scoped instance.
	ErrScopeMismatch = errors.New("scope mismatch")

	// ErrTypeMismatch is returned when a resolved value does not fit the
	// parameter, field or type it is delivered to.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrRequestContextClosed is returned when resolving through a request
	// context that has been closed.
	ErrRequestContextClosed = errors.New("request context closed")

	// ErrForeignRequestContext is returned when a request context created by
	// one container is used to resolve from another.
	ErrForeignRequestContext = errors.New("request context belongs to another container")

	// ErrAlreadyShutdown is returned by Shutdown on repeated calls and by
	// Resolve once the container has been shut down.
	ErrAlreadyShutdown = errors.New("container already shut down")
)
