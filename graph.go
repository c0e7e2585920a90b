package grove

import "fmt"

type buildState int

const (
	unvisited buildState = iota
	visiting
	visited
)

// validateGraph checks the registered providers before any of them is
// instantiated: every required dependency must be registered, required
// edges must not form a cycle, and singletons must not capture request-bound
// instances.
func (c *container) validateGraph() error {
	states := make(map[Token]buildState)
	for _, p := range c.registry.providers() {
		if err := c.visitRequired(p.token, states, nil); err != nil {
			return err
		}
	}

	bound := make(map[Token]buildState)
	requestBound := make(map[Token]bool)
	for _, p := range c.registry.providers() {
		if _, err := c.requestBound(p.token, bound, requestBound); err != nil {
			return err
		}
	}
	return nil
}

// visitRequired walks required edges depth-first. Optional edges are skipped:
// a cycle that passes through one resolves to Absent at runtime.
func (c *container) visitRequired(t Token, states map[Token]buildState, stack []Token) error {
	switch states[t] {
	case visiting:
		return fmt.Errorf("%w: %s", ErrCircularDependency, chainString(stack, t))
	case visited:
		return nil
	}

	p, _ := c.registry.lookup(t)

	states[t] = visiting
	stack = append(stack, t)

	for _, d := range p.deps {
		if d.Optional {
			continue
		}
		if !c.registry.has(d.Token) {
			return fmt.Errorf("%w: %s (required by %s)",
				ErrProviderNotFound, tokenName(d.Token), chainString(stack[:len(stack)-1], t))
		}
		if err := c.visitRequired(d.Token, states, stack); err != nil {
			return err
		}
	}

	states[t] = visited
	return nil
}

// requestBound reports whether resolving t depends on a request context,
// either because t is request-scoped or because it is a transient that
// depends on a request-bound provider. A singleton that depends on a
// request-bound provider is an error. Optional edges to registered providers
// count; unregistered ones do not.
func (c *container) requestBound(t Token, states map[Token]buildState, memo map[Token]bool) (bool, error) {
	switch states[t] {
	case visited:
		return memo[t], nil
	case visiting:
		// Cycles through optional edges: the back edge adds nothing new.
		return false, nil
	}

	p, ok := c.registry.lookup(t)
	if !ok {
		return false, nil
	}

	states[t] = visiting
	bound := p.lifetime == Request && p.strategy != strategyValue

	for _, d := range p.deps {
		depBound, err := c.requestBound(d.Token, states, memo)
		if err != nil {
			return false, err
		}
		if !depBound {
			continue
		}
		if p.lifetime == Singleton && p.strategy != strategyValue {
			return false, fmt.Errorf("%w: singleton %s depends on request-scoped %s",
				ErrScopeMismatch, tokenName(t), tokenName(d.Token))
		}
		bound = true
	}

	states[t] = visited
	memo[t] = bound
	return bound, nil
}
