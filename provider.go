package grove

import (
	"context"
	"fmt"
	"reflect"
)

type strategy int

const (
	strategyValue strategy = iota
	strategyFactory
	strategyClass
)

func (s strategy) String() string {
	switch s {
	case strategyValue:
		return "value"
	case strategyFactory:
		return "factory"
	case strategyClass:
		return "class"
	default:
		return "unknown"
	}
}

// Provider is a registration record: the token it produces, its lifetime,
// how it is produced and the ordered dependencies it needs. Build providers
// with [Value], [Factory], [Class] or [Constructor].
type Provider struct {
	token    Token
	lifetime Lifetime
	strategy strategy
	deps     []Dependency

	value any

	fn       reflect.Value
	takesCtx bool

	class reflect.Type

	// inferDeps is set by Constructor; explicit Inject options disable it.
	inferDeps bool

	id  uint64
	err error
}

// ProviderOption configures a provider. [Dependency] values returned by
// [Inject] and [InjectOptional] are options too, appended in order.
type ProviderOption interface {
	applyProvider(*Provider)
}

type providerOptionFunc func(*Provider)

func (f providerOptionFunc) applyProvider(p *Provider) { f(p) }

// WithLifetime sets the [Lifetime] of the provider. The default is
// [Singleton].
func WithLifetime(l Lifetime) ProviderOption {
	return providerOptionFunc(func(p *Provider) {
		p.lifetime = l
	})
}

// Value registers a static value under token. The same value is returned on
// every resolution regardless of lifetime.
func Value(token Token, v any) Provider {
	return Provider{token: token, strategy: strategyValue, value: v}
}

// Factory registers fn under token. fn must have the signature
//
//	func([ctx context.Context,] deps...) T
//	func([ctx context.Context,] deps...) (T, error)
//
// with one parameter per declared dependency, in declaration order. A leading
// context.Context parameter receives the context passed to Resolve.
func Factory(token Token, fn any, opts ...ProviderOption) Provider {
	p := Provider{token: token, strategy: strategyFactory}
	p.apply(opts)
	p.fn, p.takesCtx, p.err = inspectFunc(fn)
	return p
}

// Initializer is implemented by classes that need setup after their fields
// have been assigned.
type Initializer interface {
	Init(ctx context.Context) error
}

// Class registers struct type T under token. Resolution allocates a *T,
// assigns the declared dependencies to T's exported fields in declaration
// order and calls Init when *T implements [Initializer]. The produced
// instance is the *T.
func Class[T any](token Token, opts ...ProviderOption) Provider {
	p := Provider{token: token, strategy: strategyClass}
	p.apply(opts)

	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		p.err = fmt.Errorf("class %s must be a struct", t)
		return p
	}
	if n := len(exportedFields(t)); len(p.deps) > n {
		p.err = fmt.Errorf("class %s has %d exported fields, %d dependencies declared", t, n, len(p.deps))
	}
	p.class = t
	return p
}

// Constructor registers fn under the type of its first result. Dependencies
// are inferred from the parameter types: a parameter of type P depends on
// TypeOf[P](), and a parameter of type Optional[P] optionally depends on
// TypeOf[P](). Inject options override the inferred list.
func Constructor(fn any, opts ...ProviderOption) Provider {
	p := Provider{strategy: strategyFactory, inferDeps: true}
	p.apply(opts)

	p.fn, p.takesCtx, p.err = inspectFunc(fn)
	if p.err != nil {
		return p
	}

	fnType := p.fn.Type()
	p.token = fnType.Out(0)

	if p.inferDeps {
		for i := p.firstDep(); i < fnType.NumIn(); i++ {
			in := fnType.In(i)
			if isOptionalType(in) {
				elem := reflect.Zero(in).Interface().(interface{ elemType() reflect.Type }).elemType()
				p.deps = append(p.deps, InjectOptional(elem))
				continue
			}
			p.deps = append(p.deps, Inject(in))
		}
	}
	return p
}

func (p *Provider) apply(opts []ProviderOption) {
	for _, opt := range opts {
		if d, ok := opt.(Dependency); ok && p.inferDeps {
			p.inferDeps = false
			p.deps = nil
			d.applyProvider(p)
			continue
		}
		opt.applyProvider(p)
	}
}

func (p *Provider) firstDep() int {
	if p.takesCtx {
		return 1
	}
	return 0
}

// Token returns the token the provider produces.
func (p Provider) Token() Token { return p.token }

// Lifetime returns the provider's lifetime.
func (p Provider) Lifetime() Lifetime { return p.lifetime }

// Dependencies returns a copy of the declared dependencies in order.
func (p Provider) Dependencies() []Dependency {
	return append([]Dependency(nil), p.deps...)
}

func (p Provider) String() string {
	return fmt.Sprintf("%s %s (%s)", p.lifetime, tokenName(p.token), p.strategy)
}

// validate reports construction errors and checks the factory arity against
// the declared dependencies.
func (p *Provider) validate() error {
	if p.err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProvider, providerName(p), p.err)
	}
	if err := validateToken(p.token); err != nil {
		return err
	}
	switch p.lifetime {
	case Singleton, Transient, Request:
	default:
		return fmt.Errorf("%w: %s: unknown lifetime %d", ErrInvalidProvider, tokenName(p.token), p.lifetime)
	}
	for _, d := range p.deps {
		if err := validateToken(d.Token); err != nil {
			return fmt.Errorf("%w: %s: dependency: %w", ErrInvalidProvider, tokenName(p.token), err)
		}
	}
	if p.strategy == strategyFactory {
		if want := p.fn.Type().NumIn() - p.firstDep(); want != len(p.deps) {
			return fmt.Errorf("%w: %s: factory takes %d dependencies, %d declared",
				ErrInvalidProvider, tokenName(p.token), want, len(p.deps))
		}
	}
	return nil
}

// providerName names p in validation errors, including constructors that
// failed before their token was known.
func providerName(p *Provider) string {
	if p.token == nil {
		return "constructor"
	}
	return tokenName(p.token)
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

func inspectFunc(fn any) (reflect.Value, bool, error) {
	if fn == nil {
		return reflect.Value{}, false, fmt.Errorf("factory must be a function, got nil")
	}

	val := reflect.ValueOf(fn)
	typ := val.Type()

	if typ.Kind() != reflect.Func {
		return reflect.Value{}, false, fmt.Errorf("factory must be a function, got %T", fn)
	}
	if typ.IsVariadic() {
		return reflect.Value{}, false, fmt.Errorf("factory must not be variadic")
	}
	if typ.NumOut() == 0 || typ.NumOut() > 2 {
		return reflect.Value{}, false, fmt.Errorf("factory must return (T) or (T, error)")
	}
	if typ.NumOut() == 2 && !typ.Out(1).Implements(errorType) {
		return reflect.Value{}, false, fmt.Errorf("second return value must implement error")
	}

	takesCtx := typ.NumIn() > 0 && typ.In(0) == contextType
	return val, takesCtx, nil
}

func exportedFields(t reflect.Type) []int {
	var idx []int
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			idx = append(idx, i)
		}
	}
	return idx
}
