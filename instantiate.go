package grove

import (
	"context"
	"fmt"
	"reflect"
)

// instantiate produces an instance of p from its resolved dependency values.
// args are positional, with Absent standing in for missing optional
// dependencies. Errors returned by factories and Init are passed through
// unchanged.
func instantiate(ctx context.Context, p *Provider, args []any) (any, error) {
	switch p.strategy {
	case strategyValue:
		return p.value, nil
	case strategyFactory:
		return callFactory(ctx, p, args)
	case strategyClass:
		return construct(ctx, p, args)
	default:
		return nil, fmt.Errorf("%w: %s: unknown strategy", ErrInvalidProvider, tokenName(p.token))
	}
}

func callFactory(ctx context.Context, p *Provider, args []any) (any, error) {
	fnType := p.fn.Type()
	in := make([]reflect.Value, fnType.NumIn())

	offset := p.firstDep()
	if p.takesCtx {
		in[0] = reflect.ValueOf(ctx)
	}

	for i, arg := range args {
		v, err := argValue(fnType.In(i+offset), arg)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d (%s): %w", tokenName(p.token), i, p.deps[i], err)
		}
		in[i+offset] = v
	}

	results := p.fn.Call(in)
	if len(results) == 2 && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}

	return results[0].Interface(), nil
}

func construct(ctx context.Context, p *Provider, args []any) (any, error) {
	ptr := reflect.New(p.class)
	elem := ptr.Elem()
	fields := exportedFields(p.class)

	for i, arg := range args {
		f := elem.Field(fields[i])
		v, err := argValue(f.Type(), arg)
		if err != nil {
			return nil, fmt.Errorf("%s: field %s (%s): %w",
				tokenName(p.token), p.class.Field(fields[i]).Name, p.deps[i], err)
		}
		f.Set(v)
	}

	instance := ptr.Interface()
	if initer, ok := instance.(Initializer); ok {
		if err := initer.Init(ctx); err != nil {
			return nil, err
		}
	}
	return instance, nil
}
