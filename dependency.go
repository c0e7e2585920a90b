package grove

import (
	"fmt"
	"reflect"
)

// Dependency declares one positional argument of a provider: the token to
// resolve and whether it may be missing.
type Dependency struct {
	Token    Token
	Optional bool
}

// Inject declares a required dependency. Resolution fails with
// [ErrProviderNotFound] if nothing is registered under token.
func Inject(token Token) Dependency {
	return Dependency{Token: token}
}

// InjectOptional declares an optional dependency. When nothing is registered
// under token the provider receives [Absent] in its place.
func InjectOptional(token Token) Dependency {
	return Dependency{Token: token, Optional: true}
}

func (d Dependency) applyProvider(p *Provider) {
	p.deps = append(p.deps, d)
}

func (d Dependency) String() string {
	if d.Optional {
		return tokenName(d.Token) + "?"
	}
	return tokenName(d.Token)
}

// AbsentMarker is the type of [Absent].
type AbsentMarker struct{}

// Absent is delivered in place of an optional dependency that has no
// provider.
var Absent AbsentMarker

// String implements fmt.Stringer.
func (AbsentMarker) String() string { return "<absent>" }

// MarshalJSON renders an absent dependency as null.
func (AbsentMarker) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IsAbsent reports whether v is the [Absent] marker.
func IsAbsent(v any) bool {
	_, ok := v.(AbsentMarker)
	return ok
}

var absentType = reflect.TypeOf(Absent)

// Optional wraps an optional dependency for parameters and fields that want
// a typed value instead of [Absent].
//
//	func NewMailer(tpl grove.Optional[*Templates]) *Mailer {
//		if t, ok := tpl.Get(); ok { ... }
//	}
type Optional[T any] struct {
	value   T
	present bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

// Get returns the value and whether it was provided.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present
}

// Present reports whether the dependency was provided.
func (o Optional[T]) Present() bool {
	return o.present
}

// OrElse returns the value, or def when the dependency was absent.
func (o Optional[T]) OrElse(def T) T {
	if o.present {
		return o.value
	}
	return def
}

func (o Optional[T]) String() string {
	if !o.present {
		return Absent.String()
	}
	return fmt.Sprint(o.value)
}

func (o *Optional[T]) fill(v any) error {
	if v == nil {
		var zero T
		o.value, o.present = zero, true
		return nil
	}
	t, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, v, o.elemType())
	}
	o.value = t
	o.present = true
	return nil
}

func (Optional[T]) elemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// optionalSlot is implemented by *Optional[T].
type optionalSlot interface {
	fill(v any) error
	elemType() reflect.Type
}

var optionalSlotType = reflect.TypeOf((*optionalSlot)(nil)).Elem()

func isOptionalType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(optionalSlotType)
}

// argValue converts a resolved dependency into a value of type t.
func argValue(t reflect.Type, v any) (reflect.Value, error) {
	if isOptionalType(t) {
		slot := reflect.New(t)
		if !IsAbsent(v) {
			if err := slot.Interface().(optionalSlot).fill(v); err != nil {
				return reflect.Value{}, err
			}
		}
		return slot.Elem(), nil
	}

	if IsAbsent(v) {
		if absentType.AssignableTo(t) {
			return reflect.ValueOf(v), nil
		}
		return reflect.Zero(t), nil
	}

	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil is not %s", ErrTypeMismatch, t)
	}

	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%w: %s is not assignable to %s", ErrTypeMismatch, rv.Type(), t)
	}
	return rv, nil
}
