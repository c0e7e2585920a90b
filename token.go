package grove

import (
	"fmt"
	"reflect"
	"strings"
)

// Token identifies a bindable dependency. Any comparable value works:
// strings, [*Symbol] markers, or types obtained with [TypeOf].
type Token = any

// Symbol is a unique marker token. Two symbols are only equal if they are
// the same pointer, regardless of their names.
type Symbol struct {
	name string
}

// NewSymbol returns a new unique token. The name is used in error messages
// and logs only.
func NewSymbol(name string) *Symbol {
	return &Symbol{name: name}
}

// String returns the symbol's name.
func (s *Symbol) String() string {
	return s.name
}

// TypeOf returns the token for type T. It is the key used by [Constructor]
// providers and the [Resolve] helper.
func TypeOf[T any]() Token {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func validateToken(token Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil", ErrInvalidToken)
	}
	if !reflect.TypeOf(token).Comparable() {
		return fmt.Errorf("%w: %T is not comparable", ErrInvalidToken, token)
	}
	return nil
}

// tokenName renders a token for logs and error messages.
func tokenName(token Token) string {
	switch t := token.(type) {
	case string:
		return t
	case reflect.Type:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func chainString(path []Token, last Token) string {
	chain := make([]string, 0, len(path)+1)
	for _, t := range path {
		chain = append(chain, tokenName(t))
	}
	chain = append(chain, tokenName(last))
	return strings.Join(chain, " -> ")
}
