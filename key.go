package binder

import (
	"fmt"
	"reflect"
	"runtime"
	"strconv"
)

// Key identifies a bindable slot: a type plus an optional qualifier.
//
// Two keys are equal when both the type and the qualifier are equal, so Key
// can be used directly as a map key. The qualifier must be a comparable
// value; NewKey and KeyOf enforce this.
type Key struct {
	Type      reflect.Type
	Qualifier any
}

// Name is the qualifier produced by Named.
type Name string

// String returns the name in the form used by error messages.
func (n Name) String() string {
	return "@Named(" + strconv.Quote(string(n)) + ")"
}

// Named returns a qualifier that distinguishes bindings of the same type by name.
func Named(name string) Name {
	return Name(name)
}

// NewKey creates a key for t with an optional qualifier.
// It panics if t is nil or the qualifier is not comparable.
func NewKey(t reflect.Type, qualifier ...any) Key {
	if t == nil {
		panic(ErrKeyTypeNil)
	}

	k := Key{Type: t}
	if len(qualifier) > 0 && qualifier[0] != nil {
		q := qualifier[0]
		if !reflect.TypeOf(q).Comparable() {
			panic(fmt.Errorf("%w: %T", ErrQualifierNotComparable, q))
		}
		k.Qualifier = q
	}

	return k
}

// KeyOf creates a key for the type parameter T.
//
//	binder.KeyOf[Database]()
//	binder.KeyOf[string](binder.Named("dsn"))
func KeyOf[T any](qualifier ...any) Key {
	return NewKey(typeOf[T](), qualifier...)
}

// HasQualifier reports whether the key carries a qualifier.
func (k Key) HasQualifier() bool {
	return k.Qualifier != nil
}

// WithoutQualifier returns the key with its qualifier removed.
func (k Key) WithoutQualifier() Key {
	return Key{Type: k.Type}
}

// IsZero reports whether the key has no type.
func (k Key) IsZero() bool {
	return k.Type == nil
}

// String formats the key as Type or Type annotated with the qualifier.
func (k Key) String() string {
	if k.Qualifier == nil {
		return formatType(k.Type)
	}

	return fmt.Sprintf("%s annotated with %v", formatType(k.Type), k.Qualifier)
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Source describes where a declaration was made, usually "file:line".
type Source string

const (
	// UnknownSource is used when no source location is available.
	UnknownSource Source = "[unknown source]"

	// BuiltInSource marks bindings the injector installs itself.
	BuiltInSource Source = "[built-in]"
)

func (s Source) String() string {
	if s == "" {
		return string(UnknownSource)
	}
	return string(s)
}

// callerSource returns the location skip frames above its caller.
func callerSource(skip int) Source {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return UnknownSource
	}

	return Source(file + ":" + strconv.Itoa(line))
}
