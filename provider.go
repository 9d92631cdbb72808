package binder

import (
	"fmt"
	"reflect"
	"sync"
)

// Provider produces instances on demand.
//
// Providers returned by an injector are safe for concurrent use; each call
// to Get is an independent provisioning.
type Provider interface {
	Get() (any, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (any, error)

// Get calls f.
func (f ProviderFunc) Get() (any, error) {
	return f()
}

// ProviderLookup is a provider requested from a Binder during configuration.
// It becomes usable once the injector has been created.
type ProviderLookup struct {
	source Source
	key    Key

	mu       sync.RWMutex
	delegate Provider
}

// Key returns the key the lookup provides.
func (l *ProviderLookup) Key() Key { return l.key }

// Source returns where the lookup was requested.
func (l *ProviderLookup) Source() Source { return l.source }

// Get provisions the key. It fails with ErrLookupNotInitialized while the
// injector is still being created.
func (l *ProviderLookup) Get() (any, error) {
	l.mu.RLock()
	delegate := l.delegate
	l.mu.RUnlock()

	if delegate == nil {
		return nil, fmt.Errorf("%w: provider for %s", ErrLookupNotInitialized, l.key)
	}
	return delegate.Get()
}

func (l *ProviderLookup) initialize(p Provider) {
	l.mu.Lock()
	l.delegate = p
	l.mu.Unlock()
}

// MembersInjectorLookup is a members injector requested from a Binder
// during configuration.
type MembersInjectorLookup struct {
	source Source
	typ    reflect.Type

	mu       sync.RWMutex
	delegate *MembersInjector
}

// Type returns the type whose members are injected.
func (l *MembersInjectorLookup) Type() reflect.Type { return l.typ }

// Source returns where the lookup was requested.
func (l *MembersInjectorLookup) Source() Source { return l.source }

// InjectMembers injects instance. It fails with ErrLookupNotInitialized
// while the injector is still being created.
func (l *MembersInjectorLookup) InjectMembers(instance any) error {
	l.mu.RLock()
	delegate := l.delegate
	l.mu.RUnlock()

	if delegate == nil {
		return fmt.Errorf("%w: members injector for %s", ErrLookupNotInitialized, formatType(l.typ))
	}
	return delegate.InjectMembers(instance)
}

func (l *MembersInjectorLookup) initialize(m *MembersInjector) {
	l.mu.Lock()
	l.delegate = m
	l.mu.Unlock()
}

// providerValue returns a function value of type fnType (func() T or
// func() (T, error)) that provisions b on each call.
func providerValue(fnType reflect.Type, b *Binding) reflect.Value {
	elem := fnType.Out(0)
	withErr := fnType.NumOut() == 2

	return reflect.MakeFunc(fnType, func([]reflect.Value) []reflect.Value {
		v, err := b.owner.provisionBinding(b)
		if err != nil {
			if withErr {
				return []reflect.Value{reflect.Zero(elem), reflect.ValueOf(&err).Elem()}
			}
			panic(err)
		}

		out := reflect.Zero(elem)
		if v != nil {
			out = reflect.ValueOf(v)
		}
		if withErr {
			return []reflect.Value{out, reflect.Zero(errType)}
		}
		return []reflect.Value{out}
	})
}

// isProviderFuncType reports whether t is func() T or func() (T, error).
func isProviderFuncType(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 0 || t.IsVariadic() {
		return false
	}

	switch t.NumOut() {
	case 1:
		return t.Out(0) != errType
	case 2:
		return t.Out(0) != errType && t.Out(1) == errType
	default:
		return false
	}
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
