package binder

import (
	"fmt"
	"reflect"
	"sync"
)

// CircularProxy stands in for an instance that is still being constructed.
// Value is handed to the dependent; once the real instance exists the
// proxy is resolved and forwards to it.
type CircularProxy struct {
	Value any

	resolve func(instance any) error
	fail    func(err error)
}

// NewCircularProxy creates a proxy from its parts. resolve receives the
// finished instance; fail receives the construction error.
func NewCircularProxy(value any, resolve func(instance any) error, fail func(err error)) *CircularProxy {
	return &CircularProxy{Value: value, resolve: resolve, fail: fail}
}

// ProxyFactory creates circular proxies for interface types.
type ProxyFactory interface {
	CanProxy(t reflect.Type) bool
	NewProxy(t reflect.Type) (*CircularProxy, error)
}

// Proxies is a ProxyFactory backed by proxy constructors registered with
// RegisterProxy.
type Proxies struct {
	mu        sync.RWMutex
	factories map[reflect.Type]func() *CircularProxy
}

var _ ProxyFactory = (*Proxies)(nil)

// NewProxies creates an empty proxy registry.
func NewProxies() *Proxies {
	return &Proxies{factories: make(map[reflect.Type]func() *CircularProxy)}
}

// CanProxy reports whether a proxy constructor is registered for t.
func (p *Proxies) CanProxy(t reflect.Type) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.factories[t]
	return ok
}

// NewProxy creates a new unresolved proxy for t.
func (p *Proxies) NewProxy(t reflect.Type) (*CircularProxy, error) {
	p.mu.RLock()
	factory, ok := p.factories[t]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no proxy registered for %s", formatType(t))
	}
	return factory(), nil
}

// RegisterProxy registers a proxy constructor for the interface T. build
// receives the delegate the proxy must forward to.
//
//	binder.RegisterProxy(proxies, func(d *binder.Delegate[Greeter]) Greeter {
//	    return greeterProxy{d}
//	})
//
//	func (p greeterProxy) Greet() string { return p.d.Get().Greet() }
func RegisterProxy[T any](p *Proxies, build func(d *Delegate[T]) T) error {
	t := typeOf[T]()
	if t.Kind() != reflect.Interface {
		return fmt.Errorf("proxies can only be registered for interfaces, got %s", formatType(t))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.factories[t] = func() *CircularProxy {
		d := &Delegate[T]{typ: t}
		return &CircularProxy{
			Value: build(d),
			resolve: func(instance any) error {
				typed, ok := instance.(T)
				if !ok {
					return TypeMismatchError{Expected: t, Actual: reflect.TypeOf(instance), Context: "resolving circular proxy"}
				}
				d.set(typed)
				return nil
			},
			fail: d.poison,
		}
	}

	return nil
}

// Delegate is the forwarding target of a circular proxy.
type Delegate[T any] struct {
	typ reflect.Type

	mu       sync.RWMutex
	value    T
	resolved bool
	err      error
}

// Get returns the real instance. It panics with a CircularProxyError if
// the instance is not constructed yet or its construction failed.
func (d *Delegate[T]) Get() T {
	v, err := d.TryGet()
	if err != nil {
		panic(err)
	}
	return v
}

// TryGet is like Get but returns the CircularProxyError instead of panicking.
func (d *Delegate[T]) TryGet() (T, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.resolved {
		var zero T
		return zero, CircularProxyError{Type: d.typ, Cause: d.err}
	}
	return d.value, nil
}

func (d *Delegate[T]) set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = v
	d.resolved = true
}

func (d *Delegate[T]) poison(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}
