package binder

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Scope controls how instances are reused.
//
// Scope is called once for each binding in the scope, with a provider that
// creates a fresh instance; the returned provider decides whether to call
// it or to hand out an instance it already has. Implementations must be
// safe for concurrent use.
type Scope interface {
	Scope(key Key, unscoped Provider) Provider
	String() string
}

var (
	// Singleton creates one instance per injector. Concurrent first requests
	// block until the instance exists; a failed construction is retried on
	// the next request.
	Singleton Scope = singletonScope{}

	// NoScope creates a new instance for every request.
	NoScope Scope = noScope{}
)

var errNilScopedProvider = errors.New("scope returned a nil provider")

type singletonScope struct{}

func (singletonScope) String() string { return "Singleton" }

// Scope returns a provider that caches the first successful result of unscoped.
// Bindings in this scope are handled by the injector directly; this form
// serves scopes composed from Singleton.
func (singletonScope) Scope(_ Key, unscoped Provider) Provider {
	var (
		mu    sync.Mutex
		done  bool
		value any
	)
	return ProviderFunc(func() (any, error) {
		mu.Lock()
		defer mu.Unlock()

		if done {
			return value, nil
		}
		v, err := unscoped.Get()
		if err != nil {
			return nil, err
		}
		value, done = v, true
		return value, nil
	})
}

type noScope struct{}

func (noScope) String() string { return "NoScope" }

func (noScope) Scope(_ Key, unscoped Provider) Provider { return unscoped }

// applyScoping wraps the unscoped factory of b in its resolved scope. A
// custom scope is applied here, once per binding.
func applyScoping(b *Binding, unscoped internalFactory) internalFactory {
	switch {
	case b.scope == nil || b.scope == NoScope:
		return unscoped
	case b.scope == Singleton:
		return &singletonFactory{binding: b, unscoped: unscoped}
	default:
		f := &scopedFactory{binding: b, unscoped: unscoped}
		f.scoped = b.scope.Scope(b.key, ProviderFunc(f.provideUnscoped))
		return f
	}
}

// singletonFactory caches the first instance for the life of the injector.
//
// A re-request of the binding from inside its own construction runs in the
// same provisioning and skips the lock, so the cycle reaches the
// circular-dependency handling instead of blocking. When provisionings on
// different goroutines would wait on each other, the one closing the cycle
// reuses the other's in-progress instance. Such results are never cached.
type singletonFactory struct {
	binding  *Binding
	unscoped internalFactory

	lock  provisionLock
	done  atomic.Bool
	value any
}

func (f *singletonFactory) get(p *provisioning, dep Dependency) (any, error) {
	if f.done.Load() {
		return f.value, nil
	}

	var (
		borrowed    any
		borrowedErr error
	)
	switch f.lock.acquire(p, func(owner *provisioning) {
		borrowed, borrowedErr = owner.borrow(p, f.binding, dep)
	}) {
	case lockHeld:
		return f.unscoped.get(p, dep)
	case lockCycle:
		return borrowed, borrowedErr
	}
	defer f.lock.release()

	if f.done.Load() {
		return f.value, nil
	}

	v, err := f.unscoped.get(p, dep)
	if err != nil {
		return nil, err
	}

	f.value = v
	f.done.Store(true)
	f.binding.owner.lifecycle.track(v)

	return v, nil
}

// scopedFactory provides a binding through the provider its custom scope
// returned. Provisionings of the binding are serialized so the unscoped
// provider can join the provisioning that invoked the scope.
type scopedFactory struct {
	binding  *Binding
	unscoped internalFactory
	scoped   Provider

	lock    provisionLock
	pending atomic.Pointer[scopedCall]
}

type scopedCall struct {
	p   *provisioning
	dep Dependency
}

func (f *scopedFactory) get(p *provisioning, dep Dependency) (any, error) {
	if f.scoped == nil {
		return nil, Message{Source: f.binding.source, Err: ProvisionFailedError{Key: f.binding.key, Cause: errNilScopedProvider}}
	}

	var (
		borrowed    any
		borrowedErr error
	)
	switch f.lock.acquire(p, func(owner *provisioning) {
		borrowed, borrowedErr = owner.borrow(p, f.binding, dep)
	}) {
	case lockHeld:
		return f.unscoped.get(p, dep)
	case lockCycle:
		return borrowed, borrowedErr
	}
	defer f.lock.release()

	call := &scopedCall{p: p, dep: dep}
	f.pending.Store(call)
	defer f.pending.CompareAndSwap(call, nil)

	return f.scoped.Get()
}

// provideUnscoped is the provider handed to the scope. The first call made
// while the scope is being consulted joins that provisioning; any other
// call starts its own.
func (f *scopedFactory) provideUnscoped() (any, error) {
	if call := f.pending.Swap(nil); call != nil {
		return f.unscoped.get(call.p, call.dep)
	}

	p := newProvisioning(f.binding.owner)
	p.push(f.binding.key)
	defer p.pop()

	v, err := f.unscoped.get(p, Dependency{Key: f.binding.key})
	return v, newProvisionError(err)
}
