package binder

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// constantFactory returns the same value for every request.
type constantFactory struct {
	value any
}

func (f constantFactory) get(*provisioning, Dependency) (any, error) {
	return f.value, nil
}

// constructorFactory builds instances through a constructor point. It
// serves constructor bindings and provider functions; only the former
// inject members and apply interceptors.
type constructorFactory struct {
	binding      *Binding
	point        *ConstructorPoint
	members      *MembersInjector
	interceptors []*InterceptorBinding
}

func (f *constructorFactory) get(p *provisioning, dep Dependency) (any, error) {
	if c, ok := p.constructions[f.binding]; ok {
		return p.reenter(f.binding, c, dep)
	}

	c := &construction{state: constructionInProgress}
	p.constructions[f.binding] = c
	defer delete(p.constructions, f.binding)

	instance, err := f.construct(p, c)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	if err := c.complete(instance); err != nil {
		return nil, Message{Source: f.binding.source, Err: err}
	}

	return instance, nil
}

func (f *constructorFactory) construct(p *provisioning, c *construction) (any, error) {
	b := f.binding
	owner := b.owner

	args, err := p.resolveAll(owner, f.point.Dependencies, b.source)
	if err != nil {
		return nil, err
	}

	v, err := owner.opts.invoker.Construct(f.point, args)
	if err != nil {
		if panicErr, ok := err.(ConstructorPanicError); ok {
			return nil, Message{Source: b.source, Err: coverFailedProxy(b.key, panicErr)}
		}
		return nil, Message{Source: b.source, Err: coverFailedProxy(b.key, ProvisionFailedError{Key: b.key, Cause: err})}
	}

	var instance any
	if v.IsValid() {
		instance = v.Interface()
	}
	if v.IsValid() && v.Kind() == reflect.Pointer && !v.IsNil() {
		c.reference, c.hasReference = instance, true
	}

	if f.members != nil {
		if err := f.members.inject(p, v, b.source); err != nil {
			return nil, err
		}
	}

	for _, ib := range f.interceptors {
		intercepted, err := ib.Interceptor(instance)
		if err != nil {
			return nil, Message{Source: ib.Source, Err: ProvisionFailedError{Key: b.key, Cause: err}}
		}
		if err := checkAssignable(b.key, intercepted, "interceptor result"); err != nil {
			return nil, Message{Source: ib.Source, Err: err}
		}
		instance = intercepted
	}

	return instance, nil
}

// providerInstanceFactory calls a user provider.
type providerInstanceFactory struct {
	binding  *Binding
	provider Provider
}

func (f *providerInstanceFactory) get(*provisioning, Dependency) (any, error) {
	return callProvider(f.binding, f.provider)
}

// providerKeyFactory provisions the Provider bound under another key and calls it.
type providerKeyFactory struct {
	binding     *Binding
	providerKey Key
}

func (f *providerKeyFactory) get(p *provisioning, _ Dependency) (any, error) {
	b := f.binding

	target, err := b.owner.bindingFor(f.providerKey)
	if err != nil {
		return nil, attribute(err, Dependency{Key: f.providerKey}, b.source)
	}

	v, err := p.provide(target, Dependency{Key: f.providerKey})
	if err != nil {
		return nil, err
	}

	provider, ok := v.(Provider)
	if !ok || provider == nil {
		return nil, Message{Source: b.source, Err: TypeMismatchError{
			Expected: typeOf[Provider](),
			Actual:   reflect.TypeOf(v),
			Context:  "provider key " + f.providerKey.String(),
		}}
	}

	return callProvider(b, provider)
}

// linkedFactory forwards to the binding of the target key, keeping the
// original dependency so cycles are proxied as the requested type.
type linkedFactory struct {
	binding   *Binding
	targetKey Key
}

func (f *linkedFactory) get(p *provisioning, dep Dependency) (any, error) {
	target, err := f.binding.owner.bindingFor(f.targetKey)
	if err != nil {
		return nil, attribute(err, Dependency{Key: f.targetKey}, f.binding.source)
	}

	if start, ok := p.index[f.targetKey]; ok && f.forwardsOnly(p.stack[start:]) {
		path := append(p.cyclePath(f.targetKey), f.targetKey)
		return nil, Message{Source: f.binding.source, Err: CircularDependencyError{Path: path}}
	}

	return p.provide(target, dep)
}

// forwardsOnly reports whether every key is bound to a link, so reaching
// the first of them again can never produce an instance.
func (f *linkedFactory) forwardsOnly(keys []Key) bool {
	for _, k := range keys {
		b, ok := f.binding.owner.ExistingBinding(k)
		if !ok {
			return false
		}
		if _, linked := b.target.(LinkedKeyTarget); !linked {
			return false
		}
	}
	return true
}

// lazyProviderFactory returns a provider function for another key.
type lazyProviderFactory struct {
	binding     *Binding
	providedKey Key
}

func (f *lazyProviderFactory) get(*provisioning, Dependency) (any, error) {
	target, err := f.binding.owner.bindingFor(f.providedKey)
	if err != nil {
		return nil, attribute(err, Dependency{Key: f.providedKey}, f.binding.source)
	}
	return providerValue(f.binding.key.Type, target).Interface(), nil
}

// callProvider calls provider for b, attributing errors and panics to b.
func callProvider(b *Binding, provider Provider) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = Message{Source: b.source, Err: coverFailedProxy(b.key, ConstructorPanicError{
				Constructor: reflect.TypeOf(provider),
				Panic:       r,
				Stack:       debug.Stack(),
			})}
		}
	}()

	v, err = provider.Get()
	if err != nil {
		return nil, Message{Source: b.source, Err: coverFailedProxy(b.key, ProvisionFailedError{Key: b.key, Cause: err})}
	}

	if err := checkAssignable(b.key, v, "provider result"); err != nil {
		return nil, Message{Source: b.source, Err: err}
	}

	return v, nil
}

// checkAssignable verifies that v can be used for key.
func checkAssignable(key Key, v any, context string) error {
	if v == nil {
		return nil
	}
	if t := reflect.TypeOf(v); !t.AssignableTo(key.Type) {
		return TypeMismatchError{Expected: key.Type, Actual: t, Context: context}
	}
	return nil
}

// ========================================
// Binding initialization
// ========================================

var errNilScope = errors.New("scope cannot be nil")

// resolveScope turns a declared scoping into a scope instance. constructed
// is the type built by a constructor binding and may declare its own scope
// when none was specified.
func (i *Injector) resolveScope(scoping Scoping, constructed reflect.Type) (scope Scope, eager bool, err error) {
	switch s := scoping.(type) {
	case UnscopedScoping:
		return nil, false, nil

	case EagerSingletonScoping:
		return Singleton, true, nil

	case ScopeInstance:
		if s.Scope == nil {
			return nil, false, errNilScope
		}
		scope = s.Scope

	case ScopeAnnotation:
		found, ok := i.state.ScopeBinding(s.ID)
		if !ok {
			return nil, false, ScopeNotFoundError{ID: s.ID}
		}
		scope = found

	case NoScopingSpecified, nil:
		if constructed == nil {
			return nil, false, nil
		}
		id, ok := i.opts.points.ImplicitScope(constructed)
		if !ok {
			return nil, false, nil
		}
		found, ok := i.state.ScopeBinding(id)
		if !ok {
			return nil, false, ScopeNotFoundError{ID: id}
		}
		scope = found

	default:
		panic(fmt.Sprintf("binder: unknown scoping %T", scoping))
	}

	return scope, scope == Singleton && i.opts.stage == Production, nil
}

// wrapFactory applies provision listeners and the binding's scope to the
// unscoped factory.
func (i *Injector) wrapFactory(b *Binding, unscoped internalFactory) internalFactory {
	var listeners []*ProvisionListenerBinding
	for _, l := range i.state.ProvisionListeners() {
		if l.Matcher.Matches(b.key.Type) {
			listeners = append(listeners, l)
		}
	}

	f := unscoped
	if len(listeners) > 0 {
		f = &provisionListenerFactory{binding: b, listeners: listeners, inner: f}
	}
	return applyScoping(b, f)
}

// newConstructorFactory prepares a constructor binding: it notifies type
// listeners, collects member dependencies and the matching interceptors.
func (i *Injector) newConstructorFactory(b *Binding, point *ConstructorPoint) (*constructorFactory, error) {
	members, err := i.membersInjectorFor(point.Type)
	if err != nil {
		return nil, err
	}

	deps := append([]Dependency(nil), point.Dependencies...)
	for _, m := range members.members {
		deps = append(deps, m.Dependency)
	}
	b.deps = deps

	var interceptors []*InterceptorBinding
	for _, ib := range i.state.Interceptors() {
		if ib.Matcher.Matches(b.key.Type) {
			interceptors = append(interceptors, ib)
		}
	}

	return &constructorFactory{
		binding:      b,
		point:        point,
		members:      members,
		interceptors: interceptors,
	}, nil
}
