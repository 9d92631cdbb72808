package binder

import (
	"reflect"

	"go.uber.org/multierr"
)

type constructionState int

const (
	constructionInProgress constructionState = iota + 1
	constructionCompleted
	constructionFailed
)

// construction tracks one in-flight construction of a binding.
type construction struct {
	state constructionState

	// reference is the instance once it exists, while its members are
	// still being injected.
	reference    any
	hasReference bool

	proxies []*CircularProxy
}

// complete resolves every proxy handed out during the construction.
func (c *construction) complete(instance any) error {
	c.state = constructionCompleted

	var err error
	for _, proxy := range c.proxies {
		if proxy.resolve != nil {
			err = multierr.Append(err, proxy.resolve(instance))
		}
	}
	return err
}

// fail poisons every proxy handed out during the construction.
func (c *construction) fail(cause error) {
	c.state = constructionFailed
	for _, proxy := range c.proxies {
		if proxy.fail != nil {
			proxy.fail(cause)
		}
	}
}

// provisioning is the state of one top-level provisioning call. It is
// passed down the call chain explicitly and never shared between goroutines.
type provisioning struct {
	injector *Injector

	// stack holds the keys being provisioned; index maps each key to its
	// first position in stack.
	stack []Key
	index map[Key]int

	constructions map[*Binding]*construction

	depth    int
	maxDepth int
}

func newProvisioning(i *Injector) *provisioning {
	return &provisioning{
		injector:      i,
		index:         make(map[Key]int),
		constructions: make(map[*Binding]*construction),
		maxDepth:      i.opts.maxDepth,
	}
}

func (p *provisioning) push(k Key) {
	if _, ok := p.index[k]; !ok {
		p.index[k] = len(p.stack)
	}
	p.stack = append(p.stack, k)
}

func (p *provisioning) pop() {
	k := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	if p.index[k] == len(p.stack) {
		delete(p.index, k)
	}
}

// cyclePath returns the keys from the first occurrence of k to the top of
// the stack, which is k again.
func (p *provisioning) cyclePath(k Key) []Key {
	start, ok := p.index[k]
	if !ok {
		return []Key{k}
	}
	return append([]Key(nil), p.stack[start:]...)
}

// waitPath is the cycle formed when p waits for a lock held by owner, which
// is itself blocked on the key at the top of its stack.
func (p *provisioning) waitPath(owner *provisioning) []Key {
	path := append([]Key(nil), p.stack...)
	if len(owner.stack) == 0 {
		return path
	}

	top := owner.stack[len(owner.stack)-1]
	if start, ok := p.index[top]; ok {
		path = path[start:]
	}
	return append(path, top)
}

// provide runs the factory of b for dep.
func (p *provisioning) provide(b *Binding, dep Dependency) (any, error) {
	if !b.isInitialized() {
		return nil, Message{Source: b.source, Err: UninitializedBindingError{Key: b.key}}
	}

	if p.depth >= p.maxDepth {
		return nil, Message{Source: b.source, Err: MaxDepthError{Key: b.key, Depth: p.depth + 1, MaxDepth: p.maxDepth}}
	}

	p.depth++
	p.push(b.key)
	defer func() {
		p.pop()
		p.depth--
	}()

	return b.factory.get(p, dep)
}

// resolve provides the value for dep using owner's bindings. Missing
// optional dependencies resolve to the zero value.
func (p *provisioning) resolve(owner *Injector, dep Dependency, source Source) (reflect.Value, error) {
	b, err := owner.bindingFor(dep.Key)
	if err != nil {
		if dep.Optional && IsMissingImplementation(err) {
			return reflect.Zero(dep.Key.Type), nil
		}
		return reflect.Value{}, attribute(err, dep, source)
	}

	v, err := p.provide(b, dep)
	if err != nil {
		return reflect.Value{}, err
	}

	rv, err := valueFor(v, dep.Key.Type)
	if err != nil {
		return reflect.Value{}, Message{Source: source, Err: err}
	}
	return rv, nil
}

// resolveAll resolves every dependency and reports all failures together.
func (p *provisioning) resolveAll(owner *Injector, deps []Dependency, source Source) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(deps))
	errs := NewErrors().WithSource(source)

	for i, dep := range deps {
		v, err := p.resolve(owner, dep, source)
		if err != nil {
			errs.Add(err)
			continue
		}
		args[i] = v
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return args, nil
}

// reenter handles a request for a binding that is already being
// constructed in this provisioning.
func (p *provisioning) reenter(b *Binding, c *construction, dep Dependency) (any, error) {
	if v, ok, err := p.reuse(b, c, dep); ok || err != nil {
		return v, err
	}
	return nil, Message{Source: b.source, Err: CircularDependencyError{Path: p.cyclePath(b.key)}}
}

// borrow hands waiter the instance p is constructing for b. p must be
// blocked in a wait that waiter would otherwise close into a cycle.
func (p *provisioning) borrow(waiter *provisioning, b *Binding, dep Dependency) (any, error) {
	if c, ok := p.constructions[b]; ok {
		if v, ok, err := p.reuse(b, c, dep); ok || err != nil {
			return v, err
		}
	}
	return nil, Message{Source: b.source, Err: CircularDependencyError{Path: waiter.waitPath(p)}}
}

// reuse returns the instance c has already created, or a proxy resolved
// when c completes. It reports false when neither is possible.
func (p *provisioning) reuse(b *Binding, c *construction, dep Dependency) (any, bool, error) {
	if c.hasReference {
		return c.reference, true, nil
	}

	t := dep.Key.Type
	if t == nil {
		t = b.key.Type
	}

	proxies := p.injector.opts.proxies
	if !proxies.CanProxy(t) {
		return nil, false, nil
	}

	proxy, err := proxies.NewProxy(t)
	if err != nil {
		return nil, false, Message{Source: b.source, Err: err}
	}
	c.proxies = append(c.proxies, proxy)
	return proxy.Value, true, nil
}

// attribute records the requesting site on a missing-binding error and
// attaches source unless the error already carries one.
func attribute(err error, dep Dependency, source Source) error {
	switch e := err.(type) {
	case MissingImplementationError:
		if e.Site == "" {
			e.Site = dep.Site
		}
		return Message{Source: source, Err: e}
	case Message, messageList:
		return err
	default:
		return Message{Source: source, Err: err}
	}
}

// valueFor converts a provided instance to a value assignable to t.
func valueFor(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, TypeMismatchError{Expected: t, Actual: rv.Type(), Context: "injecting dependency"}
	}
	return rv, nil
}
