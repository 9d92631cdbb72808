package binder

import (
	"fmt"
	"reflect"
)

// Binding maps a key to the strategy that produces its instances.
//
// Bindings are created by the injector from module declarations or just in
// time. After the injector is returned a binding never changes.
type Binding struct {
	key     Key
	source  Source
	target  Target
	scoping Scoping

	// scope is the resolved scope; nil means unscoped.
	scope Scope
	eager bool

	owner   *Injector
	deps    []Dependency
	factory internalFactory
}

func newBinding(owner *Injector, key Key, source Source, target Target, scoping Scoping) *Binding {
	if scoping == nil {
		scoping = NoScoping
	}
	return &Binding{
		key:     key,
		source:  source,
		target:  target,
		scoping: scoping,
		owner:   owner,
	}
}

// newInvalidBinding records a key whose declaration failed so later
// declarations of the same key are still reported as duplicates.
func newInvalidBinding(owner *Injector, key Key, source Source) *Binding {
	b := newBinding(owner, key, source, InvalidTarget{}, Unscoped)
	b.setFactory(factoryFunc(func(*provisioning, Dependency) (any, error) {
		return nil, Message{Source: source, Err: MissingImplementationError{Key: key}}
	}))
	return b
}

// Key returns the key this binding satisfies.
func (b *Binding) Key() Key { return b.key }

// Source returns where the binding was declared.
func (b *Binding) Source() Source { return b.source }

// Target returns the binding's target.
func (b *Binding) Target() Target { return b.target }

// Scoping returns the scoping as declared.
func (b *Binding) Scoping() Scoping { return b.scoping }

// IsEager reports whether the binding is instantiated when the injector is created.
func (b *Binding) IsEager() bool { return b.eager }

// Injector returns the injector that owns the binding.
func (b *Binding) Injector() *Injector { return b.owner }

// Dependencies returns the keys the binding needs to produce an instance.
func (b *Binding) Dependencies() []Dependency {
	return append([]Dependency(nil), b.deps...)
}

// Provider returns a provider that provisions this binding.
func (b *Binding) Provider() Provider {
	return ProviderFunc(func() (any, error) {
		return b.owner.provisionBinding(b)
	})
}

func (b *Binding) String() string {
	return fmt.Sprintf("Binding{key=%s, source=%s, target=%s, scope=%s}", b.key, b.source, b.target, b.scoping)
}

// setFactory installs the factory. It may only be called once.
func (b *Binding) setFactory(f internalFactory) {
	if b.factory != nil {
		panic(fmt.Sprintf("binder: factory for %s installed twice", b.key))
	}
	b.factory = f
}

func (b *Binding) isInitialized() bool {
	return b.factory != nil
}

// Dependency is a single injection request for a key.
type Dependency struct {
	Key      Key
	Optional bool

	// Site describes the requesting parameter or field, e.g. "parameter 0 of NewService".
	Site string
}

func (d Dependency) String() string {
	if d.Site == "" {
		return d.Key.String()
	}
	return fmt.Sprintf("%s for %s", d.Key, d.Site)
}

// internalFactory produces instances for a binding within a provisioning call.
type internalFactory interface {
	get(p *provisioning, dep Dependency) (any, error)
}

type factoryFunc func(p *provisioning, dep Dependency) (any, error)

func (f factoryFunc) get(p *provisioning, dep Dependency) (any, error) {
	return f(p, dep)
}

// ========================================
// Targets
// ========================================

// Target describes how a binding produces instances. The set of targets is
// closed; switch on the concrete type.
type Target interface {
	isTarget()
	String() string
}

// InstanceTarget always returns the same pre-built value.
type InstanceTarget struct {
	Instance any
}

// ProviderInstanceTarget delegates to a user provider.
type ProviderInstanceTarget struct {
	Provider Provider
}

// ProviderFuncTarget calls a function whose parameters are dependencies.
type ProviderFuncTarget struct {
	Func any
}

// ProviderKeyTarget provisions a Provider bound under another key and calls it.
type ProviderKeyTarget struct {
	ProviderKey Key
}

// LinkedKeyTarget forwards to the binding of another key.
type LinkedKeyTarget struct {
	TargetKey Key
}

// ConstructorTarget builds instances of Type through its injection points.
type ConstructorTarget struct {
	Type reflect.Type
}

// ConvertedConstantTarget is a string constant converted to the key's type.
type ConvertedConstantTarget struct {
	Value     any
	SourceKey Key
}

// LazyProviderTarget is a just-in-time binding for a provider function
// type such as func() (T, error). Calling the function provisions ProvidedKey.
type LazyProviderTarget struct {
	ProvidedKey Key
}

// UntargettedTarget is a declaration without a target; the key's own type
// is constructed.
type UntargettedTarget struct{}

// InvalidTarget marks a binding whose declaration failed.
type InvalidTarget struct{}

func (InstanceTarget) isTarget()          {}
func (ProviderInstanceTarget) isTarget()  {}
func (ProviderFuncTarget) isTarget()      {}
func (ProviderKeyTarget) isTarget()       {}
func (LinkedKeyTarget) isTarget()         {}
func (ConstructorTarget) isTarget()       {}
func (ConvertedConstantTarget) isTarget() {}
func (LazyProviderTarget) isTarget()      {}
func (UntargettedTarget) isTarget()       {}
func (InvalidTarget) isTarget()           {}

func (t InstanceTarget) String() string { return fmt.Sprintf("instance %v", t.Instance) }
func (t ProviderInstanceTarget) String() string {
	return fmt.Sprintf("provider %T", t.Provider)
}
func (t ProviderFuncTarget) String() string {
	return fmt.Sprintf("provider function %s", formatType(reflect.TypeOf(t.Func)))
}
func (t ProviderKeyTarget) String() string       { return "provider key " + t.ProviderKey.String() }
func (t LinkedKeyTarget) String() string         { return "linked key " + t.TargetKey.String() }
func (t ConstructorTarget) String() string       { return "constructor " + formatType(t.Type) }
func (t ConvertedConstantTarget) String() string { return fmt.Sprintf("converted constant %v", t.Value) }
func (t LazyProviderTarget) String() string      { return "provider of " + t.ProvidedKey.String() }
func (UntargettedTarget) String() string         { return "untargetted" }
func (InvalidTarget) String() string             { return "invalid" }

// ========================================
// Scoping
// ========================================

// ScopeID names a scope that bindings refer to before the scope instance is known.
type ScopeID string

// SingletonScope is the identity of the built-in Singleton scope.
const SingletonScope ScopeID = "Singleton"

// Scoping is a binding's scope as declared. The set is closed.
type Scoping interface {
	isScoping()
	String() string
}

// UnscopedScoping creates a new instance for every request.
type UnscopedScoping struct{}

// EagerSingletonScoping is a singleton created with the injector.
type EagerSingletonScoping struct{}

// ScopeAnnotation refers to a scope bound with Binder.BindScope.
type ScopeAnnotation struct {
	ID ScopeID
}

// ScopeInstance refers to a scope directly.
type ScopeInstance struct {
	Scope Scope
}

// NoScopingSpecified leaves the choice to the bound type.
type NoScopingSpecified struct{}

var (
	Unscoped       Scoping = UnscopedScoping{}
	EagerSingleton Scoping = EagerSingletonScoping{}
	NoScoping      Scoping = NoScopingSpecified{}
)

func (UnscopedScoping) isScoping()       {}
func (EagerSingletonScoping) isScoping() {}
func (ScopeAnnotation) isScoping()       {}
func (ScopeInstance) isScoping()         {}
func (NoScopingSpecified) isScoping()    {}

func (UnscopedScoping) String() string       { return "unscoped" }
func (EagerSingletonScoping) String() string { return "eager singleton" }
func (s ScopeAnnotation) String() string     { return string(s.ID) }
func (s ScopeInstance) String() string {
	if s.Scope == nil {
		return "<nil scope>"
	}
	return s.Scope.String()
}
func (NoScopingSpecified) String() string    { return "no scope" }
