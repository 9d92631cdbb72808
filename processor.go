package binder

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/junioryono/binder/internal/graph"
)

// forbiddenTypes are the injector's own types, which modules may not bind.
var forbiddenTypes = map[reflect.Type]struct{}{
	typeOf[*Injector]():        {},
	typeOf[Injector]():         {},
	typeOf[*Binder]():          {},
	typeOf[Binder]():           {},
	typeOf[*Binding]():         {},
	typeOf[Binding]():          {},
	typeOf[Key]():              {},
	typeOf[Module]():           {},
	typeOf[Provider]():         {},
	typeOf[Scope]():            {},
	typeOf[Stage]():            {},
	typeOf[*MembersInjector](): {},
	typeOf[MembersInjector]():  {},
}

func isForbiddenType(t reflect.Type) bool {
	_, ok := forbiddenTypes[t]
	return ok
}

var providerType = typeOf[Provider]()

// pendingConstructor is an untargetted binding waiting for its factory.
type pendingConstructor struct {
	binding *Binding
	point   *ConstructorPoint
}

// processor turns the declarations of one injector level into bindings.
//
// Bindings are committed in two phases: every binding is stored first,
// then constructor bindings are initialized and linked targets checked,
// so declarations may refer to each other in any order.
type processor struct {
	injector *Injector
	state    *State
	errs     *Errors

	pending          []pendingConstructor
	creationChecks   []func()
	memberInjections []*InjectionRequest

	// linkCycles holds keys already reported as part of a loop of links.
	linkCycles map[Key]bool
}

func newProcessor(i *Injector, errs *Errors) *processor {
	return &processor{injector: i, state: i.state, errs: errs, linkCycles: make(map[Key]bool)}
}

// process runs every configuration pass and creates eager singletons.
func (p *processor) process(decls []Declaration) {
	p.installBuiltIns()

	for _, d := range decls {
		p.processAspect(d)
	}

	for _, d := range decls {
		if bd, ok := d.(*BindingDeclaration); ok {
			p.processBinding(bd)
		}
	}

	for _, pc := range p.pending {
		p.initializeConstructor(pc)
	}

	for _, check := range p.creationChecks {
		check()
	}

	for _, d := range decls {
		p.processRequest(d)
	}

	p.checkDependencies()

	if p.errs.HasErrors() {
		return
	}

	p.initializeLookups()
	p.injectMembers()
	p.injectStatics()

	if p.errs.HasErrors() {
		return
	}

	p.loadEagerSingletons()
}

// installBuiltIns binds the injector itself, and at the root the stage,
// the singleton scope and the primitive converters.
func (p *processor) installBuiltIns() {
	i := p.injector

	self := newBinding(i, KeyOf[*Injector](), BuiltInSource, InstanceTarget{Instance: i}, Unscoped)
	self.setFactory(constantFactory{value: i})
	p.state.putBinding(self)

	if i.parent != nil {
		return
	}

	stage := newBinding(i, KeyOf[Stage](), BuiltInSource, InstanceTarget{Instance: i.opts.stage}, Unscoped)
	stage.setFactory(constantFactory{value: i.opts.stage})
	p.state.putBinding(stage)

	p.state.putScope(SingletonScope, Singleton, BuiltInSource)
	p.state.converters = append(p.state.converters, builtInConverters()...)
}

// processAspect handles everything bindings depend on: errors, scopes,
// converters, interceptors and listeners.
func (p *processor) processAspect(d Declaration) {
	switch d := d.(type) {
	case *ErrorDeclaration:
		p.errs.WithSource(d.Source).Add(d.Err)

	case *ScopeDeclaration:
		errs := p.errs.WithSource(d.Source)
		if d.Scope == nil {
			errs.Add(fmt.Errorf("%w: %s", errNilScope, d.ID))
			return
		}
		if existing, ok := p.state.scopes[d.ID]; ok {
			errs.Add(DuplicateScopeError{ID: d.ID, Original: existing.source})
			return
		}
		p.state.putScope(d.ID, d.Scope, d.Source)

	case *TypeConverterBinding:
		if d.Matcher == nil || d.Converter == nil {
			p.errs.WithSource(d.Source).Add(fmt.Errorf("%w: converter and matcher are required", ErrNilTarget))
			return
		}
		p.state.converters = append(p.state.converters, d)

	case *InterceptorBinding:
		if d.Matcher == nil || d.Interceptor == nil {
			p.errs.WithSource(d.Source).Add(fmt.Errorf("%w: interceptor and matcher are required", ErrNilTarget))
			return
		}
		p.state.interceptors = append(p.state.interceptors, d)

	case *TypeListenerBinding:
		if d.Matcher == nil || d.Listener == nil {
			p.errs.WithSource(d.Source).Add(fmt.Errorf("%w: listener and matcher are required", ErrNilTarget))
			return
		}
		p.state.typeListeners = append(p.state.typeListeners, d)

	case *ProvisionListenerBinding:
		if d.Matcher == nil || d.Listener == nil {
			p.errs.WithSource(d.Source).Add(fmt.Errorf("%w: listener and matcher are required", ErrNilTarget))
			return
		}
		p.state.provisionListeners = append(p.state.provisionListeners, d)
	}
}

// processRequest stores injection requests and lookups.
func (p *processor) processRequest(d Declaration) {
	switch d := d.(type) {
	case *InjectionRequest:
		if d.Instance == nil {
			p.errs.WithSource(d.Source).Add(fmt.Errorf("%w: injection request", ErrNilTarget))
			return
		}
		p.state.injectionRequests = append(p.state.injectionRequests, d)

	case *StaticInjectionRequest:
		p.state.staticRequests = append(p.state.staticRequests, d)

	case *ProviderLookup:
		p.state.providerLookups = append(p.state.providerLookups, d)

	case *MembersInjectorLookup:
		p.state.membersLookups = append(p.state.membersLookups, d)
	}
}

func (p *processor) invalid(key Key, source Source) {
	p.state.putBinding(newInvalidBinding(p.injector, key, source))
}

// processBinding validates one binding declaration and stores its binding.
func (p *processor) processBinding(d *BindingDeclaration) {
	i := p.injector
	key, source := d.Key, d.Source
	errs := p.errs.WithSource(source)

	if key.Type == nil {
		errs.Add(ErrKeyTypeNil)
		return
	}

	if isForbiddenType(key.Type) {
		errs.Add(ForbiddenTypeError{Type: key.Type})
		return
	}

	if existing, ok := p.state.bindings[key]; ok {
		errs.Add(DuplicateBindingError{Key: key, Original: existing.source})
		return
	}

	var constructed reflect.Type
	if _, ok := d.Target.(UntargettedTarget); ok {
		constructed = key.Type
	}

	scope, eager, err := i.resolveScope(d.Scoping, constructed)
	if err != nil {
		errs.Add(err)
		p.invalid(key, source)
		return
	}

	b := newBinding(i, key, source, d.Target, d.Scoping)
	b.scope, b.eager = scope, eager

	switch t := d.Target.(type) {
	case InstanceTarget:
		if t.Instance == nil {
			errs.Add(NullInstanceError{Key: key})
			p.invalid(key, source)
			return
		}
		if err := checkAssignable(key, t.Instance, "instance binding"); err != nil {
			errs.Add(err)
			p.invalid(key, source)
			return
		}
		p.memberInjections = append(p.memberInjections, &InjectionRequest{Source: source, Instance: t.Instance})
		b.setFactory(i.wrapFactory(b, constantFactory{value: t.Instance}))

	case ProviderInstanceTarget:
		if t.Provider == nil {
			errs.Add(NullInstanceError{Key: key})
			p.invalid(key, source)
			return
		}
		p.memberInjections = append(p.memberInjections, &InjectionRequest{Source: source, Instance: t.Provider})
		b.setFactory(i.wrapFactory(b, &providerInstanceFactory{binding: b, provider: t.Provider}))

	case ProviderFuncTarget:
		point, err := i.opts.points.Function(t.Func)
		if err != nil {
			errs.Add(err)
			p.invalid(key, source)
			return
		}
		if !point.Type.AssignableTo(key.Type) {
			errs.Add(TypeMismatchError{Expected: key.Type, Actual: point.Type, Context: "provider function result"})
			p.invalid(key, source)
			return
		}
		b.deps = point.Dependencies
		b.setFactory(i.wrapFactory(b, &constructorFactory{binding: b, point: point}))

	case ProviderKeyTarget:
		if t.ProviderKey.Type == nil || !t.ProviderKey.Type.Implements(providerType) {
			errs.Add(TypeMismatchError{Expected: providerType, Actual: t.ProviderKey.Type, Context: "provider key"})
			p.invalid(key, source)
			return
		}
		b.deps = []Dependency{{Key: t.ProviderKey}}
		b.setFactory(i.wrapFactory(b, &providerKeyFactory{binding: b, providerKey: t.ProviderKey}))
		p.checkTarget(b, t.ProviderKey)

	case LinkedKeyTarget:
		if t.TargetKey == key {
			errs.Add(RecursiveBindingError{Key: key})
			p.invalid(key, source)
			return
		}
		if t.TargetKey.Type == nil || !t.TargetKey.Type.AssignableTo(key.Type) {
			errs.Add(TypeMismatchError{Expected: key.Type, Actual: t.TargetKey.Type, Context: "linked key"})
			p.invalid(key, source)
			return
		}
		b.deps = []Dependency{{Key: t.TargetKey}}
		b.setFactory(i.wrapFactory(b, &linkedFactory{binding: b, targetKey: t.TargetKey}))
		p.checkTarget(b, t.TargetKey)
		p.checkLinkCycle(b)

	case UntargettedTarget:
		if key.HasQualifier() {
			errs.Add(MissingImplementationError{Key: key})
			p.invalid(key, source)
			return
		}
		point, err := i.opts.points.Constructor(key.Type)
		if err != nil {
			errs.Add(MissingImplementationError{Key: key, Cause: err})
			p.invalid(key, source)
			return
		}
		b.target = ConstructorTarget{Type: key.Type}
		p.pending = append(p.pending, pendingConstructor{binding: b, point: point})

	default:
		panic(fmt.Sprintf("binder: %s cannot be declared by a module", d.Target))
	}

	p.state.putBinding(b)
}

// initializeConstructor installs the factory of an untargetted binding
// once every binding of the level exists.
func (p *processor) initializeConstructor(pc pendingConstructor) {
	i := p.injector
	b := pc.binding

	f, err := i.newConstructorFactory(b, pc.point)
	if err != nil {
		p.errs.WithSource(b.source).Add(MissingImplementationError{Key: b.key, Cause: err})
		b.target = InvalidTarget{}
		b.setFactory(newInvalidBinding(i, b.key, b.source).factory)
		return
	}

	b.setFactory(i.wrapFactory(b, f))
}

// checkTarget queues a check that the binding b forwards to exists.
func (p *processor) checkTarget(b *Binding, target Key) {
	p.creationChecks = append(p.creationChecks, func() {
		if _, err := p.injector.bindingFor(target); err != nil {
			p.errs.Add(attribute(err, Dependency{Key: target, Site: b.key.String()}, b.source))
		}
	})
}

// checkLinkCycle queues a check that following the links from b never
// returns to b. Each loop is reported once, at its first declared binding.
func (p *processor) checkLinkCycle(b *Binding) {
	p.creationChecks = append(p.creationChecks, func() {
		if p.linkCycles[b.key] {
			return
		}

		path := linkCycle(p.injector, b)
		if path == nil {
			return
		}
		for _, k := range path {
			p.linkCycles[k] = true
		}
		p.errs.WithSource(b.source).Add(CircularDependencyError{Path: path})
	})
}

// linkCycle follows linked keys from b and returns the loop leading back to
// b, or nil when the chain ends at a binding that is not a link.
func linkCycle(i *Injector, b *Binding) []Key {
	path := []Key{b.key}
	seen := map[Key]bool{b.key: true}

	for current := b; ; {
		link, ok := current.target.(LinkedKeyTarget)
		if !ok {
			return nil
		}
		path = append(path, link.TargetKey)
		if link.TargetKey == b.key {
			return path
		}
		if seen[link.TargetKey] {
			return nil
		}
		seen[link.TargetKey] = true

		next, ok := i.ExistingBinding(link.TargetKey)
		if !ok {
			return nil
		}
		current = next
	}
}

// checkDependencies reports every dependency of this level's bindings that
// does not resolve. Linked and provider key targets were checked already.
func (p *processor) checkDependencies() {
	for _, b := range p.state.ExplicitBindingsThisLevel() {
		switch b.target.(type) {
		case InvalidTarget, LinkedKeyTarget, ProviderKeyTarget:
			continue
		}

		for _, dep := range b.deps {
			if dep.Optional {
				continue
			}
			if _, err := p.injector.bindingFor(dep.Key); err != nil {
				p.errs.Add(attribute(err, dep, b.source))
			}
		}
	}
}

// initializeLookups connects provider and members injector lookups.
func (p *processor) initializeLookups() {
	i := p.injector

	for _, l := range p.state.providerLookups {
		b, err := i.bindingFor(l.key)
		if err != nil {
			p.errs.Add(attribute(err, Dependency{Key: l.key}, l.source))
			continue
		}
		l.initialize(b.Provider())
	}

	for _, l := range p.state.membersLookups {
		m, err := i.membersInjectorFor(l.typ)
		if err != nil {
			p.errs.WithSource(l.source).Add(err)
			continue
		}
		l.initialize(m)
	}
}

// injectMembers injects bound instances, providers and requested instances.
func (p *processor) injectMembers() {
	requests := append(p.memberInjections, p.state.injectionRequests...)
	for _, r := range requests {
		if err := p.injector.injectRequest(r.Source, r.Instance); err != nil {
			p.errs.Add(err)
		}
	}
}

// injectStatics assigns the variables of static injection requests.
func (p *processor) injectStatics() {
	i := p.injector

	for _, r := range p.state.staticRequests {
		prov := newProvisioning(i)
		v, err := prov.resolve(i, Dependency{Key: r.Key, Site: "static injection"}, r.Source)
		if err != nil {
			p.errs.Add(err)
			continue
		}
		reflect.ValueOf(r.Target).Elem().Set(v)
	}
}

// loadEagerSingletons creates eager singletons with dependencies first.
// Singletons in a dependency cycle are created afterwards in declaration order.
func (p *processor) loadEagerSingletons() {
	i := p.injector

	g := graph.New[Key]()
	eager := make(map[Key]*Binding)
	for _, b := range p.state.ExplicitBindingsThisLevel() {
		if !b.eager {
			continue
		}
		deps := make([]Key, len(b.deps))
		for idx, d := range b.deps {
			deps[idx] = d.Key
		}
		g.Add(b.key, deps...)
		eager[b.key] = b
	}

	sorted, cyclic := g.TopologicalSort()
	for _, key := range append(sorted, cyclic...) {
		b := eager[key]

		prov := newProvisioning(i)
		if _, err := prov.provide(b, Dependency{Key: key}); err != nil {
			p.errs.Add(err)
			continue
		}

		i.logger.Debug("eager singleton created", zap.Stringer("key", key))
	}
}
