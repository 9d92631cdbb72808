package binder

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

var (
	errExplicitBindingsRequired = errors.New("explicit bindings are required")
	errNilConversion            = errors.New("converter returned nil")
	stringType                  = reflect.TypeOf("")
)

// jitPlan describes a just-in-time binding before it is created.
type jitPlan struct {
	target  Target
	source  Source
	point   *ConstructorPoint
	deps    []Dependency
	scoping Scoping

	// level is the shallowest level that can own the binding, regardless
	// of its dependencies.
	level int
}

// bindingFor returns the binding for key: an explicit binding from this
// level or an ancestor, an existing just-in-time binding, or a new one.
func (i *Injector) bindingFor(key Key) (*Binding, error) {
	if key.Type == nil {
		return nil, ErrKeyTypeNil
	}

	if b, ok := i.state.ExplicitBinding(key); ok {
		return b, nil
	}

	i.state.lock.RLock()
	b, ok := i.state.jitBinding(key)
	i.state.lock.RUnlock()
	if ok {
		return b, nil
	}

	return i.createJIT(key)
}

// createJIT synthesizes a binding for key, places it at the shallowest
// level where all of its dependencies resolve and checks that they do.
func (i *Injector) createJIT(key Key) (*Binding, error) {
	plan, err := i.planJIT(key)
	if err != nil {
		return nil, err
	}

	owner := i.ancestorAt(max(plan.level, i.ownerLevel(plan.deps, map[Key]bool{key: true})))

	flight := fmt.Sprintf("%s\x00%p\x00%T\x00%v", owner.id, key.Type, key.Qualifier, key.Qualifier)
	v, err, _ := i.jitGroup.Do(flight, func() (any, error) {
		return owner.insertJIT(key, plan)
	})
	if err != nil {
		return nil, err
	}

	b, ok := v.(*Binding)
	if !ok || b.key != key {
		if b, err = owner.insertJIT(key, plan); err != nil {
			return nil, err
		}
	}

	if err := b.owner.checkDependencies(b); err != nil {
		i.removeJIT(b)
		return nil, err
	}

	if b.owner != i {
		i.state.lock.Lock()
		if _, ok := i.state.jit[key]; !ok {
			i.state.jit[key] = b
		}
		i.state.lock.Unlock()
	}

	return b, nil
}

// insertJIT creates the binding described by plan and stores it at this
// level, unless another caller already did.
func (i *Injector) insertJIT(key Key, plan *jitPlan) (*Binding, error) {
	b := newBinding(i, key, plan.source, plan.target, plan.scoping)
	b.deps = plan.deps

	unscoped, err := i.jitFactory(b, plan)
	if err != nil {
		return nil, err
	}

	i.state.lock.Lock()
	defer i.state.lock.Unlock()

	if existing, ok := i.state.jitBinding(key); ok {
		return existing, nil
	}

	b.setFactory(i.wrapFactory(b, unscoped))
	i.state.jit[key] = b

	i.logger.Debug("just-in-time binding created",
		zap.Stringer("key", key),
		zap.Stringer("target", plan.target),
	)

	return b, nil
}

func (i *Injector) jitFactory(b *Binding, plan *jitPlan) (internalFactory, error) {
	switch t := plan.target.(type) {
	case LazyProviderTarget:
		return &lazyProviderFactory{binding: b, providedKey: t.ProvidedKey}, nil

	case ConvertedConstantTarget:
		return constantFactory{value: t.Value}, nil

	case LinkedKeyTarget:
		return &linkedFactory{binding: b, targetKey: t.TargetKey}, nil

	case ConstructorTarget:
		scope, _, err := i.resolveScope(plan.scoping, t.Type)
		if err != nil {
			return nil, Message{Source: b.source, Err: err}
		}
		b.scope = scope

		f, err := i.newConstructorFactory(b, plan.point)
		if err != nil {
			return nil, Message{Source: b.source, Err: MissingImplementationError{Key: b.key, Cause: err}}
		}
		return f, nil

	default:
		panic(fmt.Sprintf("binder: %s cannot be created just in time", plan.target))
	}
}

// planJIT decides how key would be bound just in time. It has no side effects.
func (i *Injector) planJIT(key Key) (*jitPlan, error) {
	t := key.Type
	source := Source("just-in-time binding for " + key.String())

	if isProviderFuncType(t) {
		provided := Key{Type: t.Out(0), Qualifier: key.Qualifier}
		return &jitPlan{
			target:  LazyProviderTarget{ProvidedKey: provided},
			source:  source,
			deps:    []Dependency{{Key: provided}},
			scoping: Unscoped,
		}, nil
	}

	if plan, err := i.planConvertedConstant(key); plan != nil || err != nil {
		return plan, err
	}

	if i.opts.requireExplicitBindings {
		return nil, MissingImplementationError{Key: key, Cause: errExplicitBindingsRequired}
	}

	if key.HasQualifier() || isForbiddenType(t) {
		return nil, MissingImplementationError{Key: key}
	}

	if t.Kind() == reflect.Interface {
		if impl, ok := i.opts.points.ImplementedBy(t); ok {
			if !impl.AssignableTo(t) {
				return nil, TypeMismatchError{Expected: t, Actual: impl, Context: "default implementation"}
			}
			target := NewKey(impl)
			return &jitPlan{
				target:  LinkedKeyTarget{TargetKey: target},
				source:  source,
				deps:    []Dependency{{Key: target}},
				scoping: Unscoped,
			}, nil
		}
	}

	point, err := i.opts.points.Constructor(t)
	if err != nil {
		return nil, MissingImplementationError{Key: key, Cause: err}
	}

	deps := append([]Dependency(nil), point.Dependencies...)
	members, err := i.opts.points.Members(point.Type)
	if err != nil {
		return nil, MissingImplementationError{Key: key, Cause: err}
	}
	for _, m := range members {
		deps = append(deps, m.Dependency)
	}

	return &jitPlan{
		target:  ConstructorTarget{Type: t},
		source:  source,
		point:   point,
		deps:    deps,
		scoping: NoScoping,
	}, nil
}

// planConvertedConstant plans a binding that converts the string constant
// bound under the same qualifier. It returns nil, nil when no constant or
// converter applies.
func (i *Injector) planConvertedConstant(key Key) (*jitPlan, error) {
	if !key.HasQualifier() || key.Type == stringType {
		return nil, nil
	}

	sourceKey := Key{Type: stringType, Qualifier: key.Qualifier}
	constant, ok := i.state.ExplicitBinding(sourceKey)
	if !ok {
		return nil, nil
	}

	instance, ok := constant.target.(InstanceTarget)
	if !ok {
		return nil, nil
	}
	value, ok := instance.Instance.(string)
	if !ok {
		return nil, nil
	}

	converter, err := i.state.Converter(value, key.Type)
	if err != nil {
		return nil, err
	}
	if converter == nil {
		return nil, nil
	}

	converted, err := converter.Converter.Convert(value, key.Type)
	switch {
	case err != nil:
		return nil, Message{Source: converter.Source, Err: ConversionError{Value: value, Type: key.Type, Cause: err}}
	case converted == nil:
		return nil, Message{Source: converter.Source, Err: ConversionError{Value: value, Type: key.Type, Cause: errNilConversion}}
	case !reflect.TypeOf(converted).AssignableTo(key.Type):
		return nil, Message{Source: converter.Source, Err: ConversionError{
			Value: value,
			Type:  key.Type,
			Cause: TypeMismatchError{Expected: key.Type, Actual: reflect.TypeOf(converted), Context: "converter result"},
		}}
	}

	return &jitPlan{
		target:  ConvertedConstantTarget{Value: converted, SourceKey: sourceKey},
		source:  constant.source,
		deps:    []Dependency{{Key: sourceKey}},
		scoping: Unscoped,
		level:   i.converterLevel(converter),
	}, nil
}

// converterLevel returns the level that registered converter.
func (i *Injector) converterLevel(converter *TypeConverterBinding) int {
	for inj := i; inj != nil; inj = inj.parent {
		for _, c := range inj.state.converters {
			if c == converter {
				return inj.level
			}
		}
	}
	return 0
}

// ownerLevel returns the deepest level at which one of deps resolves.
func (i *Injector) ownerLevel(deps []Dependency, visiting map[Key]bool) int {
	level := 0
	for _, dep := range deps {
		if l := i.levelOf(dep.Key, visiting); l > level {
			level = l
		}
	}
	return level
}

// levelOf returns the level whose binding would serve key for this injector.
// Keys that cannot be resolved count as the root; validation reports them.
func (i *Injector) levelOf(key Key, visiting map[Key]bool) int {
	for inj := i; inj != nil; inj = inj.parent {
		if _, ok := inj.state.bindings[key]; ok {
			return inj.level
		}
	}

	i.state.lock.RLock()
	b, ok := i.state.jitBinding(key)
	i.state.lock.RUnlock()
	if ok {
		return b.owner.level
	}

	if visiting[key] {
		return 0
	}
	visiting[key] = true

	plan, err := i.planJIT(key)
	if err != nil {
		return 0
	}
	return max(plan.level, i.ownerLevel(plan.deps, visiting))
}

// checkDependencies verifies that every required dependency of b resolves.
func (i *Injector) checkDependencies(b *Binding) error {
	errs := NewErrors().WithSource(b.source)
	for _, dep := range b.deps {
		if dep.Optional {
			continue
		}
		if _, err := i.bindingFor(dep.Key); err != nil {
			errs.Add(attribute(err, dep, b.source))
		}
	}
	return errs.Err()
}

// removeJIT forgets a just-in-time binding whose dependencies failed.
func (i *Injector) removeJIT(b *Binding) {
	i.state.lock.Lock()
	defer i.state.lock.Unlock()

	for inj := i; inj != nil; inj = inj.parent {
		if inj.state.jit[b.key] == b {
			delete(inj.state.jit, b.key)
		}
	}
}

func (i *Injector) ancestorAt(level int) *Injector {
	inj := i
	for inj.level > level {
		inj = inj.parent
	}
	return inj
}
