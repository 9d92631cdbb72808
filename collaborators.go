package binder

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/junioryono/binder/internal/reflection"
)

// In marks a parameter object. A constructor or provider function whose
// only parameter is a struct embedding In receives one dependency per
// exported field.
//
//	type ServiceParams struct {
//	    binder.In
//
//	    Database *sql.DB
//	    Cache    Cache  `name:"redis"`
//	    Logger   Logger `optional:"true"`
//	}
type In = reflection.In

// InjectionPoints discovers how types are constructed and injected.
type InjectionPoints interface {
	// Constructor returns how to build t, or an error if t cannot be built.
	Constructor(t reflect.Type) (*ConstructorPoint, error)

	// Function analyzes a provider function whose parameters are dependencies.
	Function(fn any) (*ConstructorPoint, error)

	// Members returns the fields of t that are injected after construction.
	Members(t reflect.Type) ([]MemberPoint, error)

	// ImplementedBy returns the default implementation of an interface.
	ImplementedBy(t reflect.Type) (reflect.Type, bool)

	// ImplicitScope returns the scope t declares for itself.
	ImplicitScope(t reflect.Type) (ScopeID, bool)
}

// ConstructorInvoker builds instances from a constructor point and its
// resolved arguments.
type ConstructorInvoker interface {
	Construct(point *ConstructorPoint, args []reflect.Value) (reflect.Value, error)
}

// ConstructorPoint describes how to build a type.
type ConstructorPoint struct {
	// Type is the type produced.
	Type reflect.Type

	Dependencies []Dependency

	// Handle is private to the InjectionPoints implementation that created it.
	Handle any
}

// MemberPoint is a field injected after construction.
type MemberPoint struct {
	Field      string
	Index      []int
	Dependency Dependency
}

// defaultInjectionPoints is the reflection-backed InjectionPoints.
type defaultInjectionPoints struct {
	analyzer *reflection.Analyzer
}

var _ InjectionPoints = (*defaultInjectionPoints)(nil)

func newDefaultInjectionPoints(analyzer *reflection.Analyzer) *defaultInjectionPoints {
	return &defaultInjectionPoints{analyzer: analyzer}
}

func (d *defaultInjectionPoints) Constructor(t reflect.Type) (*ConstructorPoint, error) {
	info, err := d.analyzer.Constructor(t)
	if err != nil {
		if errors.Is(err, reflection.ErrNoConstructor) {
			return nil, fmt.Errorf("%w: %s", ErrNotConstructible, formatType(t))
		}
		return nil, err
	}
	return constructorPoint(info), nil
}

func (d *defaultInjectionPoints) Function(fn any) (*ConstructorPoint, error) {
	info, err := d.analyzer.Analyze(fn)
	if err != nil {
		return nil, err
	}
	return constructorPoint(info), nil
}

func (d *defaultInjectionPoints) Members(t reflect.Type) ([]MemberPoint, error) {
	fields, err := d.analyzer.Members(t)
	if err != nil {
		return nil, err
	}

	points := make([]MemberPoint, len(fields))
	for i, f := range fields {
		points[i] = MemberPoint{
			Field: f.Field,
			Index: f.Index,
			Dependency: Dependency{
				Key:      keyFor(f.Type, f.Name),
				Optional: f.Optional,
				Site:     fmt.Sprintf("field %s of %s", f.Field, formatType(t)),
			},
		}
	}
	return points, nil
}

func (d *defaultInjectionPoints) ImplementedBy(t reflect.Type) (reflect.Type, bool) {
	return d.analyzer.Implementation(t)
}

func (d *defaultInjectionPoints) ImplicitScope(t reflect.Type) (ScopeID, bool) {
	scope, ok := d.analyzer.ImplicitScope(t)
	return ScopeID(scope), ok
}

func constructorPoint(info *reflection.ConstructorInfo) *ConstructorPoint {
	point := &ConstructorPoint{
		Type:         info.Type,
		Dependencies: make([]Dependency, len(info.Parameters)),
		Handle:       info,
	}

	for i, param := range info.Parameters {
		site := fmt.Sprintf("parameter %d of %s", param.Index, formatType(info.Func.Type()))
		if param.Field != "" {
			site = fmt.Sprintf("field %s of %s", param.Field, formatType(info.Func.Type().In(0)))
		}

		point.Dependencies[i] = Dependency{
			Key:      keyFor(param.Type, param.Name),
			Optional: param.Optional,
			Site:     site,
		}
	}

	return point
}

func keyFor(t reflect.Type, name string) Key {
	if name == "" {
		return NewKey(t)
	}
	return NewKey(t, Named(name))
}

// defaultInvoker is the reflection-backed ConstructorInvoker.
type defaultInvoker struct {
	invoker *reflection.Invoker
}

var _ ConstructorInvoker = (*defaultInvoker)(nil)

func (d *defaultInvoker) Construct(point *ConstructorPoint, args []reflect.Value) (reflect.Value, error) {
	info, ok := point.Handle.(*reflection.ConstructorInfo)
	if !ok {
		return reflect.Value{}, fmt.Errorf("constructor point for %s was not created by the default injection points", formatType(point.Type))
	}

	v, err := d.invoker.Invoke(info, args)
	if err != nil {
		var panicErr *reflection.PanicError
		if errors.As(err, &panicErr) {
			return reflect.Value{}, ConstructorPanicError{
				Constructor: panicErr.Constructor,
				Panic:       panicErr.Panic,
				Stack:       panicErr.Stack,
			}
		}
		return reflect.Value{}, err
	}

	return v, nil
}
