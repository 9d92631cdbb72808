package binder

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Matcher selects types for converters, interceptors and listeners.
type Matcher interface {
	Matches(t reflect.Type) bool
	String() string
}

type matcher struct {
	desc string
	fn   func(reflect.Type) bool
}

func (m matcher) Matches(t reflect.Type) bool { return m.fn(t) }
func (m matcher) String() string             { return m.desc }

// MatcherFunc creates a Matcher described by desc.
func MatcherFunc(desc string, fn func(reflect.Type) bool) Matcher {
	return matcher{desc: desc, fn: fn}
}

// Any matches every type.
func Any() Matcher {
	return matcher{desc: "any()", fn: func(reflect.Type) bool { return true }}
}

// Only matches exactly t.
func Only(t reflect.Type) Matcher {
	return matcher{
		desc: fmt.Sprintf("only(%s)", formatType(t)),
		fn:   func(candidate reflect.Type) bool { return candidate == t },
	}
}

// OnlyType matches exactly T.
func OnlyType[T any]() Matcher {
	return Only(typeOf[T]())
}

// SubtypesOf matches types assignable to t, including interfaces implemented.
func SubtypesOf(t reflect.Type) Matcher {
	return matcher{
		desc: fmt.Sprintf("subtypesOf(%s)", formatType(t)),
		fn:   func(candidate reflect.Type) bool { return candidate.AssignableTo(t) },
	}
}

// ========================================
// Type converters
// ========================================

// TypeConverter converts string constants to other types.
type TypeConverter interface {
	Convert(value string, to reflect.Type) (any, error)
}

// TypeConverterFunc adapts a function to TypeConverter.
type TypeConverterFunc func(value string, to reflect.Type) (any, error)

// Convert calls f.
func (f TypeConverterFunc) Convert(value string, to reflect.Type) (any, error) {
	return f(value, to)
}

// TypeConverterBinding registers a converter for matching types.
type TypeConverterBinding struct {
	Source    Source
	Matcher   Matcher
	Converter TypeConverter
}

// builtInConverters convert constants to primitive types.
func builtInConverters() []*TypeConverterBinding {
	parse := func(t reflect.Type, fn func(string) (any, error)) *TypeConverterBinding {
		return &TypeConverterBinding{
			Source:  BuiltInSource,
			Matcher: Only(t),
			Converter: TypeConverterFunc(func(value string, _ reflect.Type) (any, error) {
				return fn(value)
			}),
		}
	}

	intConverter := func(t reflect.Type, bits int) *TypeConverterBinding {
		return parse(t, func(s string) (any, error) {
			n, err := strconv.ParseInt(s, 10, bits)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(n).Convert(t).Interface(), nil
		})
	}

	uintConverter := func(t reflect.Type, bits int) *TypeConverterBinding {
		return parse(t, func(s string) (any, error) {
			n, err := strconv.ParseUint(s, 10, bits)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(n).Convert(t).Interface(), nil
		})
	}

	return []*TypeConverterBinding{
		intConverter(reflect.TypeOf(int(0)), strconv.IntSize),
		intConverter(reflect.TypeOf(int8(0)), 8),
		intConverter(reflect.TypeOf(int16(0)), 16),
		intConverter(reflect.TypeOf(int32(0)), 32),
		intConverter(reflect.TypeOf(int64(0)), 64),
		uintConverter(reflect.TypeOf(uint(0)), strconv.IntSize),
		uintConverter(reflect.TypeOf(uint8(0)), 8),
		uintConverter(reflect.TypeOf(uint16(0)), 16),
		uintConverter(reflect.TypeOf(uint32(0)), 32),
		uintConverter(reflect.TypeOf(uint64(0)), 64),
		parse(reflect.TypeOf(float32(0)), func(s string) (any, error) {
			f, err := strconv.ParseFloat(s, 32)
			return float32(f), err
		}),
		parse(reflect.TypeOf(float64(0)), func(s string) (any, error) {
			return strconv.ParseFloat(s, 64)
		}),
		parse(reflect.TypeOf(false), func(s string) (any, error) {
			return strconv.ParseBool(s)
		}),
		parse(reflect.TypeOf(time.Duration(0)), func(s string) (any, error) {
			return time.ParseDuration(s)
		}),
	}
}

// ========================================
// Interceptors
// ========================================

// Interceptor wraps a constructed instance. It returns the instance to
// use in its place, which must still be assignable to the bound key.
type Interceptor func(instance any) (any, error)

// InterceptorBinding applies an interceptor to constructed instances of
// matching keys.
type InterceptorBinding struct {
	Source      Source
	Matcher     Matcher
	Interceptor Interceptor
}

// ========================================
// Listeners
// ========================================

// InjectionListener is notified after an instance's members are injected.
type InjectionListener func(instance any) error

// TypeEncounter lets a TypeListener act on a type the injector is
// preparing to inject.
type TypeEncounter struct {
	typ       reflect.Type
	errs      *Errors
	listeners []InjectionListener
}

// Type returns the encountered type.
func (e *TypeEncounter) Type() reflect.Type { return e.typ }

// Register adds a listener called for each injected instance of the type.
func (e *TypeEncounter) Register(l InjectionListener) {
	if l != nil {
		e.listeners = append(e.listeners, l)
	}
}

// AddError reports a configuration error for the type.
func (e *TypeEncounter) AddError(err error) {
	e.errs.Add(err)
}

// TypeListener hears about types the injector constructs or injects.
type TypeListener interface {
	Hear(t reflect.Type, encounter *TypeEncounter)
}

// TypeListenerFunc adapts a function to TypeListener.
type TypeListenerFunc func(t reflect.Type, encounter *TypeEncounter)

// Hear calls f.
func (f TypeListenerFunc) Hear(t reflect.Type, encounter *TypeEncounter) {
	f(t, encounter)
}

// TypeListenerBinding registers a type listener for matching types.
type TypeListenerBinding struct {
	Source   Source
	Matcher  Matcher
	Listener TypeListener
}

// ProvisionListener observes the provisioning of matching bindings.
// It may call invocation.Provision to run code around construction.
type ProvisionListener interface {
	OnProvision(invocation *ProvisionInvocation) error
}

// ProvisionListenerFunc adapts a function to ProvisionListener.
type ProvisionListenerFunc func(invocation *ProvisionInvocation) error

// OnProvision calls f.
func (f ProvisionListenerFunc) OnProvision(invocation *ProvisionInvocation) error {
	return f(invocation)
}

// ProvisionListenerBinding registers a provision listener for bindings
// whose key type matches.
type ProvisionListenerBinding struct {
	Source   Source
	Matcher  Matcher
	Listener ProvisionListener
}

// ProvisionInvocation is a single provisioning observed by listeners.
type ProvisionInvocation struct {
	binding   *Binding
	listeners []*ProvisionListenerBinding
	next      int
	provision func() (any, error)

	done   bool
	result any
	err    error
}

// Binding returns the binding being provisioned.
func (inv *ProvisionInvocation) Binding() *Binding { return inv.binding }

// Provision runs the remaining listeners and the provisioning itself.
// Later calls return the first result.
func (inv *ProvisionInvocation) Provision() (any, error) {
	for !inv.done && inv.next < len(inv.listeners) {
		l := inv.listeners[inv.next]
		inv.next++

		if err := l.Listener.OnProvision(inv); err != nil {
			inv.result, inv.err, inv.done = nil, Message{Source: l.Source, Err: ProvisionFailedError{Key: inv.binding.key, Cause: err}}, true
		}
	}

	if !inv.done {
		inv.result, inv.err = inv.provision()
		inv.done = true
	}

	return inv.result, inv.err
}

// provisionListenerFactory notifies listeners around the unscoped factory.
type provisionListenerFactory struct {
	binding   *Binding
	listeners []*ProvisionListenerBinding
	inner     internalFactory
}

func (f *provisionListenerFactory) get(p *provisioning, dep Dependency) (any, error) {
	inv := &ProvisionInvocation{
		binding:   f.binding,
		listeners: f.listeners,
		provision: func() (any, error) { return f.inner.get(p, dep) },
	}
	return inv.Provision()
}
