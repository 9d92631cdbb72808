package binder

import (
	"reflect"
	"sync"
)

// State holds the bindings and configuration of one injector level.
//
// A State is written while its injector is being created. Afterwards only
// the just-in-time binding map changes, always under the lock shared by the
// whole hierarchy.
type State struct {
	parent *State
	lock   *sync.RWMutex

	bindings map[Key]*Binding
	order    []Key

	scopes map[ScopeID]scopeBinding

	injectionRequests []*InjectionRequest
	staticRequests    []*StaticInjectionRequest
	providerLookups   []*ProviderLookup
	membersLookups    []*MembersInjectorLookup

	converters         []*TypeConverterBinding
	interceptors       []*InterceptorBinding
	typeListeners      []*TypeListenerBinding
	provisionListeners []*ProvisionListenerBinding

	// jit holds bindings created on demand and owned by this level.
	jit map[Key]*Binding
}

type scopeBinding struct {
	scope  Scope
	source Source
}

// InjectionRequest asks for members of an existing instance to be injected
// when the injector is created.
type InjectionRequest struct {
	Source   Source
	Instance any
}

// StaticInjectionRequest asks for a variable to be assigned when the
// injector is created.
type StaticInjectionRequest struct {
	Source Source

	// Target is a non-nil pointer to the variable.
	Target any
	Key    Key
}

// BindingDescription is a printable summary of a binding.
type BindingDescription struct {
	Key     string
	Source  Source
	Target  string
	Scoping string
}

func newState(parent *State) *State {
	s := &State{
		parent:   parent,
		bindings: make(map[Key]*Binding),
		scopes:   make(map[ScopeID]scopeBinding),
		jit:      make(map[Key]*Binding),
	}

	if parent != nil {
		s.lock = parent.lock
	} else {
		s.lock = &sync.RWMutex{}
	}

	return s
}

// Parent returns the parent level, or nil at the root.
func (s *State) Parent() *State { return s.parent }

// Lock returns the lock shared by every level of the hierarchy.
func (s *State) Lock() *sync.RWMutex { return s.lock }

// ExplicitBinding returns the binding declared for key at this level or an ancestor.
func (s *State) ExplicitBinding(key Key) (*Binding, bool) {
	for st := s; st != nil; st = st.parent {
		if b, ok := st.bindings[key]; ok {
			return b, true
		}
	}
	return nil, false
}

// ExplicitBindingsThisLevel returns this level's bindings in declaration order.
func (s *State) ExplicitBindingsThisLevel() []*Binding {
	out := make([]*Binding, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.bindings[k])
	}
	return out
}

// putBinding stores b. The caller has checked for duplicates.
func (s *State) putBinding(b *Binding) {
	if _, ok := s.bindings[b.key]; !ok {
		s.order = append(s.order, b.key)
	}
	s.bindings[b.key] = b
}

// ScopeBinding returns the scope bound to id at this level or an ancestor.
func (s *State) ScopeBinding(id ScopeID) (Scope, bool) {
	for st := s; st != nil; st = st.parent {
		if sb, ok := st.scopes[id]; ok {
			return sb.scope, true
		}
	}
	return nil, false
}

// ScopeBindingsThisLevel returns the scopes bound at this level.
func (s *State) ScopeBindingsThisLevel() map[ScopeID]Scope {
	out := make(map[ScopeID]Scope, len(s.scopes))
	for id, sb := range s.scopes {
		out[id] = sb.scope
	}
	return out
}

func (s *State) putScope(id ScopeID, scope Scope, source Source) {
	s.scopes[id] = scopeBinding{scope: scope, source: source}
}

// Converter returns the single converter matching t across every level.
// It returns nil when none matches and an AmbiguousConversionError when
// more than one does.
func (s *State) Converter(value string, t reflect.Type) (*TypeConverterBinding, error) {
	var found *TypeConverterBinding

	for st := s; st != nil; st = st.parent {
		for _, c := range st.converters {
			if !c.Matcher.Matches(t) {
				continue
			}
			if found != nil {
				return nil, AmbiguousConversionError{Value: value, Type: t, First: found.Source, Second: c.Source}
			}
			found = c
		}
	}

	return found, nil
}

// ConvertersThisLevel returns the converters registered at this level.
func (s *State) ConvertersThisLevel() []*TypeConverterBinding {
	return append([]*TypeConverterBinding(nil), s.converters...)
}

// Interceptors returns every interceptor binding, ancestors first.
func (s *State) Interceptors() []*InterceptorBinding {
	if s.parent == nil {
		return append([]*InterceptorBinding(nil), s.interceptors...)
	}
	return append(s.parent.Interceptors(), s.interceptors...)
}

// TypeListeners returns every type listener binding, ancestors first.
func (s *State) TypeListeners() []*TypeListenerBinding {
	if s.parent == nil {
		return append([]*TypeListenerBinding(nil), s.typeListeners...)
	}
	return append(s.parent.TypeListeners(), s.typeListeners...)
}

// ProvisionListeners returns every provision listener binding, ancestors first.
func (s *State) ProvisionListeners() []*ProvisionListenerBinding {
	if s.parent == nil {
		return append([]*ProvisionListenerBinding(nil), s.provisionListeners...)
	}
	return append(s.parent.ProvisionListeners(), s.provisionListeners...)
}

// InjectionRequestsThisLevel returns this level's member injection requests.
func (s *State) InjectionRequestsThisLevel() []*InjectionRequest {
	return append([]*InjectionRequest(nil), s.injectionRequests...)
}

// StaticInjectionRequestsThisLevel returns this level's static injection requests.
func (s *State) StaticInjectionRequestsThisLevel() []*StaticInjectionRequest {
	return append([]*StaticInjectionRequest(nil), s.staticRequests...)
}

// ProviderLookupsThisLevel returns this level's provider lookups.
func (s *State) ProviderLookupsThisLevel() []*ProviderLookup {
	return append([]*ProviderLookup(nil), s.providerLookups...)
}

// MembersInjectorLookupsThisLevel returns this level's members injector lookups.
func (s *State) MembersInjectorLookupsThisLevel() []*MembersInjectorLookup {
	return append([]*MembersInjectorLookup(nil), s.membersLookups...)
}

// jitBinding finds a just-in-time binding at this level or an ancestor.
// The caller holds the lock.
func (s *State) jitBinding(key Key) (*Binding, bool) {
	for st := s; st != nil; st = st.parent {
		if b, ok := st.jit[key]; ok {
			return b, true
		}
	}
	return nil, false
}

// Describe summarizes the bindings modules declared at this level, in
// declaration order. Built-in bindings are left out.
func (s *State) Describe() []BindingDescription {
	out := make([]BindingDescription, 0, len(s.order))
	for _, k := range s.order {
		b := s.bindings[k]
		if b.source == BuiltInSource {
			continue
		}
		out = append(out, BindingDescription{
			Key:     b.key.String(),
			Source:  b.source,
			Target:  b.target.String(),
			Scoping: b.scoping.String(),
		})
	}
	return out
}
