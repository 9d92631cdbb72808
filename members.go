package binder

import (
	"fmt"
	"reflect"
)

// MembersInjector injects the fields of existing instances of one type.
type MembersInjector struct {
	injector  *Injector
	typ       reflect.Type
	members   []MemberPoint
	listeners []InjectionListener
}

// Type returns the type whose members are injected.
func (m *MembersInjector) Type() reflect.Type { return m.typ }

// InjectionPoints returns the injected fields.
func (m *MembersInjector) InjectionPoints() []MemberPoint {
	return append([]MemberPoint(nil), m.members...)
}

// InjectMembers injects the fields of instance, which must be a non-nil
// pointer of the injector's type.
func (m *MembersInjector) InjectMembers(instance any) error {
	if err := m.injector.checkOpen(); err != nil {
		return err
	}

	v := reflect.ValueOf(instance)
	if !v.IsValid() || v.Type() != m.typ {
		return newProvisionError(TypeMismatchError{Expected: m.typ, Actual: reflect.TypeOf(instance), Context: "injecting members"})
	}

	p := newProvisioning(m.injector)
	return newProvisionError(m.inject(p, v, UnknownSource))
}

// inject resolves every member and then notifies injection listeners.
func (m *MembersInjector) inject(p *provisioning, v reflect.Value, source Source) error {
	if len(m.members) == 0 && len(m.listeners) == 0 {
		return nil
	}

	if len(m.members) > 0 && (v.Kind() != reflect.Pointer || v.IsNil()) {
		return Message{Source: source, Err: fmt.Errorf("%w: cannot inject members of %s", ErrNilTarget, formatType(m.typ))}
	}

	errs := NewErrors().WithSource(source)

	for _, member := range m.members {
		value, err := p.resolve(m.injector, member.Dependency, source)
		if err != nil {
			errs.Add(err)
			continue
		}

		field, err := v.Elem().FieldByIndexErr(member.Index)
		if err != nil {
			errs.Add(fmt.Errorf("field %s of %s: %w", member.Field, formatType(m.typ), err))
			continue
		}
		field.Set(value)
	}

	if err := errs.Err(); err != nil {
		return err
	}

	instance := v.Interface()
	for _, l := range m.listeners {
		if err := l(instance); err != nil {
			return Message{Source: source, Err: ProvisionFailedError{Key: NewKey(m.typ), Cause: err}}
		}
	}

	return nil
}

// membersInjectorFor returns the cached members injector for t, creating
// it and notifying type listeners on first use. Listeners run without
// membersMu held, so they may call back into the injector.
func (i *Injector) membersInjectorFor(t reflect.Type) (*MembersInjector, error) {
	if m, ok := i.cachedMembersInjector(t); ok {
		return m, nil
	}

	v, err, _ := i.membersGroup.Do(fmt.Sprintf("%p", t), func() (any, error) {
		if m, ok := i.cachedMembersInjector(t); ok {
			return m, nil
		}

		m, err := i.newMembersInjector(t)
		if err != nil {
			return nil, err
		}

		i.membersMu.Lock()
		i.membersInjectors[t] = m
		i.membersMu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*MembersInjector), nil
}

func (i *Injector) cachedMembersInjector(t reflect.Type) (*MembersInjector, bool) {
	i.membersMu.Lock()
	defer i.membersMu.Unlock()
	m, ok := i.membersInjectors[t]
	return m, ok
}

func (i *Injector) newMembersInjector(t reflect.Type) (*MembersInjector, error) {
	members, err := i.opts.points.Members(t)
	if err != nil {
		return nil, err
	}

	m := &MembersInjector{injector: i, typ: t, members: members}

	errs := NewErrors()
	for _, tl := range i.state.TypeListeners() {
		if !tl.Matcher.Matches(t) {
			continue
		}

		encounter := &TypeEncounter{typ: t, errs: errs.WithSource(tl.Source)}
		tl.Listener.Hear(t, encounter)
		m.listeners = append(m.listeners, encounter.listeners...)
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
