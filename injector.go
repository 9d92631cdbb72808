package binder

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Injector builds object graphs from the bindings of its modules.
//
// An injector is created from modules in one pass: every declaration is
// processed, every error is collected, and the injector is returned only if
// the configuration is valid. Afterwards it is safe for concurrent use.
//
// Example:
//
//	injector, err := binder.CreateInjector(
//	    binder.ModuleFunc(func(b *binder.Binder) {
//	        binder.Bind[Logger](b).To(binder.KeyOf[*ConsoleLogger]())
//	        binder.Bind[*Database](b).In(binder.SingletonScope)
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer injector.Close()
//
//	db, err := binder.Get[*Database](injector)
type Injector struct {
	id     string
	parent *Injector
	level  int

	state     *State
	opts      *options
	logger    *zap.Logger
	lifecycle *lifecycleManager

	// jitGroup is shared by the whole hierarchy.
	jitGroup *singleflight.Group

	membersMu        sync.Mutex
	membersInjectors map[reflect.Type]*MembersInjector
	membersGroup     singleflight.Group

	closed atomic.Bool
}

// CreateInjector creates an injector from modules with default options.
func CreateInjector(modules ...Module) (*Injector, error) {
	return NewInjector(modules)
}

// NewInjector creates an injector from modules.
//
// Example:
//
//	logger, _ := zap.NewDevelopment()
//	injector, err := binder.NewInjector(
//	    []binder.Module{AppModule},
//	    binder.WithStage(binder.Production),
//	    binder.WithLogger(logger),
//	)
func NewInjector(modules []Module, opts ...Option) (*Injector, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt.apply(o)
		}
	}

	errs := NewErrors()
	o.collaborators(errs)
	if errs.HasErrors() {
		return nil, newCreationError(errs)
	}

	return newInjector(nil, o, modules)
}

// CreateChildInjector creates an injector that inherits every binding,
// scope and aspect of i. The child's bindings shadow the parent's.
func (i *Injector) CreateChildInjector(modules ...Module) (*Injector, error) {
	if err := i.checkOpen(); err != nil {
		return nil, err
	}
	return newInjector(i, i.opts, modules)
}

func newInjector(parent *Injector, opts *options, modules []Module) (*Injector, error) {
	i := &Injector{
		id:               uuid.NewString(),
		parent:           parent,
		opts:             opts,
		lifecycle:        newLifecycleManager(),
		membersInjectors: make(map[reflect.Type]*MembersInjector),
	}

	if parent != nil {
		i.level = parent.level + 1
		i.state = newState(parent.state)
		i.jitGroup = parent.jitGroup
	} else {
		i.state = newState(nil)
		i.jitGroup = &singleflight.Group{}
	}

	i.logger = opts.logger.Named("binder").With(
		zap.String("injector", i.id),
		zap.Int("level", i.level),
	)

	errs := NewErrors()
	newProcessor(i, errs).process(Elements(opts.stage, modules...))

	if errs.HasErrors() {
		i.logger.Warn("injector creation failed", zap.Int("errors", errs.Len()))
		if err := i.lifecycle.dispose(context.Background()); err != nil {
			i.logger.Warn("disposing partially created injector", zap.Error(err))
		}
		return nil, newCreationError(errs)
	}

	i.logger.Debug("injector created",
		zap.Int("bindings", len(i.state.order)),
		zap.Stringer("stage", opts.stage),
	)

	return i, nil
}

// ID returns the unique identifier of the injector.
func (i *Injector) ID() string { return i.id }

// Parent returns the parent injector, or nil for a root injector.
func (i *Injector) Parent() *Injector { return i.parent }

// State returns the bindings and configuration of this level.
func (i *Injector) State() *State { return i.state }

// Stage returns the stage the injector was created in.
func (i *Injector) Stage() Stage { return i.opts.stage }

// Binding returns the binding for key, creating a just-in-time binding if
// necessary.
func (i *Injector) Binding(key Key) (*Binding, error) {
	b, err := i.bindingFor(key)
	if err != nil {
		return nil, newProvisionError(attribute(err, Dependency{Key: key}, UnknownSource))
	}
	return b, nil
}

// ExistingBinding returns the explicit or already created binding for key
// without creating one.
func (i *Injector) ExistingBinding(key Key) (*Binding, bool) {
	if b, ok := i.state.ExplicitBinding(key); ok {
		return b, true
	}

	i.state.lock.RLock()
	defer i.state.lock.RUnlock()
	return i.state.jitBinding(key)
}

// ExplicitBindingsThisLevel returns the bindings declared for this
// injector, in declaration order.
func (i *Injector) ExplicitBindingsThisLevel() []*Binding {
	return i.state.ExplicitBindingsThisLevel()
}

// FindBindingsByType returns the bindings declared at this level whose key
// has type t.
func (i *Injector) FindBindingsByType(t reflect.Type) []*Binding {
	var out []*Binding
	for _, b := range i.state.ExplicitBindingsThisLevel() {
		if b.key.Type == t {
			out = append(out, b)
		}
	}
	return out
}

// Instance provisions an instance for key.
func (i *Injector) Instance(key Key) (any, error) {
	if err := i.checkOpen(); err != nil {
		return nil, err
	}

	b, err := i.Binding(key)
	if err != nil {
		return nil, err
	}
	return i.provisionBinding(b)
}

// Provider returns a provider for key. The binding is resolved now; each
// call to Get provisions a new instance according to the binding's scope.
func (i *Injector) Provider(key Key) (Provider, error) {
	if err := i.checkOpen(); err != nil {
		return nil, err
	}

	b, err := i.Binding(key)
	if err != nil {
		return nil, err
	}
	return b.Provider(), nil
}

// MembersInjector returns the members injector for t.
func (i *Injector) MembersInjector(t reflect.Type) (*MembersInjector, error) {
	if err := i.checkOpen(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrKeyTypeNil
	}

	m, err := i.membersInjectorFor(t)
	if err != nil {
		return nil, newProvisionError(err)
	}
	return m, nil
}

// InjectMembers injects the tagged fields of instance, a non-nil pointer
// to a struct.
//
// Example:
//
//	type Handler struct {
//	    Users  UserService `inject:""`
//	    Logger Logger      `inject:"audit" optional:"true"`
//	}
//
//	h := &Handler{}
//	err := injector.InjectMembers(h)
func (i *Injector) InjectMembers(instance any) error {
	if instance == nil {
		return fmt.Errorf("%w: inject members", ErrNilTarget)
	}

	m, err := i.MembersInjector(reflect.TypeOf(instance))
	if err != nil {
		return err
	}
	return m.InjectMembers(instance)
}

// Close disposes singletons created by this injector in reverse creation
// order. Closing twice is a no-op. Child injectors stop working once an
// ancestor is closed, but their singletons are only disposed by closing
// the child itself.
func (i *Injector) Close() error {
	return i.CloseContext(context.Background())
}

// CloseContext is like Close but passes ctx to DisposableWithContext singletons.
func (i *Injector) CloseContext(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}

	i.logger.Debug("closing injector")
	return i.lifecycle.dispose(ctx)
}

// IsClosed reports whether the injector or one of its ancestors was closed.
func (i *Injector) IsClosed() bool {
	return i.checkOpen() != nil
}

func (i *Injector) checkOpen() error {
	for inj := i; inj != nil; inj = inj.parent {
		if inj.closed.Load() {
			return ErrInjectorClosed
		}
	}
	return nil
}

// provisionBinding runs b in a new provisioning.
func (i *Injector) provisionBinding(b *Binding) (any, error) {
	if err := i.checkOpen(); err != nil {
		return nil, err
	}

	p := newProvisioning(i)
	v, err := p.provide(b, Dependency{Key: b.key})
	if err != nil {
		return nil, newProvisionError(err)
	}
	return v, nil
}

// injectRequest injects the members of instance on behalf of a declaration.
func (i *Injector) injectRequest(source Source, instance any) error {
	m, err := i.membersInjectorFor(reflect.TypeOf(instance))
	if err != nil {
		return NewErrors().WithSource(source).Add(err).Err()
	}
	return m.inject(newProvisioning(i), reflect.ValueOf(instance), source)
}

func (i *Injector) String() string {
	return fmt.Sprintf("Injector{id=%s, level=%d, bindings=%d}", i.id, i.level, len(i.state.order))
}
