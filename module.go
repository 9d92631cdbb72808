package binder

import (
	"fmt"
	"reflect"
)

// Module contributes declarations to an injector.
type Module interface {
	Configure(b *Binder)
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(b *Binder)

// Configure calls f.
func (f ModuleFunc) Configure(b *Binder) {
	f(b)
}

// NewModule groups modules under a name. Installing two modules with the
// same name into one injector configures only the first.
//
// Example:
//
//	var DatabaseModule = binder.NewModule("database",
//	    binder.ModuleFunc(func(b *binder.Binder) {
//	        binder.Bind[*sql.DB](b).ToProviderFunc(OpenDatabase).In(binder.SingletonScope)
//	        binder.Bind[UserRepository](b).To(binder.KeyOf[*SQLUserRepository]())
//	    }),
//	)
//
//	var AppModule = binder.NewModule("app",
//	    DatabaseModule,
//	    CacheModule,
//	)
func NewModule(name string, modules ...Module) Module {
	return namedModule{name: name, modules: modules}
}

type namedModule struct {
	name    string
	modules []Module
}

type moduleName string

func (m namedModule) Configure(b *Binder) {
	for _, module := range m.modules {
		if module != nil {
			b.Install(module)
		}
	}
}

func (m namedModule) String() string {
	return fmt.Sprintf("Module(%q)", m.name)
}

// ========================================
// Declarations
// ========================================

// Declaration is a single configuration element recorded by a Binder.
// The set is closed; switch on the concrete type.
type Declaration interface {
	declarationSource() Source
}

// BindingDeclaration binds a key to a target.
type BindingDeclaration struct {
	Source  Source
	Key     Key
	Target  Target
	Scoping Scoping
}

// ScopeDeclaration binds a scope identity to a scope.
type ScopeDeclaration struct {
	Source Source
	ID     ScopeID
	Scope  Scope
}

// ErrorDeclaration reports an error found while configuring.
type ErrorDeclaration struct {
	Source Source
	Err    error
}

func (d *BindingDeclaration) declarationSource() Source      { return d.Source }
func (d *ScopeDeclaration) declarationSource() Source        { return d.Source }
func (d *ErrorDeclaration) declarationSource() Source        { return d.Source }
func (d *TypeConverterBinding) declarationSource() Source    { return d.Source }
func (d *InterceptorBinding) declarationSource() Source      { return d.Source }
func (d *TypeListenerBinding) declarationSource() Source     { return d.Source }
func (d *ProvisionListenerBinding) declarationSource() Source { return d.Source }
func (d *InjectionRequest) declarationSource() Source        { return d.Source }
func (d *StaticInjectionRequest) declarationSource() Source  { return d.Source }
func (d *ProviderLookup) declarationSource() Source          { return d.source }
func (d *MembersInjectorLookup) declarationSource() Source   { return d.source }

// Elements records the declarations of modules without creating an injector.
func Elements(stage Stage, modules ...Module) []Declaration {
	b := newBinder(stage)
	for _, m := range modules {
		if m != nil {
			b.Install(m)
		}
	}
	return b.rec.declarations
}

// ========================================
// Binder
// ========================================

type recorder struct {
	stage        Stage
	declarations []Declaration
	installed    map[any]struct{}
}

// Binder collects the declarations of modules.
//
// Every declaration remembers the file and line that made it; WithSource
// overrides that for declarations generated from other inputs.
type Binder struct {
	rec    *recorder
	source Source
}

func newBinder(stage Stage) *Binder {
	return &Binder{rec: &recorder{stage: stage, installed: make(map[any]struct{})}}
}

// sourceFor returns the override source or the location skip frames above
// the caller.
func (b *Binder) sourceFor(skip int) Source {
	if b.source != "" {
		return b.source
	}
	return callerSource(skip + 1)
}

func (b *Binder) record(d Declaration) {
	b.rec.declarations = append(b.rec.declarations, d)
}

// WithSource returns a binder whose declarations are attributed to source.
func (b *Binder) WithSource(source Source) *Binder {
	return &Binder{rec: b.rec, source: source}
}

// Stage returns the stage the injector is created in.
func (b *Binder) Stage() Stage {
	return b.rec.stage
}

// Bind declares a binding for key. Without a target the key's own type
// is constructed.
//
//	b.Bind(binder.KeyOf[Logger]()).To(binder.KeyOf[*ConsoleLogger]())
//	b.Bind(binder.KeyOf[string](binder.Named("dsn"))).ToInstance("postgres://localhost")
func (b *Binder) Bind(key Key) *BindingBuilder {
	return b.bind(key, b.sourceFor(1))
}

func (b *Binder) bind(key Key, source Source) *BindingBuilder {
	d := &BindingDeclaration{
		Source:  source,
		Key:     key,
		Target:  UntargettedTarget{},
		Scoping: NoScoping,
	}
	b.record(d)
	return &BindingBuilder{binder: b, decl: d}
}

// Bind declares a binding for T with an optional qualifier.
//
//	binder.Bind[Logger](b).To(binder.KeyOf[*ConsoleLogger]())
//	binder.Bind[*Cache](b, binder.Named("sessions")).In(binder.SingletonScope)
func Bind[T any](b *Binder, qualifier ...any) *BindingBuilder {
	return b.bind(KeyOf[T](qualifier...), b.sourceFor(1))
}

// BindConstant binds a string constant that can be injected as any type a
// registered converter accepts.
//
//	b.BindConstant(binder.Named("port"), "8080")
//	// int, uint16 or string keys annotated with Named("port") now resolve.
func (b *Binder) BindConstant(qualifier any, value string) {
	b.bind(KeyOf[string](qualifier), b.sourceFor(1)).ToInstance(value)
}

// BindScope makes scope available to bindings under id.
func (b *Binder) BindScope(id ScopeID, scope Scope) {
	b.record(&ScopeDeclaration{Source: b.sourceFor(1), ID: id, Scope: scope})
}

// ConvertToTypes registers a converter for string constants injected as
// matching types.
func (b *Binder) ConvertToTypes(m Matcher, converter TypeConverter) {
	b.record(&TypeConverterBinding{Source: b.sourceFor(1), Matcher: m, Converter: converter})
}

// BindInterceptor wraps constructed instances whose key type matches.
// Interceptors apply in declaration order with ancestors first, so later
// interceptors wrap earlier ones.
func (b *Binder) BindInterceptor(m Matcher, interceptor Interceptor) {
	b.record(&InterceptorBinding{Source: b.sourceFor(1), Matcher: m, Interceptor: interceptor})
}

// Intercept wraps constructed instances of exactly T.
//
//	binder.Intercept(b, func(s Service) (Service, error) {
//	    return &loggingService{next: s}, nil
//	})
func Intercept[T any](b *Binder, fn func(T) (T, error)) {
	b.record(&InterceptorBinding{
		Source:  b.sourceFor(1),
		Matcher: OnlyType[T](),
		Interceptor: func(instance any) (any, error) {
			typed, ok := instance.(T)
			if !ok {
				return nil, TypeMismatchError{Expected: typeOf[T](), Actual: reflect.TypeOf(instance), Context: "interceptor"}
			}
			return fn(typed)
		},
	})
}

// BindListener registers a listener for types the injector constructs or
// injects members into.
func (b *Binder) BindListener(m Matcher, listener TypeListener) {
	b.record(&TypeListenerBinding{Source: b.sourceFor(1), Matcher: m, Listener: listener})
}

// BindProvisionListener registers a listener for provisionings of bindings
// whose key type matches.
func (b *Binder) BindProvisionListener(m Matcher, listener ProvisionListener) {
	b.record(&ProvisionListenerBinding{Source: b.sourceFor(1), Matcher: m, Listener: listener})
}

// RequestInjection injects the members of instance when the injector is created.
func (b *Binder) RequestInjection(instance any) {
	b.record(&InjectionRequest{Source: b.sourceFor(1), Instance: instance})
}

// RequestStaticInjection assigns the variable target points to when the
// injector is created.
//
//	var defaultClock Clock
//	b.RequestStaticInjection(&defaultClock)
func (b *Binder) RequestStaticInjection(target any, qualifier ...any) {
	source := b.sourceFor(1)

	t := reflect.TypeOf(target)
	if t == nil || t.Kind() != reflect.Pointer || reflect.ValueOf(target).IsNil() {
		b.record(&ErrorDeclaration{Source: source, Err: fmt.Errorf("%w: static injection needs a non-nil pointer, got %T", ErrNilTarget, target)})
		return
	}

	b.record(&StaticInjectionRequest{Source: source, Target: target, Key: NewKey(t.Elem(), qualifier...)})
}

// GetProvider returns a provider for key that works once the injector exists.
func (b *Binder) GetProvider(key Key) *ProviderLookup {
	l := &ProviderLookup{source: b.sourceFor(1), key: key}
	b.record(l)
	return l
}

// GetMembersInjector returns a members injector for t that works once the
// injector exists.
func (b *Binder) GetMembersInjector(t reflect.Type) *MembersInjectorLookup {
	l := &MembersInjectorLookup{source: b.sourceFor(1), typ: t}
	b.record(l)
	return l
}

// Install configures module. A module installed twice is configured once
// when it is comparable or was created by NewModule.
func (b *Binder) Install(module Module) {
	if module == nil {
		return
	}

	var identity any
	if named, ok := module.(namedModule); ok {
		identity = moduleName(named.name)
	} else if v := reflect.ValueOf(module); v.Comparable() {
		identity = module
	}

	if identity != nil {
		if _, ok := b.rec.installed[identity]; ok {
			return
		}
		b.rec.installed[identity] = struct{}{}
	}

	source := b.sourceFor(1)
	defer func() {
		if r := recover(); r != nil {
			b.record(&ErrorDeclaration{Source: source, Err: fmt.Errorf("module %T panicked: %v", module, r)})
		}
	}()

	module.Configure(b)
}

// AddError reports err as a configuration error.
func (b *Binder) AddError(err error) {
	if err == nil {
		return
	}
	b.record(&ErrorDeclaration{Source: b.sourceFor(1), Err: err})
}

// ========================================
// BindingBuilder
// ========================================

// BindingBuilder sets the target and scope of a binding declaration.
type BindingBuilder struct {
	binder    *Binder
	decl      *BindingDeclaration
	targetSet bool
	scopeSet  bool
}

func (bb *BindingBuilder) setTarget(t Target) *BindingBuilder {
	if bb.targetSet {
		bb.binder.record(&ErrorDeclaration{
			Source: bb.decl.Source,
			Err:    fmt.Errorf("implementation for %s is already set", bb.decl.Key),
		})
		return bb
	}
	bb.targetSet = true
	bb.decl.Target = t
	return bb
}

func (bb *BindingBuilder) setScoping(s Scoping) {
	if bb.scopeSet {
		bb.binder.record(&ErrorDeclaration{
			Source: bb.decl.Source,
			Err:    fmt.Errorf("scope for %s is already set", bb.decl.Key),
		})
		return
	}
	bb.scopeSet = true
	bb.decl.Scoping = s
}

// To links the key to another key whose binding provides the instances.
func (bb *BindingBuilder) To(target Key) *BindingBuilder {
	return bb.setTarget(LinkedKeyTarget{TargetKey: target})
}

// ToInstance binds the key to a single value.
func (bb *BindingBuilder) ToInstance(instance any) {
	bb.setTarget(InstanceTarget{Instance: instance})
}

// ToProvider binds the key to a provider. The provider's members are
// injected when the injector is created.
func (bb *BindingBuilder) ToProvider(p Provider) *BindingBuilder {
	return bb.setTarget(ProviderInstanceTarget{Provider: p})
}

// ToProviderFunc binds the key to a function whose parameters are
// injected and whose first result is the instance.
//
//	binder.Bind[*sql.DB](b).ToProviderFunc(func(cfg *Config) (*sql.DB, error) {
//	    return sql.Open("postgres", cfg.DSN)
//	})
func (bb *BindingBuilder) ToProviderFunc(fn any) *BindingBuilder {
	return bb.setTarget(ProviderFuncTarget{Func: fn})
}

// ToProviderKey binds the key to the Provider bound under providerKey.
func (bb *BindingBuilder) ToProviderKey(providerKey Key) *BindingBuilder {
	return bb.setTarget(ProviderKeyTarget{ProviderKey: providerKey})
}

// In places the binding in the scope bound to id.
func (bb *BindingBuilder) In(id ScopeID) {
	bb.setScoping(ScopeAnnotation{ID: id})
}

// InScope places the binding in scope.
func (bb *BindingBuilder) InScope(scope Scope) {
	bb.setScoping(ScopeInstance{Scope: scope})
}

// AsEagerSingleton makes the binding a singleton created with the injector.
func (bb *BindingBuilder) AsEagerSingleton() {
	bb.setScoping(EagerSingleton)
}
