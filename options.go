package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/junioryono/binder/internal/reflection"
)

// DefaultMaxDepth is the default limit on nested provisioning.
const DefaultMaxDepth = 100

// Stage tunes the injector for the environment it runs in.
type Stage int

const (
	// Development creates singletons lazily so startup stays fast.
	Development Stage = iota

	// Production creates every explicitly bound singleton with the injector,
	// so configuration and construction errors surface at startup.
	Production
)

// String returns the string representation of the Stage.
func (s Stage) String() string {
	switch s {
	case Development:
		return "Development"
	case Production:
		return "Production"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IsValid checks if the stage is valid.
func (s Stage) IsValid() bool {
	return s >= Development && s <= Production
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Development", "development":
		*s = Development
	case "Production", "production":
		*s = Production
	default:
		return fmt.Errorf("invalid stage %q", string(text))
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(str))
}

// Option configures injector creation.
type Option interface {
	apply(*options)
}

// optionFunc adapts a function to Option.
type optionFunc func(*options)

func (f optionFunc) apply(opts *options) {
	f(opts)
}

// options holds injector configuration. Child injectors share their root's options.
type options struct {
	stage    Stage
	logger   *zap.Logger
	maxDepth int

	points  InjectionPoints
	invoker ConstructorInvoker
	proxies ProxyFactory

	constructors    []registration
	implementations []registration

	requireExplicitBindings bool
}

type registration struct {
	source Source
	value  any
	iface  reflect.Type
}

func defaultOptions() *options {
	return &options{
		stage:    Development,
		logger:   zap.NewNop(),
		maxDepth: DefaultMaxDepth,
	}
}

// collaborators fills in the default injection points, invoker and proxy
// factory and registers constructors and implementations with the default
// analyzer.
func (o *options) collaborators(errs *Errors) {
	if o.points == nil {
		analyzer := reflection.New()
		for _, r := range o.constructors {
			if err := analyzer.RegisterConstructor(r.value); err != nil {
				errs.WithSource(r.source).Add(err)
			}
		}
		for _, r := range o.implementations {
			if err := analyzer.RegisterImplementation(r.iface, r.value.(reflect.Type)); err != nil {
				errs.WithSource(r.source).Add(err)
			}
		}
		o.points = newDefaultInjectionPoints(analyzer)
	} else if len(o.constructors) > 0 || len(o.implementations) > 0 {
		errs.WithSource(BuiltInSource).Add(errors.New("WithConstructor and WithImplementation need the default injection points"))
	}

	if o.invoker == nil {
		o.invoker = &defaultInvoker{invoker: reflection.NewInvoker()}
	}
	if o.proxies == nil {
		o.proxies = NewProxies()
	}
}

// WithStage sets the stage. The default is Development.
func WithStage(stage Stage) Option {
	return optionFunc(func(o *options) {
		o.stage = stage
	})
}

// WithLogger sets the logger used for injector events. The default
// discards everything.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithMaxDepth limits how deeply provisioning may nest.
func WithMaxDepth(depth int) Option {
	return optionFunc(func(o *options) {
		if depth > 0 {
			o.maxDepth = depth
		}
	})
}

// WithInjectionPoints replaces the reflection-based injection point discovery.
func WithInjectionPoints(points InjectionPoints) Option {
	return optionFunc(func(o *options) {
		o.points = points
	})
}

// WithConstructorInvoker replaces the reflection-based constructor invoker.
func WithConstructorInvoker(invoker ConstructorInvoker) Option {
	return optionFunc(func(o *options) {
		o.invoker = invoker
	})
}

// WithProxies sets the factory used to break circular dependencies.
func WithProxies(proxies ProxyFactory) Option {
	return optionFunc(func(o *options) {
		o.proxies = proxies
	})
}

// WithoutCircularProxies reports every constructor cycle as an error.
func WithoutCircularProxies() Option {
	return optionFunc(func(o *options) {
		o.proxies = noProxies{}
	})
}

// WithConstructor registers fn as the constructor for its first result
// type. Its parameters become dependencies.
//
//	binder.WithConstructor(NewUserService) // func(*sql.DB, Logger) (*UserService, error)
func WithConstructor(fn any) Option {
	source := callerSource(1)
	return optionFunc(func(o *options) {
		o.constructors = append(o.constructors, registration{source: source, value: fn})
	})
}

// WithImplementation makes Impl the just-in-time implementation of the
// interface Iface.
func WithImplementation[Iface, Impl any]() Option {
	source := callerSource(1)
	return optionFunc(func(o *options) {
		o.implementations = append(o.implementations, registration{
			source: source,
			iface:  typeOf[Iface](),
			value:  typeOf[Impl](),
		})
	})
}

// RequireExplicitBindings disables just-in-time bindings except for
// provider functions and converted constants.
func RequireExplicitBindings() Option {
	return optionFunc(func(o *options) {
		o.requireExplicitBindings = true
	})
}

type noProxies struct{}

func (noProxies) CanProxy(reflect.Type) bool { return false }

func (noProxies) NewProxy(reflect.Type) (*CircularProxy, error) {
	return nil, errors.New("circular proxies are disabled")
}
