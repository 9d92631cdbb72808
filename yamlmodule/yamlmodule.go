// Package yamlmodule declares bindings from YAML documents.
//
// Go types cannot be named at runtime, so every type used by a document is
// registered first:
//
//	reg := yamlmodule.NewRegistry()
//	yamlmodule.Register[Logger](reg, "Logger")
//	yamlmodule.Register[*ConsoleLogger](reg, "ConsoleLogger")
//	reg.RegisterProvider("openDatabase", OpenDatabase)
//
//	cfg, err := yamlmodule.Parse("app.yaml", data, reg)
//	injector, err := binder.NewInjector([]binder.Module{cfg}, cfg.Options()...)
//
// A document looks like this:
//
//	stage: Production
//	constants:
//	  - name: port
//	    value: "8080"
//	bindings:
//	  - type: Logger
//	    to: ConsoleLogger
//	  - type: Database
//	    provider: openDatabase
//	    scope: Singleton
//	  - type: Cache
//	    eager: true
package yamlmodule

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/junioryono/binder"
)

var (
	// ErrUnknownType is returned for type names missing from the registry.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownProvider is returned for provider names missing from the registry.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrConflictingTargets is returned when a binding names more than one target.
	ErrConflictingTargets = errors.New("binding has more than one target")
)

// Registry maps the names used in documents to Go types and provider functions.
type Registry struct {
	mu        sync.RWMutex
	types     map[string]reflect.Type
	providers map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:     make(map[string]reflect.Type),
		providers: make(map[string]any),
	}
}

// Register makes T available under name.
func Register[T any](r *Registry, name string) {
	r.RegisterType(name, reflect.TypeOf((*T)(nil)).Elem())
}

// RegisterType makes t available under name.
func (r *Registry) RegisterType(name string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = t
}

// RegisterProvider makes a provider function available under name.
func (r *Registry) RegisterProvider(name string, fn any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = fn
}

// Type returns the type registered under name.
func (r *Registry) Type(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Provider returns the provider function registered under name.
func (r *Registry) Provider(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.providers[name]
	return fn, ok
}

// Constant is a string constant bound under Named(Name).
type Constant struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`

	line int
}

// UnmarshalYAML records the line of the entry.
func (c *Constant) UnmarshalYAML(value *yaml.Node) error {
	type plain Constant
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}
	c.line = value.Line
	return nil
}

// Binding is one binding entry. At most one of To, Provider and Value is set.
type Binding struct {
	Type string `yaml:"type"`
	Name string `yaml:"name,omitempty"`

	// To links to another registered type, optionally qualified by ToName.
	To     string `yaml:"to,omitempty"`
	ToName string `yaml:"toName,omitempty"`

	// Provider names a registered provider function.
	Provider string `yaml:"provider,omitempty"`

	// Value binds a string instance; the type must be string.
	Value *string `yaml:"value,omitempty"`

	Scope string `yaml:"scope,omitempty"`
	Eager bool   `yaml:"eager,omitempty"`

	line int
}

// UnmarshalYAML records the line of the entry.
func (b *Binding) UnmarshalYAML(value *yaml.Node) error {
	type plain Binding
	if err := value.Decode((*plain)(b)); err != nil {
		return err
	}
	b.line = value.Line
	return nil
}

// Document is the decoded form of a YAML module.
type Document struct {
	Stage     binder.Stage `yaml:"stage"`
	Constants []Constant   `yaml:"constants"`
	Bindings  []Binding    `yaml:"bindings"`
}

// resolved is a binding entry with its names looked up.
type resolved struct {
	source   binder.Source
	key      binder.Key
	target   binder.Key
	linked   bool
	provider any
	value    *string
	scope    binder.ScopeID
	eager    bool
}

// Config is a parsed document. It is a binder.Module.
type Config struct {
	name      string
	document  Document
	constants []Constant
	bindings  []resolved
}

var _ binder.Module = (*Config)(nil)

// Parse decodes data and resolves every name against r. name identifies
// the document in declaration sources, e.g. "app.yaml:12".
func Parse(name string, data []byte, r *Registry) (*Config, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return newConfig(name, doc, r)
}

// Read is like Parse but reads the document from reader.
func Read(name string, reader io.Reader, r *Registry) (*Config, error) {
	var doc Document
	if err := yaml.NewDecoder(reader).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return newConfig(name, doc, r)
}

func newConfig(name string, doc Document, r *Registry) (*Config, error) {
	c := &Config{name: name, document: doc, constants: doc.Constants}

	var errs error
	for _, entry := range doc.Bindings {
		rb, err := c.resolve(entry, r)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s:%d: %w", name, entry.line, err))
			continue
		}
		c.bindings = append(c.bindings, rb)
	}

	if errs != nil {
		return nil, errs
	}
	return c, nil
}

func (c *Config) resolve(entry Binding, r *Registry) (resolved, error) {
	rb := resolved{
		source: c.source(entry.line),
		scope:  binder.ScopeID(entry.Scope),
		eager:  entry.Eager,
		value:  entry.Value,
	}

	t, ok := r.Type(entry.Type)
	if !ok {
		return rb, fmt.Errorf("%w %q", ErrUnknownType, entry.Type)
	}
	rb.key = key(t, entry.Name)

	targets := 0
	if entry.To != "" {
		targets++
		to, ok := r.Type(entry.To)
		if !ok {
			return rb, fmt.Errorf("%w %q", ErrUnknownType, entry.To)
		}
		rb.target, rb.linked = key(to, entry.ToName), true
	}
	if entry.Provider != "" {
		targets++
		fn, ok := r.Provider(entry.Provider)
		if !ok {
			return rb, fmt.Errorf("%w %q", ErrUnknownProvider, entry.Provider)
		}
		rb.provider = fn
	}
	if entry.Value != nil {
		targets++
	}
	if targets > 1 {
		return rb, fmt.Errorf("%w: %s", ErrConflictingTargets, entry.Type)
	}

	return rb, nil
}

func (c *Config) source(line int) binder.Source {
	return binder.Source(fmt.Sprintf("%s:%d", c.name, line))
}

func key(t reflect.Type, name string) binder.Key {
	if name == "" {
		return binder.NewKey(t)
	}
	return binder.NewKey(t, binder.Named(name))
}

// Stage returns the stage the document asks for.
func (c *Config) Stage() binder.Stage {
	return c.document.Stage
}

// Options returns the injector options the document implies.
func (c *Config) Options() []binder.Option {
	return []binder.Option{binder.WithStage(c.document.Stage)}
}

// Configure declares the document's constants and bindings.
func (c *Config) Configure(b *binder.Binder) {
	for _, constant := range c.constants {
		b.WithSource(c.source(constant.line)).BindConstant(binder.Named(constant.Name), constant.Value)
	}

	for _, rb := range c.bindings {
		bb := b.WithSource(rb.source).Bind(rb.key)

		switch {
		case rb.linked:
			bb.To(rb.target)
		case rb.provider != nil:
			bb.ToProviderFunc(rb.provider)
		case rb.value != nil:
			bb.ToInstance(*rb.value)
		}

		if rb.scope != "" {
			bb.In(rb.scope)
		}
		if rb.eager {
			bb.AsEagerSingleton()
		}
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("yamlmodule(%s)", c.name)
}
