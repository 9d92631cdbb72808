package reflection

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// In marks a struct as a parameter object. A constructor whose only
// parameter embeds In receives one dependency per exported field.
type In struct{}

var (
	inType  = reflect.TypeOf((*In)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

var (
	// ErrNoConstructor is returned when a type cannot be built.
	ErrNoConstructor = errors.New("no constructor available")

	// ErrInvalidConstructor is returned for functions that cannot serve as constructors.
	ErrInvalidConstructor = errors.New("invalid constructor")
)

// Analyzer performs reflection-based analysis of constructors and types.
// It caches analysis results for performance.
type Analyzer struct {
	mu              sync.RWMutex
	constructors    map[reflect.Type]*ConstructorInfo
	implementations map[reflect.Type]reflect.Type
	members         map[reflect.Type][]FieldInfo
	scopes          map[reflect.Type]string
}

// ConstructorInfo contains analyzed information about a constructor function
// or an allocation constructor for a struct pointer type.
type ConstructorInfo struct {
	// Type is the type the constructor produces.
	Type reflect.Type

	// Func is the constructor function; invalid for allocation constructors.
	Func reflect.Value

	Parameters     []ParameterInfo
	IsParamObject  bool // Single parameter embedding In
	HasErrorReturn bool // Returns error as last value
}

// IsAllocation reports whether the constructor allocates a zero value
// instead of calling a function.
func (c *ConstructorInfo) IsAllocation() bool {
	return !c.Func.IsValid()
}

// ParameterInfo describes a constructor parameter or a field in an In struct.
type ParameterInfo struct {
	Type     reflect.Type
	Name     string // Qualifier name from the name tag, if any
	Field    string // Field name for In structs
	Index    int    // Parameter index or field index
	Optional bool   // From optional:"true" tag
}

// FieldInfo describes an injectable field of a struct.
type FieldInfo struct {
	Field    string
	Type     reflect.Type
	Index    []int
	Name     string // Qualifier name from the inject tag, if any
	Optional bool
}

// TagInfo contains parsed struct tag information.
type TagInfo struct {
	Inject   bool
	Optional bool
	Name     string
	Ignore   bool
}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{
		constructors:    make(map[reflect.Type]*ConstructorInfo),
		implementations: make(map[reflect.Type]reflect.Type),
		members:         make(map[reflect.Type][]FieldInfo),
		scopes:          make(map[reflect.Type]string),
	}
}

// Analyze analyzes a constructor function and extracts dependency information.
// The produced type is the first return value.
func (a *Analyzer) Analyze(constructor any) (*ConstructorInfo, error) {
	if constructor == nil {
		return nil, fmt.Errorf("%w: constructor cannot be nil", ErrInvalidConstructor)
	}

	val := reflect.ValueOf(constructor)
	if val.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: expected a function, got %v", ErrInvalidConstructor, val.Type())
	}

	// Check for nil function values (typed nil)
	if val.IsNil() {
		return nil, fmt.Errorf("%w: constructor cannot be nil", ErrInvalidConstructor)
	}

	fnType := val.Type()
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("%w: %v is variadic", ErrInvalidConstructor, fnType)
	}

	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) == errType {
			return nil, fmt.Errorf("%w: %v returns only an error", ErrInvalidConstructor, fnType)
		}
	case 2:
		if fnType.Out(1) != errType {
			return nil, fmt.Errorf("%w: second result of %v must be error", ErrInvalidConstructor, fnType)
		}
	default:
		return nil, fmt.Errorf("%w: %v must return a value and an optional error", ErrInvalidConstructor, fnType)
	}

	info := &ConstructorInfo{
		Type:           fnType.Out(0),
		Func:           val,
		HasErrorReturn: fnType.NumOut() == 2,
	}

	if err := a.analyzeParameters(info); err != nil {
		return nil, fmt.Errorf("failed to analyze parameters: %w", err)
	}

	return info, nil
}

// analyzeParameters analyzes function parameters or In struct fields.
func (a *Analyzer) analyzeParameters(info *ConstructorInfo) error {
	fnType := info.Func.Type()

	// Check for In parameter object
	if fnType.NumIn() == 1 && hasEmbeddedIn(fnType.In(0)) {
		info.IsParamObject = true
		return a.analyzeParamObject(info, fnType.In(0))
	}

	info.Parameters = make([]ParameterInfo, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		info.Parameters[i] = ParameterInfo{
			Type:  fnType.In(i),
			Index: i,
		}
	}

	return nil
}

// analyzeParamObject analyzes an In struct's fields.
func (a *Analyzer) analyzeParamObject(info *ConstructorInfo, structType reflect.Type) error {
	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("In parameter must be a struct value, got %v", structType)
	}

	params := make([]ParameterInfo, 0, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)

		if !field.IsExported() {
			continue
		}

		// Skip embedded In field itself
		if field.Anonymous && field.Type == inType {
			continue
		}

		tagInfo := parseFieldTags(field.Tag)
		if tagInfo.Ignore {
			continue
		}

		params = append(params, ParameterInfo{
			Type:     field.Type,
			Name:     tagInfo.Name,
			Field:    field.Name,
			Index:    i,
			Optional: tagInfo.Optional,
		})
	}

	info.Parameters = params
	return nil
}

// RegisterConstructor makes fn the constructor for its first return type.
func (a *Analyzer) RegisterConstructor(fn any) error {
	info, err := a.Analyze(fn)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.constructors[info.Type]; ok && !existing.IsAllocation() {
		return fmt.Errorf("%w: constructor for %v already registered", ErrInvalidConstructor, info.Type)
	}
	a.constructors[info.Type] = info
	return nil
}

// RegisterImplementation records impl as the default implementation of iface.
func (a *Analyzer) RegisterImplementation(iface, impl reflect.Type) error {
	if iface == nil || impl == nil {
		return errors.New("implementation types cannot be nil")
	}
	if iface.Kind() != reflect.Interface {
		return fmt.Errorf("%v is not an interface", iface)
	}
	if !impl.Implements(iface) {
		return fmt.Errorf("%v does not implement %v", impl, iface)
	}
	if impl == iface {
		return fmt.Errorf("%v cannot be its own implementation", iface)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.implementations[iface] = impl
	return nil
}

// Constructor returns the constructor for t. Registered constructors win;
// pointers to structs fall back to allocation.
func (a *Analyzer) Constructor(t reflect.Type) (*ConstructorInfo, error) {
	a.mu.RLock()
	info, ok := a.constructors[t]
	a.mu.RUnlock()
	if ok {
		return info, nil
	}

	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w for %v", ErrNoConstructor, t)
	}

	info = &ConstructorInfo{Type: t}

	a.mu.Lock()
	defer a.mu.Unlock()
	if cached, ok := a.constructors[t]; ok {
		return cached, nil
	}
	a.constructors[t] = info
	return info, nil
}

// Implementation returns the registered implementation of an interface.
func (a *Analyzer) Implementation(t reflect.Type) (reflect.Type, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	impl, ok := a.implementations[t]
	return impl, ok
}

// Members returns the injectable fields of a struct pointer type.
// Fields are injectable when exported and tagged with inject.
func (a *Analyzer) Members(t reflect.Type) ([]FieldInfo, error) {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, nil
	}

	a.mu.RLock()
	fields, ok := a.members[t]
	a.mu.RUnlock()
	if ok {
		return fields, nil
	}

	structType := t.Elem()
	for _, field := range reflect.VisibleFields(structType) {
		tagInfo := parseFieldTags(field.Tag)
		if !tagInfo.Inject || tagInfo.Ignore {
			continue
		}

		if !field.IsExported() {
			return nil, fmt.Errorf("field %s of %v is tagged for injection but not exported", field.Name, t)
		}

		fields = append(fields, FieldInfo{
			Field:    field.Name,
			Type:     field.Type,
			Index:    field.Index,
			Name:     tagInfo.Name,
			Optional: tagInfo.Optional,
		})
	}

	a.mu.Lock()
	a.members[t] = fields
	a.mu.Unlock()

	return fields, nil
}

// ImplicitScope returns the scope a type declares through a
// BinderScope method with a string-kinded result.
func (a *Analyzer) ImplicitScope(t reflect.Type) (string, bool) {
	a.mu.RLock()
	scope, ok := a.scopes[t]
	a.mu.RUnlock()
	if ok {
		return scope, scope != ""
	}

	scope = declaredScope(t)

	a.mu.Lock()
	a.scopes[t] = scope
	a.mu.Unlock()

	return scope, scope != ""
}

func declaredScope(t reflect.Type) (scope string) {
	method, ok := t.MethodByName("BinderScope")
	if !ok {
		return ""
	}

	mt := method.Type
	if mt.NumIn() != 1 || mt.NumOut() != 1 || mt.Out(0).Kind() != reflect.String {
		return ""
	}

	// The method is called on the zero value, so it must not touch its receiver.
	defer func() {
		if r := recover(); r != nil {
			scope = ""
		}
	}()

	return method.Func.Call([]reflect.Value{reflect.Zero(t)})[0].String()
}

// parseFieldTags parses struct field tags for DI-specific annotations.
//
//	Service *Service `inject:""`
//	Primary *DB      `inject:"primary"`
//	Cache   Cache    `inject:"" optional:"true"`
//	Skipped *DB      `inject:"-"`
func parseFieldTags(tag reflect.StructTag) TagInfo {
	info := TagInfo{}

	if val, ok := tag.Lookup("inject"); ok {
		info.Inject = true
		if val == "-" {
			info.Ignore = true
		} else {
			info.Name = val
		}
	}

	// Check for optional tag
	if val, ok := tag.Lookup("optional"); ok {
		info.Optional = val == "true"
	}

	// Parameter objects also accept the name tag
	if val, ok := tag.Lookup("name"); ok && info.Name == "" {
		info.Name = val
	}

	return info
}

// hasEmbeddedIn checks if a struct type embeds In.
func hasEmbeddedIn(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == inType {
			return true
		}
	}

	return false
}
