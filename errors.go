package binder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// These are base errors that are wrapped in typed errors when returned.

var (
	// Key errors.
	ErrKeyTypeNil             = errors.New("key type cannot be nil")
	ErrQualifierNotComparable = errors.New("qualifier must be comparable")

	// Lifecycle errors.
	ErrInjectorClosed       = errors.New("injector has been closed")
	ErrLookupNotInitialized = errors.New("lookup used before the injector was created")

	// Injection point errors.
	ErrNotConstructible = errors.New("type has no injectable constructor")
	ErrNilTarget        = errors.New("injection target cannot be nil")
)

var (
	_ error = DuplicateBindingError{}
	_ error = DuplicateScopeError{}
	_ error = MissingImplementationError{}
	_ error = ScopeNotFoundError{}
	_ error = ForbiddenTypeError{}
	_ error = RecursiveBindingError{}
	_ error = NullInstanceError{}
	_ error = UninitializedBindingError{}
	_ error = AmbiguousConversionError{}
	_ error = ConversionError{}
	_ error = CircularDependencyError{}
	_ error = CircularProxyError{}
	_ error = ProvisionFailedError{}
	_ error = ConstructorPanicError{}
	_ error = TypeMismatchError{}
	_ error = MaxDepthError{}
	_ error = DisposalError{}
)

// ========================================
// Configuration errors
// ========================================

// DuplicateBindingError indicates a key was bound twice at the same level.
// The first binding stays authoritative.
type DuplicateBindingError struct {
	Key      Key
	Original Source
}

func (e DuplicateBindingError) Error() string {
	return fmt.Sprintf("a binding to %s was already configured at %s", e.Key, e.Original)
}

// DuplicateScopeError indicates a scope identity was bound twice at the same level.
type DuplicateScopeError struct {
	ID       ScopeID
	Original Source
}

func (e DuplicateScopeError) Error() string {
	return fmt.Sprintf("scope %s was already bound at %s", e.ID, e.Original)
}

// MissingImplementationError indicates no binding exists for a key and none
// could be synthesized.
type MissingImplementationError struct {
	Key Key

	// Site names the dependency that requested the key, if any.
	Site string

	Cause error
}

func (e MissingImplementationError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("no implementation for %s was bound", e.Key))

	if e.Site != "" {
		b.WriteString(fmt.Sprintf(" (required by %s)", e.Site))
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	return b.String()
}

func (e MissingImplementationError) Unwrap() error {
	return e.Cause
}

// ScopeNotFoundError indicates a binding named a scope identity that has no
// registered scope.
type ScopeNotFoundError struct {
	ID ScopeID
}

func (e ScopeNotFoundError) Error() string {
	return fmt.Sprintf("no scope is bound to %s", e.ID)
}

// ForbiddenTypeError indicates an attempt to bind one of the container's own types.
type ForbiddenTypeError struct {
	Type reflect.Type
}

func (e ForbiddenTypeError) Error() string {
	return fmt.Sprintf("binding to %s is not allowed", formatType(e.Type))
}

// RecursiveBindingError indicates a key linked to itself.
type RecursiveBindingError struct {
	Key Key
}

func (e RecursiveBindingError) Error() string {
	return fmt.Sprintf("binding points to itself: %s", e.Key)
}

// NullInstanceError indicates a nil value was bound as an instance.
type NullInstanceError struct {
	Key Key
}

func (e NullInstanceError) Error() string {
	return fmt.Sprintf("binding to nil instance for %s; use a provider that returns nil instead", e.Key)
}

// ========================================
// Resolution errors
// ========================================

// UninitializedBindingError indicates a binding was provisioned before its
// factory was installed, usually from inside a module or type listener.
type UninitializedBindingError struct {
	Key Key
}

func (e UninitializedBindingError) Error() string {
	return fmt.Sprintf("binding for %s was used before the injector finished initializing it", e.Key)
}

// AmbiguousConversionError indicates more than one type converter matched.
type AmbiguousConversionError struct {
	Value  string
	Type   reflect.Type
	First  Source
	Second Source
}

func (e AmbiguousConversionError) Error() string {
	return fmt.Sprintf("multiple converters can convert %q to %s: %s and %s",
		e.Value, formatType(e.Type), e.First, e.Second)
}

// ConversionError indicates a converter failed or returned the wrong type.
type ConversionError struct {
	Value string
	Type  reflect.Type
	Cause error
}

func (e ConversionError) Error() string {
	return fmt.Sprintf("error converting %q to %s: %v", e.Value, formatType(e.Type), e.Cause)
}

func (e ConversionError) headline() string {
	return fmt.Sprintf("error converting %q to %s", e.Value, formatType(e.Type))
}

func (e ConversionError) Unwrap() error {
	return e.Cause
}

// ========================================
// Circular dependency errors
// ========================================

// CircularDependencyError indicates a cycle that could not be broken with a proxy.
// Path lists every key in the cycle, starting and ending at the repeated key.
type CircularDependencyError struct {
	Path []Key
}

func (e CircularDependencyError) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected:\n\n")

	for i, k := range e.Path {
		b.WriteString(fmt.Sprintf("    %s", k))
		if i == len(e.Path)-1 {
			b.WriteString(" (cycle)")
		}
		b.WriteString("\n")
		if i < len(e.Path)-1 {
			b.WriteString("      ↓\n")
		}
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Depend on an interface and register a proxy for it\n")
	b.WriteString("  • Inject a provider function for lazy access\n")
	b.WriteString("  • Restructure to remove the circular relationship\n")

	return b.String()
}

// CircularProxyError indicates a circular proxy was used before, or without,
// its real instance being available.
type CircularProxyError struct {
	Type  reflect.Type
	Cause error
}

func (e CircularProxyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("circular proxy for %s is unusable: construction failed: %v", formatType(e.Type), e.Cause)
	}
	return fmt.Sprintf("circular proxy for %s was used before the instance was constructed", formatType(e.Type))
}

func (e CircularProxyError) Unwrap() error {
	return e.Cause
}

// ========================================
// Construction errors
// ========================================

// coveredError marks an error raised by using a circular proxy whose
// construction had already failed with cause. It is reported as a
// reference to that failure.
type coveredError struct {
	key     Key
	proxied reflect.Type
	err     error
	cause   error
}

func (e coveredError) Error() string {
	return e.err.Error()
}

func (e coveredError) Unwrap() error {
	return e.err
}

func (e coveredError) headline() string {
	return fmt.Sprintf("error providing %s: the circular proxy for %s it used belongs to a failed construction",
		e.key, formatType(e.proxied))
}

// coverFailedProxy tags err, raised while providing key, when it stems
// from a poisoned circular proxy.
func coverFailedProxy(key Key, err error) error {
	var proxyErr CircularProxyError
	if errors.As(err, &proxyErr) && proxyErr.Cause != nil {
		return coveredError{key: key, proxied: proxyErr.Type, err: err, cause: proxyErr.Cause}
	}
	return err
}

// ProvisionFailedError attributes an error raised by user code to the key being provided.
type ProvisionFailedError struct {
	Key   Key
	Cause error
}

func (e ProvisionFailedError) Error() string {
	return fmt.Sprintf("error in custom provider for %s: %v", e.Key, e.Cause)
}

func (e ProvisionFailedError) headline() string {
	return fmt.Sprintf("error in custom provider for %s", e.Key)
}

func (e ProvisionFailedError) Unwrap() error {
	return e.Cause
}

// ConstructorPanicError indicates a constructor or provider panicked.
// It captures the panic value and stack trace for debugging.
type ConstructorPanicError struct {
	Constructor reflect.Type
	Panic       any
	Stack       []byte
}

func (e ConstructorPanicError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("constructor %s panicked: %v", formatType(e.Constructor), e.Panic))

	if len(e.Stack) > 0 {
		b.WriteString("\n\nStack trace:\n")
		b.Write(e.Stack)
	}

	return b.String()
}

// Unwrap returns the panic value when it is an error.
func (e ConstructorPanicError) Unwrap() error {
	err, _ := e.Panic.(error)
	return err
}

// TypeMismatchError indicates a provided value cannot be assigned to the requested type.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Context, formatType(e.Expected), formatType(e.Actual))
}

// MaxDepthError indicates provisioning recursed deeper than allowed.
type MaxDepthError struct {
	Key      Key
	Depth    int
	MaxDepth int
}

func (e MaxDepthError) Error() string {
	return fmt.Sprintf("maximum provisioning depth %d exceeded while providing %s (current depth: %d)",
		e.MaxDepth, e.Key, e.Depth)
}

// DisposalError aggregates errors returned while closing singletons.
type DisposalError struct {
	Errors []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("injector disposal failed: %v", e.Errors[0])
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("injector disposal failed with %d errors:", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return sb.String()
}

func (e DisposalError) Unwrap() []error {
	return e.Errors
}

// IsCircularDependency reports whether err contains a CircularDependencyError.
func IsCircularDependency(err error) bool {
	var target CircularDependencyError
	return errors.As(err, &target)
}

// IsMissingImplementation reports whether err contains a MissingImplementationError.
func IsMissingImplementation(err error) bool {
	var target MissingImplementationError
	return errors.As(err, &target)
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Func:
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
