// Package binder is a dependency injection engine built around bindings.
//
// # Overview
//
// Modules declare bindings from keys to targets. An injector processes the
// declarations of its modules in one pass, reports every configuration
// error at once, and then provisions fully constructed, correctly scoped
// instances on request. The library provides:
//   - Keys made of a type and an optional qualifier such as Named("primary")
//   - Instance, provider, provider function, linked and constructor bindings
//   - Just-in-time bindings for constructible types, default implementations,
//     provider functions and converted string constants
//   - Singleton and custom scopes, with eager singletons in Production
//   - Child injectors that inherit and shadow their parent's bindings
//   - Circular dependency detection, broken with proxies where registered
//   - Interceptors, type listeners and provision listeners
//   - Thread-safe provisioning
//
// # Basic Usage
//
//	injector, err := binder.CreateInjector(binder.ModuleFunc(func(b *binder.Binder) {
//	    binder.Bind[Logger](b).To(binder.KeyOf[*ConsoleLogger]())
//	    binder.Bind[*sql.DB](b).ToProviderFunc(OpenDatabase).In(binder.SingletonScope)
//	    b.BindConstant(binder.Named("port"), "8080")
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer injector.Close()
//
//	server, err := binder.Get[*Server](injector)
//
// # Injection Points
//
// Pointers to structs are constructed by allocation; exported fields tagged
// with inject are filled afterwards:
//
//	type Server struct {
//	    DB     *sql.DB `inject:""`
//	    Port   int     `inject:"port"`
//	    Tracer Tracer  `inject:"" optional:"true"`
//	}
//
// Constructor functions registered with WithConstructor build their first
// result type from their parameters. A type may choose its own scope with a
// BinderScope method:
//
//	func (*Cache) BinderScope() binder.ScopeID { return binder.SingletonScope }
//
// # Scopes
//
// Unscoped bindings produce a new instance on each request. Singletons are
// created once per injector; concurrent first requests block until the
// instance exists and a failed construction is retried on the next request.
// Custom scopes implement Scope and are bound with Binder.BindScope.
//
// # Circular Dependencies
//
// A constructor that depends on itself through other bindings receives a
// proxy if one is registered for the requested interface type with
// RegisterProxy. Field injection cycles are resolved with the instance
// under construction. Any other cycle fails with a CircularDependencyError
// naming every key in the cycle. Injecting a provider function such as
// func() (Service, error) defers the lookup and also breaks cycles.
//
// # Thread Safety
//
// Injectors, bindings and providers can be used from multiple goroutines.
// Provisioning must not call back into the injector for a singleton that
// the same call is still constructing; that request waits for itself.
//
// # Error Handling
//
// Injector creation fails with a *CreationError and provisioning with a
// *ProvisionError. Both list every underlying message with the source that
// caused it and unwrap to the typed errors:
//   - DuplicateBindingError: a key bound twice at one level
//   - MissingImplementationError: no binding could be found or created
//   - CircularDependencyError: a cycle that no proxy could break
//   - ProvisionFailedError: a provider or constructor returned an error
//   - ConstructorPanicError: a provider or constructor panicked
package binder
