package binder

import (
	"fmt"
	"reflect"
)

// Get is a generic helper function that provisions an instance of T.
//
//	db, err := binder.Get[*sql.DB](injector)
//	dsn, err := binder.Get[string](injector, binder.Named("dsn"))
func Get[T any](inj *Injector, qualifier ...any) (T, error) {
	var zero T

	key := KeyOf[T](qualifier...)
	instance, err := inj.Instance(key)
	if err != nil {
		return zero, err
	}
	if instance == nil {
		return zero, nil
	}

	result, ok := instance.(T)
	if !ok {
		return zero, TypeMismatchError{Expected: key.Type, Actual: reflect.TypeOf(instance), Context: "type assertion"}
	}

	return result, nil
}

// GetNamed provisions the instance of T bound with Named(name).
func GetNamed[T any](inj *Injector, name string) (T, error) {
	return Get[T](inj, Named(name))
}

// MustGet provisions an instance of T and panics on error.
func MustGet[T any](inj *Injector, qualifier ...any) T {
	result, err := Get[T](inj, qualifier...)
	if err != nil {
		panic(fmt.Sprintf("failed to get %s: %v", KeyOf[T](qualifier...), err))
	}
	return result
}

// ProviderFor returns a typed provider function for T. The binding is
// resolved immediately so configuration errors surface here.
//
//	newRequest, err := binder.ProviderFor[*Request](injector)
//	req, err := newRequest()
func ProviderFor[T any](inj *Injector, qualifier ...any) (func() (T, error), error) {
	key := KeyOf[T](qualifier...)
	provider, err := inj.Provider(key)
	if err != nil {
		return nil, err
	}

	return func() (T, error) {
		var zero T

		instance, err := provider.Get()
		if err != nil {
			return zero, err
		}
		if instance == nil {
			return zero, nil
		}

		result, ok := instance.(T)
		if !ok {
			return zero, TypeMismatchError{Expected: key.Type, Actual: reflect.TypeOf(instance), Context: "type assertion"}
		}
		return result, nil
	}, nil
}
