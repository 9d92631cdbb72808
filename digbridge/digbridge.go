// Package digbridge exposes values from a go.uber.org/dig container as
// binder bindings, so existing dig wiring can be adopted gradually.
//
//	c := dig.New()
//	c.Provide(NewDatabase)
//	c.Provide(NewReplica, dig.Name("replica"))
//
//	injector, err := binder.CreateInjector(digbridge.Module(c,
//	    binder.KeyOf[*Database](),
//	    binder.KeyOf[*Database](binder.Named("replica")),
//	))
package digbridge

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/dig"

	"github.com/junioryono/binder"
)

// ErrUnsupportedQualifier is returned for qualifiers dig cannot express.
var ErrUnsupportedQualifier = errors.New("dig only supports binder.Named qualifiers")

var digInType = reflect.TypeOf(dig.In{})

// Provider returns a provider that invokes c for the value of key.
// A binder.Named qualifier selects the dig value with that name.
func Provider(c *dig.Container, key binder.Key) (binder.Provider, error) {
	if c == nil {
		return nil, errors.New("dig container cannot be nil")
	}
	if key.Type == nil {
		return nil, binder.ErrKeyTypeNil
	}

	param, extract, err := parameter(key)
	if err != nil {
		return nil, err
	}
	fnType := reflect.FuncOf([]reflect.Type{param}, nil, false)

	return binder.ProviderFunc(func() (any, error) {
		var out any
		fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
			out = extract(args[0])
			return nil
		})

		if err := c.Invoke(fn.Interface()); err != nil {
			return nil, fmt.Errorf("invoking dig for %s: %w", key, err)
		}
		return out, nil
	}), nil
}

// parameter returns the parameter type dig fills for key and how to read
// the value from it.
func parameter(key binder.Key) (reflect.Type, func(reflect.Value) any, error) {
	if key.Qualifier == nil {
		return key.Type, func(v reflect.Value) any { return v.Interface() }, nil
	}

	name, ok := key.Qualifier.(binder.Name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedQualifier, key)
	}

	param := reflect.StructOf([]reflect.StructField{
		{Name: "In", Type: digInType, Anonymous: true},
		{Name: "Value", Type: key.Type, Tag: reflect.StructTag(fmt.Sprintf("name:%q", string(name)))},
	})
	return param, func(v reflect.Value) any { return v.Field(1).Interface() }, nil
}

// Bind binds key to the value c provides for it.
func Bind(b *binder.Binder, c *dig.Container, key binder.Key) {
	p, err := Provider(c, key)
	if err != nil {
		b.AddError(err)
		return
	}
	b.Bind(key).ToProvider(p)
}

// Module binds every key to the value c provides for it.
func Module(c *dig.Container, keys ...binder.Key) binder.Module {
	return binder.ModuleFunc(func(b *binder.Binder) {
		for _, key := range keys {
			Bind(b, c, key)
		}
	})
}
