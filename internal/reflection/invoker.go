package reflection

import (
	"fmt"
	"reflect"
	"runtime/debug"
)

// PanicError reports a panic raised by a constructor.
type PanicError struct {
	Constructor reflect.Type
	Panic       any
	Stack       []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("constructor %v panicked: %v", e.Constructor, e.Panic)
}

// Invoker calls constructors with already-resolved arguments.
type Invoker struct{}

// NewInvoker creates a new constructor invoker.
func NewInvoker() *Invoker {
	return &Invoker{}
}

// Invoke builds a value using info. args must line up with info.Parameters.
func (inv *Invoker) Invoke(info *ConstructorInfo, args []reflect.Value) (result reflect.Value, err error) {
	if info.IsAllocation() {
		return reflect.New(info.Type.Elem()), nil
	}

	if len(args) != len(info.Parameters) {
		return reflect.Value{}, fmt.Errorf("%w: %v expects %d arguments, got %d",
			ErrInvalidConstructor, info.Func.Type(), len(info.Parameters), len(args))
	}

	callArgs := args
	if info.IsParamObject {
		callArgs = []reflect.Value{buildParamObject(info, args)}
	}

	defer func() {
		if r := recover(); r != nil {
			result = reflect.Value{}
			err = &PanicError{
				Constructor: info.Func.Type(),
				Panic:       r,
				Stack:       debug.Stack(),
			}
		}
	}()

	results := info.Func.Call(callArgs)

	// Check for error return
	if info.HasErrorReturn {
		if last := results[len(results)-1]; !last.IsNil() {
			return reflect.Value{}, last.Interface().(error)
		}
	}

	return results[0], nil
}

// buildParamObject fills an In struct from resolved arguments.
func buildParamObject(info *ConstructorInfo, args []reflect.Value) reflect.Value {
	paramType := info.Func.Type().In(0)
	obj := reflect.New(paramType).Elem()

	for i, param := range info.Parameters {
		if !args[i].IsValid() {
			continue
		}
		obj.Field(param.Index).Set(args[i])
	}

	return obj
}
