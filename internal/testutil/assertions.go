package testutil

import (
	"testing"

	"github.com/junioryono/binder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertInstance checks that T can be provisioned and is not nil
func AssertInstance[T any](t *testing.T, injector *binder.Injector, qualifier ...any) T {
	t.Helper()
	instance, err := binder.Get[T](injector, qualifier...)
	require.NoError(t, err, "failed to get %s", binder.KeyOf[T](qualifier...))
	require.NotNil(t, instance, "provisioned instance is nil")
	return instance
}

// AssertMissing checks that T cannot be provisioned for lack of a binding
func AssertMissing[T any](t *testing.T, injector *binder.Injector, qualifier ...any) {
	t.Helper()
	_, err := binder.Get[T](injector, qualifier...)
	AssertMissingImplementation(t, err)
}

// AssertMissingImplementation checks that err reports a missing binding
func AssertMissingImplementation(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, binder.IsMissingImplementation(err), "expected missing implementation error, got: %v", err)
}

// AssertCircularDependency checks if an error is a circular dependency error
func AssertCircularDependency(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, binder.IsCircularDependency(err), "expected circular dependency error, got: %v", err)
}

// AssertSameInstance verifies two instances are the same
func AssertSameInstance(t *testing.T, expected, actual any, msgAndArgs ...any) {
	t.Helper()
	assert.Same(t, expected, actual, msgAndArgs...)
}

// AssertDifferentInstances verifies two instances are different
func AssertDifferentInstances(t *testing.T, first, second any, msgAndArgs ...any) {
	t.Helper()
	assert.NotSame(t, first, second, msgAndArgs...)
}

// AssertErrorType checks if an error is of a specific type
func AssertErrorType[T error](t *testing.T, err error, msgAndArgs ...any) T {
	t.Helper()
	var target T
	assert.ErrorAs(t, err, &target, msgAndArgs...)
	return target
}

// AssertCreationError checks that err is a CreationError with count messages
func AssertCreationError(t *testing.T, err error, count int) *binder.CreationError {
	t.Helper()
	var ce *binder.CreationError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Messages, count, "unexpected messages: %v", err)
	return ce
}

// AssertProvisionError checks that err is a ProvisionError with count messages
func AssertProvisionError(t *testing.T, err error, count int) *binder.ProvisionError {
	t.Helper()
	var pe *binder.ProvisionError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Messages, count, "unexpected messages: %v", err)
	return pe
}

// AssertClosed checks that operations on a closed injector fail
func AssertClosed(t *testing.T, injector *binder.Injector) {
	t.Helper()
	assert.True(t, injector.IsClosed(), "injector should be closed")

	_, err := injector.Instance(binder.KeyOf[*TestService]())
	assert.ErrorIs(t, err, binder.ErrInjectorClosed)

	_, err = injector.CreateChildInjector()
	assert.ErrorIs(t, err, binder.ErrInjectorClosed)
}
