package testutil

import (
	"testing"

	"github.com/junioryono/binder"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// InjectorBuilder provides a fluent interface for building test injectors
type InjectorBuilder struct {
	t       *testing.T
	modules []binder.Module
	options []binder.Option
}

// NewInjectorBuilder creates a new InjectorBuilder that logs to the test.
func NewInjectorBuilder(t *testing.T) *InjectorBuilder {
	return &InjectorBuilder{
		t:       t,
		options: []binder.Option{binder.WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)))},
	}
}

// WithModules adds modules
func (b *InjectorBuilder) WithModules(modules ...binder.Module) *InjectorBuilder {
	b.modules = append(b.modules, modules...)
	return b
}

// WithBindings adds a module built from fn
func (b *InjectorBuilder) WithBindings(fn func(*binder.Binder)) *InjectorBuilder {
	return b.WithModules(binder.ModuleFunc(fn))
}

// WithOptions adds injector options
func (b *InjectorBuilder) WithOptions(opts ...binder.Option) *InjectorBuilder {
	b.options = append(b.options, opts...)
	return b
}

// WithStage sets the stage
func (b *InjectorBuilder) WithStage(stage binder.Stage) *InjectorBuilder {
	return b.WithOptions(binder.WithStage(stage))
}

// WithProxies sets the circular proxy registry
func (b *InjectorBuilder) WithProxies(proxies binder.ProxyFactory) *InjectorBuilder {
	return b.WithOptions(binder.WithProxies(proxies))
}

// Build creates the injector
func (b *InjectorBuilder) Build() (*binder.Injector, error) {
	injector, err := binder.NewInjector(b.modules, b.options...)
	if err != nil {
		return nil, err
	}

	b.t.Cleanup(func() {
		if !injector.IsClosed() {
			require.NoError(b.t, injector.Close())
		}
	})

	return injector, nil
}

// MustBuild creates the injector and fails the test if there's an error
func (b *InjectorBuilder) MustBuild() *binder.Injector {
	injector, err := b.Build()
	require.NoError(b.t, err, "failed to create injector")
	return injector
}
