package testutil

import (
	"testing"

	"github.com/junioryono/binder"
	"github.com/stretchr/testify/require"
)

// Common modules for testing
var (
	// LoggerModule binds TestLogger to a new logger per request.
	LoggerModule = binder.NewModule("test-logger", binder.ModuleFunc(func(b *binder.Binder) {
		binder.Bind[TestLogger](b).ToProviderFunc(NewTestLogger)
	}))

	// DatabaseModule binds TestDatabase as a singleton.
	DatabaseModule = binder.NewModule("test-database", binder.ModuleFunc(func(b *binder.Binder) {
		binder.Bind[TestDatabase](b).ToProviderFunc(NewTestDatabase).In(binder.SingletonScope)
	}))

	// CacheModule binds TestCache as a singleton.
	CacheModule = binder.NewModule("test-cache", binder.ModuleFunc(func(b *binder.Binder) {
		binder.Bind[TestCache](b).ToProviderFunc(NewTestCache).In(binder.SingletonScope)
	}))

	// BasicModule installs the logger, database and cache modules.
	BasicModule = binder.NewModule("test-basic", LoggerModule, DatabaseModule, CacheModule)
)

// Bindings adapts a function to a module.
func Bindings(fn func(b *binder.Binder)) binder.Module {
	return binder.ModuleFunc(fn)
}

// CreateInjector creates an injector and closes it when the test ends.
func CreateInjector(t *testing.T, modules ...binder.Module) *binder.Injector {
	t.Helper()
	return NewInjectorBuilder(t).WithModules(modules...).MustBuild()
}

// CreateInjectorWithBasicModules creates an injector with BasicModule and modules.
func CreateInjectorWithBasicModules(t *testing.T, modules ...binder.Module) *binder.Injector {
	t.Helper()
	return CreateInjector(t, append([]binder.Module{BasicModule}, modules...)...)
}

// CreateChildInjector creates a child injector and closes it when the test ends.
func CreateChildInjector(t *testing.T, parent *binder.Injector, modules ...binder.Module) *binder.Injector {
	t.Helper()

	child, err := parent.CreateChildInjector(modules...)
	require.NoError(t, err, "failed to create child injector")
	t.Cleanup(func() { _ = child.Close() })
	return child
}

// ErrorTestCase represents a test case for configuration errors
type ErrorTestCase struct {
	Name     string
	Modules  []binder.Module
	Options  []binder.Option
	CheckErr func(t *testing.T, err error)
}

// RunErrorTestCases creates an injector per case and checks the error
func RunErrorTestCases(t *testing.T, cases []ErrorTestCase) {
	t.Helper()

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			_, err := binder.NewInjector(tc.Modules, tc.Options...)
			require.Error(t, err)
			tc.CheckErr(t, err)
		})
	}
}
