package digbridge_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"github.com/junioryono/binder"
	"github.com/junioryono/binder/digbridge"
	"github.com/junioryono/binder/internal/testutil"
)

func newContainer(t *testing.T) *dig.Container {
	t.Helper()

	c := dig.New()
	require.NoError(t, c.Provide(testutil.NewTestDatabase))
	require.NoError(t, c.Provide(func() testutil.TestDatabase {
		return testutil.NewTestDatabaseNamed("replica")
	}, dig.Name("replica")))
	return c
}

func TestModule(t *testing.T) {
	t.Parallel()

	c := newContainer(t)
	injector := testutil.CreateInjector(t, digbridge.Module(c,
		binder.KeyOf[testutil.TestDatabase](),
		binder.KeyOf[testutil.TestDatabase](binder.Named("replica")),
	))

	primary := testutil.AssertInstance[testutil.TestDatabase](t, injector)
	replica := testutil.AssertInstance[testutil.TestDatabase](t, injector, binder.Named("replica"))

	assert.NotSame(t, primary, replica)
	assert.Equal(t, "replica: ping", replica.Query("ping"))

	// dig caches its values, so every provisioning sees the same instance.
	assert.Same(t, primary, testutil.AssertInstance[testutil.TestDatabase](t, injector))
}

func TestModule_Dependencies(t *testing.T) {
	t.Parallel()

	c := newContainer(t)
	injector := testutil.CreateInjector(t, testutil.LoggerModule, digbridge.Module(c, binder.KeyOf[testutil.TestDatabase]()))

	svc := testutil.AssertInstance[*testutil.TestServiceWithDeps](t, injector)
	assert.NotNil(t, svc.Database)
}

func TestProvider(t *testing.T) {
	t.Parallel()

	t.Run("missing dig value", func(t *testing.T) {
		t.Parallel()

		p, err := digbridge.Provider(dig.New(), binder.KeyOf[testutil.TestCache]())
		require.NoError(t, err)

		_, err = p.Get()
		assert.Error(t, err)
	})

	t.Run("dig constructor error", func(t *testing.T) {
		t.Parallel()

		c := dig.New()
		require.NoError(t, c.Provide(func() (testutil.TestCache, error) { return nil, testutil.ErrConstructor }))
		injector := testutil.CreateInjector(t, digbridge.Module(c, binder.KeyOf[testutil.TestCache]()))

		_, err := binder.Get[testutil.TestCache](injector)
		assert.ErrorIs(t, err, testutil.ErrConstructor)
		testutil.AssertErrorType[binder.ProvisionFailedError](t, err)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		t.Parallel()

		_, err := digbridge.Provider(nil, binder.KeyOf[testutil.TestCache]())
		assert.Error(t, err)

		_, err = digbridge.Provider(dig.New(), binder.Key{})
		assert.ErrorIs(t, err, binder.ErrKeyTypeNil)

		_, err = digbridge.Provider(dig.New(), binder.KeyOf[testutil.TestCache](42))
		assert.ErrorIs(t, err, digbridge.ErrUnsupportedQualifier)
	})

	t.Run("unsupported qualifier fails creation", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(digbridge.Module(dig.New(), binder.KeyOf[testutil.TestCache](42)))
		testutil.AssertCreationError(t, err, 1)
		assert.True(t, errors.Is(err, digbridge.ErrUnsupportedQualifier))
	})
}
