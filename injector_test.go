package binder_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/junioryono/binder"
	"github.com/junioryono/binder/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjector_Creation(t *testing.T) {
	t.Parallel()

	t.Run("creates empty injector", func(t *testing.T) {
		t.Parallel()

		injector, err := binder.CreateInjector()
		require.NoError(t, err)
		defer injector.Close()

		assert.NotEmpty(t, injector.ID())
		assert.Nil(t, injector.Parent())
		assert.Equal(t, binder.Development, injector.Stage())
	})

	t.Run("binds itself and the stage", func(t *testing.T) {
		t.Parallel()

		injector := testutil.NewInjectorBuilder(t).WithStage(binder.Production).MustBuild()

		self := testutil.AssertInstance[*binder.Injector](t, injector)
		assert.Same(t, injector, self)

		stage, err := binder.Get[binder.Stage](injector)
		require.NoError(t, err)
		assert.Equal(t, binder.Production, stage)
	})

	t.Run("collects every configuration error", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToInstance(nil)
			binder.Bind[*binder.Injector](b).ToInstance(&binder.Injector{})
			binder.Bind[testutil.TestCache](b).In("Request")
		}))

		ce := testutil.AssertCreationError(t, err, 3)
		testutil.AssertErrorType[binder.NullInstanceError](t, ce)
		testutil.AssertErrorType[binder.ForbiddenTypeError](t, ce)
		notFound := testutil.AssertErrorType[binder.ScopeNotFoundError](t, ce)
		assert.Equal(t, binder.ScopeID("Request"), notFound.ID)
	})

	t.Run("rejects invalid options", func(t *testing.T) {
		t.Parallel()

		testutil.RunErrorTestCases(t, []testutil.ErrorTestCase{
			{
				Name:    "constructor is not a function",
				Options: []binder.Option{binder.WithConstructor("nope")},
				CheckErr: func(t *testing.T, err error) {
					testutil.AssertCreationError(t, err, 1)
				},
			},
			{
				Name:    "implementation does not implement",
				Options: []binder.Option{binder.WithImplementation[testutil.TestCache, *testutil.TestService]()},
				CheckErr: func(t *testing.T, err error) {
					testutil.AssertCreationError(t, err, 1)
				},
			},
		})
	})

	t.Run("reports module panics", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			panic("boom")
		}))

		ce := testutil.AssertCreationError(t, err, 1)
		assert.Contains(t, ce.Error(), "boom")
	})
}

func TestInjector_DuplicateBindings(t *testing.T) {
	t.Parallel()

	var first, second binder.Source
	_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
		first = "modules.go:10"
		b.WithSource(first).Bind(binder.KeyOf[string](binder.Named("dsn"))).ToInstance("postgres://primary")
		second = "modules.go:20"
		b.WithSource(second).Bind(binder.KeyOf[string](binder.Named("dsn"))).ToInstance("postgres://replica")
	}))

	ce := testutil.AssertCreationError(t, err, 1)
	assert.Equal(t, second, ce.Messages[0].Source)

	dup := testutil.AssertErrorType[binder.DuplicateBindingError](t, err)
	assert.Equal(t, first, dup.Original)
	assert.Equal(t, binder.KeyOf[string](binder.Named("dsn")), dup.Key)
}

func TestInjector_Scoping(t *testing.T) {
	t.Parallel()

	t.Run("singleton returns the same instance", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.DatabaseModule)

		first := testutil.AssertInstance[testutil.TestDatabase](t, injector)
		second := testutil.AssertInstance[testutil.TestDatabase](t, injector)
		testutil.AssertSameInstance(t, first, second)
	})

	t.Run("unscoped returns new instances", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.LoggerModule)

		first := testutil.AssertInstance[testutil.TestLogger](t, injector)
		second := testutil.AssertInstance[testutil.TestLogger](t, injector)
		testutil.AssertDifferentInstances(t, first, second)
	})

	t.Run("implicit scope from the type", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t)

		first := testutil.AssertInstance[*testutil.SingletonCache](t, injector)
		second := testutil.AssertInstance[*testutil.SingletonCache](t, injector)
		testutil.AssertSameInstance(t, first, second)
	})

	t.Run("concurrent singleton requests construct once", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToProviderFunc(func() *testutil.TestService {
				calls.Add(1)
				return testutil.NewTestService()
			}).In(binder.SingletonScope)
		}))

		const goroutines = 50
		results := make([]*testutil.TestService, goroutines)
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func(idx int) {
				defer wg.Done()
				results[idx] = binder.MustGet[*testutil.TestService](injector)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
	})

	t.Run("failed singleton is retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToProviderFunc(func() (*testutil.TestService, error) {
				if calls.Add(1) == 1 {
					return nil, testutil.ErrConstructor
				}
				return testutil.NewTestService(), nil
			}).In(binder.SingletonScope)
		}))

		_, err := binder.Get[*testutil.TestService](injector)
		require.ErrorIs(t, err, testutil.ErrConstructor)
		testutil.AssertErrorType[binder.ProvisionFailedError](t, err)

		first := testutil.AssertInstance[*testutil.TestService](t, injector)
		second := testutil.AssertInstance[*testutil.TestService](t, injector)
		assert.Same(t, first, second)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("custom scope instance", func(t *testing.T) {
		t.Parallel()

		scope := &countingScope{}
		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).InScope(scope)
		}))

		first := testutil.AssertInstance[*testutil.TestService](t, injector)
		second := testutil.AssertInstance[*testutil.TestService](t, injector)
		assert.NotSame(t, first, second)
		assert.Equal(t, int32(1), scope.calls.Load(), "the scope wraps the binding once")
	})

	t.Run("caching custom scope", func(t *testing.T) {
		t.Parallel()

		scope := &cachingScope{}
		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			b.BindScope("Caching", scope)
			binder.Bind[*testutil.TestService](b).In("Caching")
			binder.Bind[testutil.TestLogger](b).To(binder.KeyOf[*testutil.TestLoggerImpl]()).In("Caching")
		}))

		first := testutil.AssertInstance[*testutil.TestService](t, injector)
		assert.Same(t, first, testutil.AssertInstance[*testutil.TestService](t, injector))

		logger := testutil.AssertInstance[testutil.TestLogger](t, injector)
		assert.Same(t, logger, testutil.AssertInstance[testutil.TestLogger](t, injector))

		assert.Equal(t, int32(2), scope.calls.Load())
	})

	t.Run("caching custom scope under concurrent first requests", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).InScope(&cachingScope{})
		}))

		results := make([]*testutil.TestService, 8)
		var wg sync.WaitGroup
		for idx := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[idx], _ = binder.Get[*testutil.TestService](injector)
			}()
		}
		wg.Wait()

		require.NotNil(t, results[0])
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
	})

	t.Run("bound scope annotation", func(t *testing.T) {
		t.Parallel()

		scope := &countingScope{}
		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			b.BindScope("Counting", scope)
			binder.Bind[*testutil.TestService](b).In("Counting")
		}))

		testutil.AssertInstance[*testutil.TestService](t, injector)
		assert.Equal(t, int32(1), scope.calls.Load())
	})

	t.Run("duplicate scope", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			b.BindScope(binder.SingletonScope, binder.NoScope)
		}))

		dup := testutil.AssertErrorType[binder.DuplicateScopeError](t, err)
		assert.Equal(t, binder.BuiltInSource, dup.Original)
	})

	t.Run("scope returning nil provider", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).InScope(nilScope{})
		}))

		_, err := binder.Get[*testutil.TestService](injector)
		testutil.AssertErrorType[binder.ProvisionFailedError](t, err)
	})
}

type countingScope struct {
	calls atomic.Int32
}

func (s *countingScope) Scope(_ binder.Key, unscoped binder.Provider) binder.Provider {
	s.calls.Add(1)
	return unscoped
}

func (s *countingScope) String() string { return "Counting" }

// cachingScope composes Singleton and counts how often it is applied.
type cachingScope struct {
	calls atomic.Int32
}

func (s *cachingScope) Scope(k binder.Key, unscoped binder.Provider) binder.Provider {
	s.calls.Add(1)
	return binder.Singleton.Scope(k, unscoped)
}

func (s *cachingScope) String() string { return "Caching" }

type nilScope struct{}

func (nilScope) Scope(binder.Key, binder.Provider) binder.Provider { return nil }
func (nilScope) String() string                                    { return "Nil" }

func TestInjector_Targets(t *testing.T) {
	t.Parallel()

	t.Run("linked key", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[testutil.TestCache](b).To(binder.KeyOf[*testutil.TestCacheImpl]())
		}))

		cache := testutil.AssertInstance[testutil.TestCache](t, injector)
		assert.IsType(t, &testutil.TestCacheImpl{}, cache)
	})

	t.Run("linked key to itself", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).To(binder.KeyOf[*testutil.TestService]())
		}))
		testutil.AssertErrorType[binder.RecursiveBindingError](t, err)
	})

	t.Run("linked key that is not assignable", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[testutil.TestCache](b).To(binder.KeyOf[*testutil.TestService]())
		}))
		testutil.AssertErrorType[binder.TypeMismatchError](t, err)
	})

	t.Run("linked key without target binding", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[testutil.TestCache](b).To(binder.KeyOf[testutil.TestCache](binder.Named("missing")))
		}))
		testutil.AssertCreationError(t, err, 1)
		testutil.AssertMissingImplementation(t, err)
	})

	t.Run("provider instance", func(t *testing.T) {
		t.Parallel()

		provider := &testutil.CountingProvider{New: func() any { return testutil.NewTestService() }}
		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToProvider(provider)
		}))

		testutil.AssertInstance[*testutil.TestService](t, injector)
		testutil.AssertInstance[*testutil.TestService](t, injector)
		assert.Equal(t, 2, provider.Calls())
	})

	t.Run("provider key", func(t *testing.T) {
		t.Parallel()

		provider := &testutil.CountingProvider{New: func() any { return testutil.NewTestService() }}
		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.CountingProvider](b).ToInstance(provider)
			binder.Bind[*testutil.TestService](b).ToProviderKey(binder.KeyOf[*testutil.CountingProvider]())
		}))

		testutil.AssertInstance[*testutil.TestService](t, injector)
		assert.Equal(t, 1, provider.Calls())
	})

	t.Run("provider key that is not a provider", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToProviderKey(binder.KeyOf[*testutil.TestService](binder.Named("x")))
		}))
		testutil.AssertErrorType[binder.TypeMismatchError](t, err)
	})

	t.Run("provider returning the wrong type", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToProvider(binder.ProviderFunc(func() (any, error) {
				return "not a service", nil
			}))
		}))

		_, err := binder.Get[*testutil.TestService](injector)
		testutil.AssertErrorType[binder.TypeMismatchError](t, err)
	})

	t.Run("provider that panics", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToProvider(binder.ProviderFunc(func() (any, error) {
				panic("provider exploded")
			}))
		}))

		_, err := binder.Get[*testutil.TestService](injector)
		panicErr := testutil.AssertErrorType[binder.ConstructorPanicError](t, err)
		assert.Equal(t, "provider exploded", panicErr.Panic)
	})

	t.Run("provider func with dependencies", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjectorWithBasicModules(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestServiceWithParams](b).ToProviderFunc(testutil.NewTestServiceWithParams)
		}))

		svc := testutil.AssertInstance[*testutil.TestServiceWithParams](t, injector)
		assert.NotNil(t, svc.Params.Logger)
		assert.NotNil(t, svc.Params.Database)
		assert.NotNil(t, svc.Params.Cache)
	})

	t.Run("optional parameter object field", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.LoggerModule, testutil.DatabaseModule, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestServiceWithParams](b).ToProviderFunc(testutil.NewTestServiceWithParams)
		}))

		svc := testutil.AssertInstance[*testutil.TestServiceWithParams](t, injector)
		assert.Nil(t, svc.Params.Cache)
	})

	t.Run("provider func with wrong result type", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[testutil.TestCache](b).ToProviderFunc(testutil.NewTestService)
		}))
		testutil.AssertErrorType[binder.TypeMismatchError](t, err)
	})

	t.Run("target set twice", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[testutil.TestCache](b).ToProviderFunc(testutil.NewTestCache).ToProviderFunc(testutil.NewTestCache)
		}))
		ce := testutil.AssertCreationError(t, err, 1)
		assert.Contains(t, ce.Error(), "already set")
	})

	t.Run("untargetted with qualifier", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b, binder.Named("primary"))
		}))
		testutil.AssertMissingImplementation(t, err)
	})

	t.Run("untargetted bindings may refer to each other in any order", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.BasicModule, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*consumer](b)
			binder.Bind[*testutil.TestServiceWithDeps](b).In(binder.SingletonScope)
		}))

		c := testutil.AssertInstance[*consumer](t, injector)
		svc := testutil.AssertInstance[*testutil.TestServiceWithDeps](t, injector)
		assert.Same(t, svc, c.Service)
	})
}

type consumer struct {
	Service *testutil.TestServiceWithDeps `inject:""`
}

func TestInjector_MissingImplementation(t *testing.T) {
	t.Parallel()

	type auditConsumer struct {
		Logger testutil.TestLogger `inject:"audit"`
	}

	t.Run("at creation", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.LoggerModule, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*auditConsumer](b)
		}))

		ce := testutil.AssertCreationError(t, err, 1)
		missing := testutil.AssertErrorType[binder.MissingImplementationError](t, ce)
		assert.Equal(t, binder.KeyOf[testutil.TestLogger](binder.Named("audit")), missing.Key)
		assert.Contains(t, missing.Site, "field Logger")
		assert.Contains(t, ce.Error(), `TestLogger annotated with @Named("audit")`)
	})

	t.Run("just in time", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.LoggerModule)

		_, err := binder.Get[*auditConsumer](injector)
		testutil.AssertProvisionError(t, err, 1)
		testutil.AssertMissingImplementation(t, err)

		_, ok := injector.ExistingBinding(binder.KeyOf[*auditConsumer]())
		assert.False(t, ok, "failed just-in-time bindings are not kept")
	})

	t.Run("interface without implementation", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t)
		testutil.AssertMissing[testutil.TestCache](t, injector)
	})

	t.Run("qualified key", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t)
		_, err := binder.Get[*testutil.TestService](injector, binder.Named("primary"))
		testutil.AssertProvisionError(t, err, 1)
		testutil.AssertMissingImplementation(t, err)
	})
}

func TestInjector_ChildInjectors(t *testing.T) {
	t.Parallel()

	t.Run("child shadows parent", func(t *testing.T) {
		t.Parallel()

		parent := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[testutil.TestLogger](b).To(binder.KeyOf[*testutil.TestLoggerImpl]()).In(binder.SingletonScope)
		}))
		child := testutil.CreateChildInjector(t, parent, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[testutil.TestLogger](b).To(binder.KeyOf[*testutil.DecoratedLogger]())
		}))

		fromChild := testutil.AssertInstance[testutil.TestLogger](t, child)
		assert.IsType(t, &testutil.DecoratedLogger{}, fromChild)

		fromParent := testutil.AssertInstance[testutil.TestLogger](t, parent)
		assert.IsType(t, &testutil.TestLoggerImpl{}, fromParent)
		assert.Same(t, fromParent, testutil.AssertInstance[testutil.TestLogger](t, parent))
	})

	t.Run("child sees parent bindings", func(t *testing.T) {
		t.Parallel()

		parent := testutil.CreateInjector(t, testutil.DatabaseModule)
		child := testutil.CreateChildInjector(t, parent)

		assert.Same(t, parent, child.Parent())
		assert.Same(t,
			testutil.AssertInstance[testutil.TestDatabase](t, parent),
			testutil.AssertInstance[testutil.TestDatabase](t, child),
		)
	})

	t.Run("each level binds its own injector", func(t *testing.T) {
		t.Parallel()

		parent := testutil.CreateInjector(t)
		child := testutil.CreateChildInjector(t, parent)

		assert.Same(t, child, testutil.AssertInstance[*binder.Injector](t, child))
		assert.Same(t, parent, testutil.AssertInstance[*binder.Injector](t, parent))
	})

	t.Run("child binding conflicting with parent just-in-time binding", func(t *testing.T) {
		t.Parallel()

		parent := testutil.CreateInjector(t)
		testutil.AssertInstance[*testutil.TestService](t, parent)

		child := testutil.CreateChildInjector(t, parent, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToInstance(&testutil.TestService{ID: "child"})
		}))

		svc := testutil.AssertInstance[*testutil.TestService](t, child)
		assert.Equal(t, "child", svc.ID)
	})

	t.Run("child of closed parent", func(t *testing.T) {
		t.Parallel()

		parent, err := binder.CreateInjector()
		require.NoError(t, err)
		child, err := parent.CreateChildInjector()
		require.NoError(t, err)

		require.NoError(t, parent.Close())
		assert.True(t, child.IsClosed())

		_, err = binder.Get[*testutil.TestService](child)
		assert.ErrorIs(t, err, binder.ErrInjectorClosed)
	})
}

func TestInjector_Eager(t *testing.T) {
	t.Parallel()

	t.Run("eager singleton created with the injector", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToProviderFunc(func() *testutil.TestService {
				calls.Add(1)
				return testutil.NewTestService()
			}).AsEagerSingleton()
		}))

		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("singletons are eager in production", func(t *testing.T) {
		t.Parallel()

		for _, stage := range []binder.Stage{binder.Development, binder.Production} {
			var calls atomic.Int32
			injector := testutil.NewInjectorBuilder(t).
				WithStage(stage).
				WithBindings(func(b *binder.Binder) {
					binder.Bind[*testutil.TestService](b).ToProviderFunc(func() *testutil.TestService {
						calls.Add(1)
						return testutil.NewTestService()
					}).In(binder.SingletonScope)
				}).
				MustBuild()

			binding, ok := injector.ExistingBinding(binder.KeyOf[*testutil.TestService]())
			require.True(t, ok)
			assert.Equal(t, stage == binder.Production, binding.IsEager(), stage.String())
			assert.Equal(t, stage == binder.Production, calls.Load() == 1, stage.String())
		}
	})

	t.Run("dependencies are created first", func(t *testing.T) {
		t.Parallel()

		var order []string
		testutil.NewInjectorBuilder(t).
			WithStage(binder.Production).
			WithBindings(func(b *binder.Binder) {
				binder.Bind[*testutil.TestServiceWithParams](b).ToProviderFunc(func(p testutil.TestServiceParams) *testutil.TestServiceWithParams {
					order = append(order, "service")
					return testutil.NewTestServiceWithParams(p)
				}).In(binder.SingletonScope)
				binder.Bind[testutil.TestDatabase](b).ToProviderFunc(func() testutil.TestDatabase {
					order = append(order, "database")
					return testutil.NewTestDatabase()
				}).In(binder.SingletonScope)
				binder.Bind[testutil.TestLogger](b).ToProviderFunc(testutil.NewTestLogger)
			}).
			MustBuild()

		assert.Equal(t, []string{"database", "service"}, order)
	})

	t.Run("failing eager singleton fails creation", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestService](b).ToProviderFunc(func() (*testutil.TestService, error) {
				return nil, testutil.ErrConstructor
			}).AsEagerSingleton()
		}))

		testutil.AssertCreationError(t, err, 1)
		assert.ErrorIs(t, err, testutil.ErrConstructor)
	})
}

func TestInjector_Close(t *testing.T) {
	t.Parallel()

	t.Run("disposes singletons in reverse order", func(t *testing.T) {
		t.Parallel()

		recorder := &testutil.DisposalRecorder{}
		injector, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestDisposable](b, binder.Named("first")).ToProviderFunc(func() *testutil.TestDisposable {
				return testutil.NewTestDisposable("first", recorder)
			}).In(binder.SingletonScope)
			binder.Bind[*testutil.TestDisposable](b, binder.Named("second")).ToProviderFunc(func() *testutil.TestDisposable {
				return testutil.NewTestDisposable("second", recorder)
			}).In(binder.SingletonScope)
			binder.Bind[*testutil.TestDisposable](b, binder.Named("unscoped")).ToProviderFunc(func() *testutil.TestDisposable {
				return testutil.NewTestDisposable("unscoped", recorder)
			})
		}))
		require.NoError(t, err)

		_, err = binder.GetNamed[*testutil.TestDisposable](injector, "first")
		require.NoError(t, err)
		_, err = binder.GetNamed[*testutil.TestDisposable](injector, "second")
		require.NoError(t, err)
		_, err = binder.GetNamed[*testutil.TestDisposable](injector, "unscoped")
		require.NoError(t, err)

		require.NoError(t, injector.Close())
		assert.Equal(t, []string{"second", "first"}, recorder.Closed())

		require.NoError(t, injector.Close(), "closing twice is a no-op")
		testutil.AssertClosed(t, injector)
	})

	t.Run("passes the context", func(t *testing.T) {
		t.Parallel()

		disposable := &testutil.TestContextDisposable{}
		injector, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestContextDisposable](b).ToProviderFunc(func() *testutil.TestContextDisposable {
				return disposable
			}).AsEagerSingleton()
		}))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err = injector.CloseContext(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, disposable.WasDisposedWithContext())
	})

	t.Run("aggregates disposal errors", func(t *testing.T) {
		t.Parallel()

		injector, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestDisposable](b, binder.Named("a")).ToProviderFunc(func() *testutil.TestDisposable {
				return testutil.NewTestDisposableWithError("a", testutil.ErrDisposal)
			}).AsEagerSingleton()
			binder.Bind[*testutil.TestDisposable](b, binder.Named("b")).ToProviderFunc(func() *testutil.TestDisposable {
				return testutil.NewTestDisposableWithError("b", testutil.ErrDisposal)
			}).AsEagerSingleton()
		}))
		require.NoError(t, err)

		err = injector.Close()
		disposal := testutil.AssertErrorType[binder.DisposalError](t, err)
		assert.Len(t, disposal.Errors, 2)
		assert.ErrorIs(t, err, testutil.ErrDisposal)
	})

	t.Run("disposes partially created injector", func(t *testing.T) {
		t.Parallel()

		first := testutil.NewTestDisposable("first", nil)
		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[*testutil.TestDisposable](b).ToProviderFunc(func() *testutil.TestDisposable {
				return first
			}).AsEagerSingleton()
			binder.Bind[*testutil.TestService](b).ToProviderFunc(func(testutil.TestDatabase) *testutil.TestService {
				return testutil.NewTestService()
			}).AsEagerSingleton()
			binder.Bind[testutil.TestDatabase](b).ToProviderFunc(func() (testutil.TestDatabase, error) {
				return nil, testutil.ErrConstructor
			})
		}))

		require.Error(t, err)
		assert.True(t, first.IsDisposed())
	})
}

func TestInjector_Lookups(t *testing.T) {
	t.Parallel()

	t.Run("provider", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.DatabaseModule)

		provider, err := injector.Provider(binder.KeyOf[testutil.TestDatabase]())
		require.NoError(t, err)

		first, err := provider.Get()
		require.NoError(t, err)
		second, err := provider.Get()
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("typed provider", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.LoggerModule)

		newLogger, err := binder.ProviderFor[testutil.TestLogger](injector)
		require.NoError(t, err)

		first, err := newLogger()
		require.NoError(t, err)
		second, err := newLogger()
		require.NoError(t, err)
		assert.NotSame(t, first, second)
	})

	t.Run("typed provider for missing key", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t)
		_, err := binder.ProviderFor[testutil.TestLogger](injector)
		testutil.AssertMissingImplementation(t, err)
	})

	t.Run("binding queries", func(t *testing.T) {
		t.Parallel()

		injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
			binder.Bind[string](b, binder.Named("a")).ToInstance("a")
			binder.Bind[string](b, binder.Named("b")).ToInstance("b")
			binder.Bind[int](b).ToInstance(1)
		}))

		found := injector.FindBindingsByType(reflect.TypeOf(""))
		require.Len(t, found, 2)
		assert.Equal(t, binder.Named("a"), found[0].Key().Qualifier)
		assert.Equal(t, binder.Named("b"), found[1].Key().Qualifier)

		b, err := injector.Binding(binder.KeyOf[int]())
		require.NoError(t, err)
		assert.Equal(t, binder.InstanceTarget{Instance: 1}, b.Target())
		assert.Same(t, injector, b.Injector())

		_, ok := injector.ExistingBinding(binder.KeyOf[*testutil.TestService]())
		assert.False(t, ok)
		_, err = injector.Binding(binder.KeyOf[*testutil.TestService]())
		require.NoError(t, err)
		_, ok = injector.ExistingBinding(binder.KeyOf[*testutil.TestService]())
		assert.True(t, ok)
	})

	t.Run("binder lookups work once the injector exists", func(t *testing.T) {
		t.Parallel()

		var lookup *binder.ProviderLookup
		var members *binder.MembersInjectorLookup
		injector := testutil.CreateInjector(t, testutil.BasicModule, testutil.Bindings(func(b *binder.Binder) {
			lookup = b.GetProvider(binder.KeyOf[testutil.TestDatabase]())
			members = b.GetMembersInjector(reflect.TypeOf(&testutil.TestServiceWithDeps{}))

			_, err := lookup.Get()
			assert.ErrorIs(t, err, binder.ErrLookupNotInitialized)
		}))

		db, err := lookup.Get()
		require.NoError(t, err)
		assert.Same(t, testutil.AssertInstance[testutil.TestDatabase](t, injector), db)

		svc := &testutil.TestServiceWithDeps{}
		require.NoError(t, members.InjectMembers(svc))
		assert.NotNil(t, svc.Logger)
	})

	t.Run("lookup of missing key fails creation", func(t *testing.T) {
		t.Parallel()

		_, err := binder.CreateInjector(testutil.Bindings(func(b *binder.Binder) {
			b.GetProvider(binder.KeyOf[testutil.TestDatabase]())
		}))
		testutil.AssertMissingImplementation(t, err)
	})
}

func TestInjector_MaxDepth(t *testing.T) {
	t.Parallel()

	injector := testutil.NewInjectorBuilder(t).
		WithOptions(binder.WithMaxDepth(2)).
		WithModules(testutil.BasicModule).
		MustBuild()

	_, err := binder.Get[*testutil.TestServiceWithDeps](injector)
	require.NoError(t, err)

	_, err = binder.Get[*consumer](injector)
	depth := testutil.AssertErrorType[binder.MaxDepthError](t, err)
	assert.Equal(t, 2, depth.MaxDepth)
}

func TestInjector_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	injector := testutil.CreateInjector(t, testutil.BasicModule)
	child := testutil.CreateChildInjector(t, injector)

	const goroutines = 32
	var wg sync.WaitGroup
	errs := make(chan error, goroutines*2)

	for i := 0; i < goroutines; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := binder.Get[*testutil.TestServiceWithDeps](injector)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := binder.Get[*consumer](child)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestInjector_ErrorsUnwrap(t *testing.T) {
	t.Parallel()

	injector := testutil.CreateInjector(t, testutil.Bindings(func(b *binder.Binder) {
		binder.Bind[*testutil.TestService](b).ToProviderFunc(func() (*testutil.TestService, error) {
			return nil, testutil.ErrTest
		})
	}))

	_, err := binder.Get[*testutil.TestService](injector)
	require.Error(t, err)
	assert.True(t, errors.Is(err, testutil.ErrTest))

	var pe *binder.ProvisionError
	require.ErrorAs(t, err, &pe)
	require.Len(t, pe.Messages, 1)
	assert.Contains(t, string(pe.Messages[0].Source), "injector_test.go")
	assert.Contains(t, err.Error(), "error in custom provider for *TestService")
}
