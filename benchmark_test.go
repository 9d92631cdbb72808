package binder

import (
	"sync"
	"testing"
)

// Benchmark service types
type BenchService struct {
	Name string
}

type BenchDep1 struct{ Value int }
type BenchDep2 struct{ Value int }
type BenchDep3 struct{ Value int }
type BenchDep4 struct{ Value int }
type BenchDep5 struct{ Value int }

type BenchServiceWith1Dep struct {
	Dep1 *BenchDep1
}

type BenchServiceWith3Deps struct {
	Dep1 *BenchDep1
	Dep2 *BenchDep2
	Dep3 *BenchDep3
}

type BenchServiceWith5Deps struct {
	Dep1 *BenchDep1
	Dep2 *BenchDep2
	Dep3 *BenchDep3
	Dep4 *BenchDep4
	Dep5 *BenchDep5
}

// BenchFieldService is built by allocation and field injection.
type BenchFieldService struct {
	Dep1 *BenchDep1 `inject:""`
	Dep2 *BenchDep2 `inject:""`
	Dep3 *BenchDep3 `inject:""`
}

// Constructors for benchmarks
func NewBenchService() *BenchService {
	return &BenchService{Name: "bench"}
}

func NewBenchDep1() *BenchDep1 { return &BenchDep1{Value: 1} }
func NewBenchDep2() *BenchDep2 { return &BenchDep2{Value: 2} }
func NewBenchDep3() *BenchDep3 { return &BenchDep3{Value: 3} }
func NewBenchDep4() *BenchDep4 { return &BenchDep4{Value: 4} }
func NewBenchDep5() *BenchDep5 { return &BenchDep5{Value: 5} }

func NewBenchServiceWith1Dep(dep1 *BenchDep1) *BenchServiceWith1Dep {
	return &BenchServiceWith1Dep{Dep1: dep1}
}

func NewBenchServiceWith3Deps(dep1 *BenchDep1, dep2 *BenchDep2, dep3 *BenchDep3) *BenchServiceWith3Deps {
	return &BenchServiceWith3Deps{Dep1: dep1, Dep2: dep2, Dep3: dep3}
}

func NewBenchServiceWith5Deps(dep1 *BenchDep1, dep2 *BenchDep2, dep3 *BenchDep3, dep4 *BenchDep4, dep5 *BenchDep5) *BenchServiceWith5Deps {
	return &BenchServiceWith5Deps{Dep1: dep1, Dep2: dep2, Dep3: dep3, Dep4: dep4, Dep5: dep5}
}

// benchModule binds the dependencies and services with the given scope.
func benchModule(scope ScopeID) Module {
	return ModuleFunc(func(b *Binder) {
		bind := func(bb *BindingBuilder, fn any) {
			bb = bb.ToProviderFunc(fn)
			if scope != "" {
				bb.In(scope)
			}
		}

		bind(Bind[*BenchDep1](b), NewBenchDep1)
		bind(Bind[*BenchDep2](b), NewBenchDep2)
		bind(Bind[*BenchDep3](b), NewBenchDep3)
		bind(Bind[*BenchDep4](b), NewBenchDep4)
		bind(Bind[*BenchDep5](b), NewBenchDep5)
		bind(Bind[*BenchService](b), NewBenchService)
		bind(Bind[*BenchServiceWith1Dep](b), NewBenchServiceWith1Dep)
		bind(Bind[*BenchServiceWith3Deps](b), NewBenchServiceWith3Deps)
		bind(Bind[*BenchServiceWith5Deps](b), NewBenchServiceWith5Deps)
	})
}

// setupBenchInjector creates an injector with the specified scope
func setupBenchInjector(b *testing.B, scope ScopeID) *Injector {
	b.Helper()

	injector, err := CreateInjector(benchModule(scope))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = injector.Close() })
	return injector
}

func benchGet[T any](b *testing.B, injector *Injector) {
	b.Helper()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := Get[T](injector); err != nil {
			b.Fatal(err)
		}
	}
}

// ========================================
// Provisioning Benchmarks
// ========================================

func BenchmarkGet_Singleton(b *testing.B) {
	injector := setupBenchInjector(b, SingletonScope)

	b.Run("NoDeps", func(b *testing.B) { benchGet[*BenchService](b, injector) })
	b.Run("1Dep", func(b *testing.B) { benchGet[*BenchServiceWith1Dep](b, injector) })
	b.Run("5Deps", func(b *testing.B) { benchGet[*BenchServiceWith5Deps](b, injector) })
}

func BenchmarkGet_Unscoped(b *testing.B) {
	injector := setupBenchInjector(b, "")

	b.Run("NoDeps", func(b *testing.B) { benchGet[*BenchService](b, injector) })
	b.Run("1Dep", func(b *testing.B) { benchGet[*BenchServiceWith1Dep](b, injector) })
	b.Run("3Deps", func(b *testing.B) { benchGet[*BenchServiceWith3Deps](b, injector) })
	b.Run("5Deps", func(b *testing.B) { benchGet[*BenchServiceWith5Deps](b, injector) })
}

func BenchmarkGet_JustInTime(b *testing.B) {
	injector := setupBenchInjector(b, "")

	// The first request creates the binding; the loop measures lookups of it.
	benchGet[*BenchFieldService](b, injector)
}

func BenchmarkGet_Provider(b *testing.B) {
	injector := setupBenchInjector(b, "")

	provider, err := ProviderFor[*BenchServiceWith3Deps](injector)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := provider(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGet_Concurrent(b *testing.B) {
	injector := setupBenchInjector(b, SingletonScope)

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := Get[*BenchServiceWith5Deps](injector); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// ========================================
// Creation Benchmarks
// ========================================

func BenchmarkCreateInjector(b *testing.B) {
	for _, tc := range []struct {
		name  string
		stage Stage
	}{
		{"Development", Development},
		{"Production", Production},
	} {
		b.Run(tc.name, func(b *testing.B) {
			module := benchModule(SingletonScope)

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				injector, err := NewInjector([]Module{module}, WithStage(tc.stage))
				if err != nil {
					b.Fatal(err)
				}
				_ = injector.Close()
			}
		})
	}
}

func BenchmarkCreateChildInjector(b *testing.B) {
	parent := setupBenchInjector(b, SingletonScope)
	module := ModuleFunc(func(b *Binder) {
		Bind[string](b, Named("request")).ToInstance("id")
	})

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		child, err := parent.CreateChildInjector(module)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Get[*BenchServiceWith1Dep](child); err != nil {
			b.Fatal(err)
		}
		_ = child.Close()
	}
}

// BenchmarkSingletonFirstRequest measures concurrent first requests of a
// singleton in fresh injectors.
func BenchmarkSingletonFirstRequest(b *testing.B) {
	module := benchModule(SingletonScope)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		injector, err := CreateInjector(module)
		if err != nil {
			b.Fatal(err)
		}

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = Get[*BenchServiceWith5Deps](injector)
			}()
		}
		wg.Wait()
		_ = injector.Close()
	}
}
