package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/junioryono/binder"
)

// Common test errors
var (
	ErrTest          = errors.New("test error")
	ErrConstructor   = errors.New("constructor error")
	ErrDisposal      = errors.New("disposal error")
	ErrAlreadyClosed = errors.New("already closed")
)

// TestService is a basic test service
type TestService struct {
	ID   string
	Data string
}

// NewTestService creates a new test service
func NewTestService() *TestService {
	return &TestService{
		ID:   uuid.NewString(),
		Data: "test",
	}
}

// TestLogger is a test logger interface
type TestLogger interface {
	Log(msg string)
	GetLogs() []string
}

// TestLoggerImpl implements TestLogger
type TestLoggerImpl struct {
	logs []string
	mu   sync.Mutex
}

func NewTestLogger() TestLogger {
	return &TestLoggerImpl{}
}

func (l *TestLoggerImpl) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, msg)
}

func (l *TestLoggerImpl) GetLogs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make([]string, len(l.logs))
	copy(result, l.logs)
	return result
}

// TestDatabase is a test database interface
type TestDatabase interface {
	Query(sql string) string
	Close() error
}

// TestDatabaseImpl implements TestDatabase and binder.Disposable
type TestDatabaseImpl struct {
	name    string
	closed  bool
	closeMu sync.Mutex
}

func NewTestDatabase() TestDatabase {
	return &TestDatabaseImpl{name: "testdb"}
}

func NewTestDatabaseNamed(name string) TestDatabase {
	return &TestDatabaseImpl{name: name}
}

func (d *TestDatabaseImpl) Query(sql string) string {
	return fmt.Sprintf("%s: %s", d.name, sql)
}

func (d *TestDatabaseImpl) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()

	if d.closed {
		return ErrAlreadyClosed
	}
	d.closed = true
	return nil
}

func (d *TestDatabaseImpl) IsClosed() bool {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	return d.closed
}

// TestCache is a test cache interface
type TestCache interface {
	Get(key string) (string, bool)
	Set(key string, value string)
}

// TestCacheImpl implements TestCache
type TestCacheImpl struct {
	data map[string]string
	mu   sync.RWMutex
}

func NewTestCache() TestCache {
	return &TestCacheImpl{data: make(map[string]string)}
}

func (c *TestCacheImpl) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.data[key]
	return val, ok
}

func (c *TestCacheImpl) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]string)
	}
	c.data[key] = value
}

// TestServiceWithDeps has its dependencies injected into fields
type TestServiceWithDeps struct {
	Logger   TestLogger   `inject:""`
	Database TestDatabase `inject:""`
	Cache    TestCache    `inject:"" optional:"true"`
	ID       string
}

// TestServiceParams demonstrates parameter objects
type TestServiceParams struct {
	binder.In

	Logger   TestLogger
	Database TestDatabase
	Cache    TestCache `optional:"true"`
}

// TestServiceWithParams is built from TestServiceParams
type TestServiceWithParams struct {
	Params TestServiceParams
}

func NewTestServiceWithParams(params TestServiceParams) *TestServiceWithParams {
	return &TestServiceWithParams{Params: params}
}

// DisposalRecorder records the order in which disposables close
type DisposalRecorder struct {
	mu     sync.Mutex
	closed []string
}

func (r *DisposalRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, name)
}

// Closed returns the names in closing order.
func (r *DisposalRecorder) Closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closed...)
}

// TestDisposable is a test type that implements binder.Disposable
type TestDisposable struct {
	Name     string
	recorder *DisposalRecorder
	err      error
	disposed atomic.Bool
}

func NewTestDisposable(name string, recorder *DisposalRecorder) *TestDisposable {
	return &TestDisposable{Name: name, recorder: recorder}
}

func NewTestDisposableWithError(name string, err error) *TestDisposable {
	return &TestDisposable{Name: name, err: err}
}

func (s *TestDisposable) Close() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	if s.recorder != nil {
		s.recorder.record(s.Name)
	}
	return s.err
}

func (s *TestDisposable) IsDisposed() bool {
	return s.disposed.Load()
}

// TestContextDisposable implements binder.DisposableWithContext
type TestContextDisposable struct {
	mu  sync.Mutex
	ctx context.Context
}

func (s *TestContextDisposable) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return ctx.Err()
}

func (s *TestContextDisposable) WasDisposedWithContext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

// Greeter and Namer depend on each other through their constructors.
type Greeter interface {
	Greet() string
}

type Namer interface {
	Name() string
}

// GreeterImpl needs a Namer.
type GreeterImpl struct {
	Namer Namer
}

func NewGreeter(namer Namer) Greeter {
	return &GreeterImpl{Namer: namer}
}

func (g *GreeterImpl) Greet() string {
	return "hello " + g.Namer.Name()
}

// NamerImpl needs a Greeter.
type NamerImpl struct {
	Greeter Greeter
}

func NewNamer(greeter Greeter) Namer {
	return &NamerImpl{Greeter: greeter}
}

func (n *NamerImpl) Name() string {
	return "world"
}

type greeterProxy struct {
	d *binder.Delegate[Greeter]
}

func (p greeterProxy) Greet() string { return p.d.Get().Greet() }

// GreeterProxies returns a proxy registry that can stand in for Greeter.
func GreeterProxies() *binder.Proxies {
	proxies := binder.NewProxies()
	if err := binder.RegisterProxy(proxies, func(d *binder.Delegate[Greeter]) Greeter {
		return greeterProxy{d}
	}); err != nil {
		panic(err)
	}
	return proxies
}

// CircularServiceA and CircularServiceB form a constructor cycle of
// concrete types, which cannot be proxied.
type CircularServiceA struct {
	B *CircularServiceB
}

type CircularServiceB struct {
	A *CircularServiceA
}

func NewCircularServiceA(b *CircularServiceB) *CircularServiceA {
	return &CircularServiceA{B: b}
}

func NewCircularServiceB(a *CircularServiceA) *CircularServiceB {
	return &CircularServiceB{A: a}
}

// FieldNodeA and FieldNodeB form a cycle through injected fields.
type FieldNodeA struct {
	B *FieldNodeB `inject:""`
}

type FieldNodeB struct {
	A *FieldNodeA `inject:""`
}

// CountingProvider is a binder.Provider that counts its calls.
type CountingProvider struct {
	calls atomic.Int64
	New   func() any
}

func (p *CountingProvider) Get() (any, error) {
	p.calls.Add(1)
	return p.New(), nil
}

// Calls returns how often Get was called.
func (p *CountingProvider) Calls() int {
	return int(p.calls.Load())
}

// DecoratedLogger wraps another logger with a prefix
type DecoratedLogger struct {
	Inner  TestLogger
	Prefix string
}

func (d *DecoratedLogger) Log(message string) {
	d.Inner.Log(d.Prefix + message)
}

func (d *DecoratedLogger) GetLogs() []string {
	return d.Inner.GetLogs()
}

// SingletonCache declares its own scope.
type SingletonCache struct {
	ID string
}

func (*SingletonCache) BinderScope() binder.ScopeID {
	return binder.SingletonScope
}
