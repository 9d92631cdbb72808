package binder

import (
	"context"
	"fmt"
	"sync"
)

// lifecycleManager tracks disposable singletons owned by one injector.
type lifecycleManager struct {
	mu          sync.Mutex
	disposables []any
}

func newLifecycleManager() *lifecycleManager {
	return &lifecycleManager{}
}

// track records instance if it can be disposed.
func (m *lifecycleManager) track(instance any) {
	switch instance.(type) {
	case Disposable, DisposableWithContext:
	default:
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposables = append(m.disposables, instance)
}

// dispose closes all tracked instances in reverse order (LIFO).
func (m *lifecycleManager) dispose(ctx context.Context) error {
	m.mu.Lock()
	disposables := m.disposables
	m.disposables = nil
	m.mu.Unlock()

	var errs []error
	for i := len(disposables) - 1; i >= 0; i-- {
		var err error
		switch d := disposables[i].(type) {
		case DisposableWithContext:
			err = d.Close(ctx)
		case Disposable:
			err = d.Close()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("closing %T: %w", disposables[i], err))
		}
	}

	if len(errs) > 0 {
		return DisposalError{Errors: errs}
	}
	return nil
}
