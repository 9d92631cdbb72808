package binder

import "context"

// Disposable is implemented by singletons that hold resources.
// Injector.Close closes them in reverse creation order.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable interface {
	Close() error
}

// DisposableWithContext allows disposal with context for graceful shutdown.
// It is preferred over Disposable when a singleton implements both.
type DisposableWithContext interface {
	Close(ctx context.Context) error
}
