package binder

import "sync"

type lockResult int

const (
	lockAcquired lockResult = iota + 1
	lockHeld
	lockCycle
)

// waitGraph records the lock each blocked provisioning is waiting for. All
// provisionLocks share it so cycles spanning injectors are visible.
var waitGraph = struct {
	mu      sync.Mutex
	waiting map[*provisioning]*provisionLock
}{waiting: make(map[*provisioning]*provisionLock)}

// provisionLock serializes provisionings of one binding. It is owned by a
// provisioning rather than a goroutine, so the owner may re-enter it.
//
// A provisioning never waits for a lock if doing so would close a cycle of
// provisionings waiting on each other. acquire reports lockCycle instead
// and runs onCycle while the owner is known to be blocked.
type provisionLock struct {
	owner    *provisioning
	released chan struct{}
}

func (l *provisionLock) acquire(p *provisioning, onCycle func(owner *provisioning)) lockResult {
	waitGraph.mu.Lock()
	defer waitGraph.mu.Unlock()

	for {
		delete(waitGraph.waiting, p)

		switch l.owner {
		case nil:
			l.owner = p
			l.released = make(chan struct{})
			return lockAcquired
		case p:
			return lockHeld
		}

		if l.waitCloses(p) {
			onCycle(l.owner)
			return lockCycle
		}

		waitGraph.waiting[p] = l
		released := l.released

		waitGraph.mu.Unlock()
		<-released
		waitGraph.mu.Lock()
	}
}

// waitCloses reports whether p waiting for l would close a cycle: following
// each owner to the lock it waits for leads back to p.
func (l *provisionLock) waitCloses(p *provisioning) bool {
	owner := l.owner
	for range len(waitGraph.waiting) + 1 {
		if owner == nil {
			return false
		}
		if owner == p {
			return true
		}
		next, ok := waitGraph.waiting[owner]
		if !ok {
			return false
		}
		owner = next.owner
	}
	return false
}

func (l *provisionLock) release() {
	waitGraph.mu.Lock()
	defer waitGraph.mu.Unlock()

	l.owner = nil
	close(l.released)
}
