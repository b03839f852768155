package transport

import "sync"

// Locker is the subset of sync.Locker this package needs. Every lock
// named in §5 is optional: "if absent, operations proceed without
// synchronization." A Transport is always given a Locker — callers that
// want no synchronization pass NoLock{}.
//
// Grounded on dma.Region (teacher), which embeds a plain sync.Mutex
// rather than a sync.RWMutex; nothing in this pack ever uses an
// RWMutex, so locks here stay single-mode too.
type Locker interface {
	Lock()
	Unlock()
}

// NoLock is a Locker that performs no synchronization, for embedders
// that guarantee single-threaded access to a Transport themselves.
type NoLock struct{}

func (NoLock) Lock()   {}
func (NoLock) Unlock() {}

// compile-time assertions that both satisfy Locker.
var (
	_ Locker = (*sync.Mutex)(nil)
	_ Locker = NoLock{}
)
