package pkgcore

import (
	"sync"
	"sync/atomic"
)

// triggers holds process-wide finalizers queued by the installer while
// extracting packages (§4.9 "RC start", and the upgrade cleanup pass's
// "emit cleanup triggers for each deleted path"). They run once, after the
// current batch of installs/upgrades has committed, so that e.g. a service
// restart trigger fires only after every package in the transaction is on
// disk.
var triggers struct {
	sync.Mutex
	fns    []func() error
	closed uint32
}

// RegisterTrigger queues fn to run the next time RunTriggers is called. It
// must not be called from within a trigger function.
func RegisterTrigger(fn func() error) {
	if atomic.LoadUint32(&triggers.closed) != 0 {
		panic("BUG: RegisterTrigger must not be called from a trigger func")
	}
	triggers.Lock()
	defer triggers.Unlock()
	triggers.fns = append(triggers.fns, fn)
}

// RunTriggers runs every queued trigger in registration order, stopping at
// the first error. Already-run triggers are not re-run on a later call.
func RunTriggers() error {
	triggers.Lock()
	fns := triggers.fns
	triggers.fns = nil
	triggers.Unlock()
	atomic.StoreUint32(&triggers.closed, 1)
	defer atomic.StoreUint32(&triggers.closed, 0)
	for _, fn := range fns {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
