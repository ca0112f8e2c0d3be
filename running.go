package dieselxr

import "sync/atomic"

// KeepRunning is the stop request shared between a signal handler and the frame
// loop. It starts out set; Stop is the only write.
type KeepRunning struct {
	v atomic.Bool
}

func NewKeepRunning() *KeepRunning {
	k := &KeepRunning{}
	k.v.Store(true)
	return k
}

// Stop asks the loop to wind the session down. Safe from any goroutine.
func (k *KeepRunning) Stop() {
	k.v.Store(false)
}

func (k *KeepRunning) Continue() bool {
	return k.v.Load()
}
