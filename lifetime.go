package dieselxr

import "github.com/pkg/errors"

type lifetimeEntry struct {
	name    string
	destroy func()
}

// Lifetime records destroy functions in construction order and runs them in
// reverse, after a device idle barrier.
type Lifetime struct {
	barrier func() error
	entries []lifetimeEntry
	done    bool
}

// SetBarrier installs the idle barrier, normally GraphicsContext.WaitIdle, once
// the device exists.
func (l *Lifetime) SetBarrier(barrier func() error) {
	l.barrier = barrier
}

// Push registers the destroy function of an object that was just created.
func (l *Lifetime) Push(name string, destroy func()) {
	l.entries = append(l.entries, lifetimeEntry{name: name, destroy: destroy})
}

func (l *Lifetime) Len() int {
	return len(l.entries)
}

// Teardown waits for the device to go idle, then destroys every object in reverse
// order. When the barrier fails nothing is destroyed, since GPU work may still
// reference the objects.
func (l *Lifetime) Teardown() error {
	if l.done {
		return nil
	}
	log := Logger()
	if l.barrier != nil {
		if err := l.barrier(); err != nil {
			return errors.Wrap(err, "device idle before teardown")
		}
	}
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		log.Debug("destroy", "object", e.name)
		e.destroy()
	}
	log.Info("teardown complete", "objects", len(l.entries))
	l.entries = nil
	l.done = true
	return nil
}
