package connection

import "time"

// Clock schedules delayed callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// task is a named, individually cancellable scheduled callback.
//
// All methods must be called with the manager lock held. The callback passed
// to arm runs with the lock held as well.
type task struct {
	name  string
	clock Clock
	lock  func() func()

	timer Timer
	gen   uint64
}

func newTask(name string, clock Clock, lock func() func()) *task {
	return &task{name: name, clock: clock, lock: lock}
}

// arm cancels any pending schedule and schedules fn after d.
func (t *task) arm(d time.Duration, fn func()) {
	t.cancel()
	gen := t.gen
	t.timer = t.clock.AfterFunc(d, func() {
		unlock := t.lock()
		defer unlock()

		// Cancelled or re-armed after this callback was already in flight.
		if t.gen != gen {
			return
		}
		t.timer = nil
		fn()
	})
}

// cancel stops the pending schedule. Safe to call when nothing is pending.
func (t *task) cancel() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// pending reports whether a callback is scheduled and not yet run.
func (t *task) pending() bool {
	return t.timer != nil
}
