package shell

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// RealScheduler schedules on the runtime timer.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

type pendingTask struct {
	timer Timer
	fn    func()
	seq   uint64
}

// Debouncer holds at most one pending task per key. Scheduling again under
// the same key restarts the window and replaces the task.
type Debouncer struct {
	mu        sync.Mutex
	scheduler Scheduler
	window    time.Duration
	pending   map[string]*pendingTask
	seq       uint64
}

func NewDebouncer(scheduler Scheduler, window time.Duration) *Debouncer {
	if scheduler == nil {
		scheduler = RealScheduler{}
	}
	return &Debouncer{
		scheduler: scheduler,
		window:    window,
		pending:   make(map[string]*pendingTask),
	}
}

// Schedule runs fn once the key has been quiet for the window.
func (d *Debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.pending[key]; ok {
		existing.timer.Stop()
	}
	d.seq++
	seq := d.seq
	task := &pendingTask{fn: fn, seq: seq}
	d.pending[key] = task
	task.timer = d.scheduler.AfterFunc(d.window, func() {
		d.fire(key, seq)
	})
}

// Cancel drops the pending task for key and reports whether one existed.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, ok := d.pending[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(d.pending, key)
	return true
}

// Flush runs the pending task for key immediately on the caller's goroutine.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	task, ok := d.pending[key]
	if ok {
		task.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}
	task.fn()
	return true
}

// Pending reports whether a task is waiting under key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// fire runs the task only if it is still the latest one for key; a timer
// that lost the race with Stop finds a newer sequence and does nothing.
func (d *Debouncer) fire(key string, seq uint64) {
	d.mu.Lock()
	task, ok := d.pending[key]
	if !ok || task.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	task.fn()
}
