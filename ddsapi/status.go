package ddsapi

import (
	"sync"
	"time"

	"github.com/go-rtps/rtps/core/ddserror"
)

// StatusCondition is the non-callback alternative to a listener (spec §6):
// every entity exposes one, and it fires whenever that entity's status
// changes, whether or not a listener is installed. A WaitSet blocks until
// at least one attached condition fires.
type StatusCondition struct {
	mu sync.Mutex
	ch chan struct{}
}

func newStatusCondition() *StatusCondition {
	return &StatusCondition{ch: make(chan struct{})}
}

// trigger wakes every WaitSet currently blocked on this condition.
func (c *StatusCondition) trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.ch)
	c.ch = make(chan struct{})
}

// signal returns the channel that closes on the condition's next trigger.
func (c *StatusCondition) signal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch
}

// WaitSet blocks a caller until one of its attached StatusConditions
// fires, or a Duration timeout elapses (spec §6).
type WaitSet struct {
	mu         sync.Mutex
	conditions []*StatusCondition
}

// NewWaitSet constructs an empty WaitSet.
func NewWaitSet() *WaitSet {
	return &WaitSet{}
}

// Attach adds c to the set of conditions this WaitSet blocks on.
func (w *WaitSet) Attach(c *StatusCondition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conditions = append(w.conditions, c)
}

// Detach removes c from the WaitSet.
func (w *WaitSet) Detach(c *StatusCondition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.conditions {
		if existing == c {
			w.conditions = append(w.conditions[:i], w.conditions[i+1:]...)
			return
		}
	}
}

// Wait blocks until any attached condition fires or timeout elapses,
// returning ddserror.Timeout in the latter case (spec §6, §7).
func (w *WaitSet) Wait(timeout time.Duration) error {
	w.mu.Lock()
	conditions := make([]*StatusCondition, len(w.conditions))
	copy(conditions, w.conditions)
	w.mu.Unlock()

	fired := make(chan struct{}, 1)
	stop := make(chan struct{})
	defer close(stop)

	for _, c := range conditions {
		go func(c *StatusCondition) {
			select {
			case <-c.signal():
				select {
				case fired <- struct{}{}:
				default:
				}
			case <-stop:
			}
		}(c)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-fired:
		return nil
	case <-timer.C:
		return ddserror.New(ddserror.Timeout, "waitset: no condition fired within %s", timeout)
	}
}
