// Package wqueue defines the work-queue contract spec.md §2 calls out as
// "contract only": the Queue interface, a single ants-backed
// implementation (cmd/sheep builds one, for recovery), and a
// time.AfterFunc-wrapping Timer.
package wqueue

import (
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/ovisfs/sheep/xlog"
)

// Queue is the minimal work-submission contract the recovery engine
// depends on.
type Queue interface {
	Submit(fn func()) error
	Len() int
	Release()
}

// AntsQueue is a Queue backed by a bounded goroutine pool, the corpus's own
// choice for this (ants/v2 appears in the broader example pack's go.mod
// for bounded worker pools).
type AntsQueue struct {
	pool *ants.Pool
}

// NewAntsQueue creates a queue with size workers. A non-blocking pool is
// used: Submit returns ants.ErrPoolOverload if every worker is busy, which
// callers treat as "try again" rather than blocking the caller.
func NewAntsQueue(size int) (*AntsQueue, error) {
	pool, err := ants.NewPool(size, ants.WithNonblocking(true), ants.WithPanicHandler(func(i interface{}) {
		xlog.Errorf("wqueue: worker panic: %v", i)
	}))
	if err != nil {
		return nil, err
	}
	return &AntsQueue{pool: pool}, nil
}

func (q *AntsQueue) Submit(fn func()) error {
	return q.pool.Submit(fn)
}

func (q *AntsQueue) Len() int {
	return q.pool.Running()
}

func (q *AntsQueue) Release() {
	q.pool.Release()
}

// Timer wraps time.AfterFunc; recovery schedules its 2-second RUN retry
// and its retry after a saturated Submit through it. The 1-second
// fill_obj_list backoff uses time.After directly.
type Timer struct {
	t *time.Timer
}

// AfterFunc schedules fn to run after d, returning a Timer that can be
// stopped.
func AfterFunc(d time.Duration, fn func()) *Timer {
	return &Timer{t: time.AfterFunc(d, fn)}
}

// Stop cancels the timer; returns false if it already fired or was
// stopped.
func (t *Timer) Stop() bool {
	return t.t.Stop()
}
