package wqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAntsQueueRunsSubmittedWork(t *testing.T) {
	q, err := NewAntsQueue(4)
	require.NoError(t, err)
	defer q.Release()

	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	require.NoError(t, q.Submit(func() {
		ran = true
		wg.Done()
	}))
	wg.Wait()
	require.True(t, ran)
}

func TestTimerFiresAfterDelay(t *testing.T) {
	fired := make(chan struct{})
	timer := AfterFunc(10*time.Millisecond, func() { close(fired) })
	defer timer.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimerStopPreventsFire(t *testing.T) {
	fired := false
	timer := AfterFunc(50*time.Millisecond, func() { fired = true })
	require.True(t, timer.Stop())
	time.Sleep(100 * time.Millisecond)
	require.False(t, fired)
}
