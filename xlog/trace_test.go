package xlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTraceRingDropsWhileDisabled(t *testing.T) {
	r := &TraceRing{}
	require.False(t, r.Enabled())

	r.Push(TraceEntry{Fname: "ignored"})
	require.Empty(t, r.Snapshot())

	r.SetEnabled(true)
	r.Push(TraceEntry{Fname: "recorded"})
	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "recorded", snap[0].Fname)

	r.SetEnabled(false)
	r.Push(TraceEntry{Fname: "ignored-again"})
	require.Len(t, r.Snapshot(), 1)
}

func TestTraceRingOverwritesOldestWhenFull(t *testing.T) {
	r := &TraceRing{}
	r.SetEnabled(true)
	for i := 0; i < traceRingSize+10; i++ {
		r.Push(TraceEntry{Fname: "entry"})
	}
	require.Len(t, r.Snapshot(), traceRingSize)
}
