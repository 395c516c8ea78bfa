// Package recovery implements the epoch-driven recovery engine of
// spec.md §4.5: epoch-walk target selection, object-list reconciliation,
// blocking-prefix foreground-priority promotion, and the INIT/RUN state
// machine driving per-OID recovery.
package recovery

import (
	"sort"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/ring"
)

// State is the recovery task's lifecycle state (spec.md §4.5).
type State int

const (
	StateInit State = iota
	StateRun
)

// MaxRetryCnt bounds fill_obj_list's per-node retry loop.
const MaxRetryCnt = 6

// Task is the live recovery task record of spec.md §4.5.
type Task struct {
	State State
	Epoch cmn.Epoch

	Done       int // next OID index to process
	NrBlocking int // number of OIDs at the head being prioritized
	Count      int // total OIDs planned
	Oids       []cmn.OID
	Retry      bool

	OldNodes, CurNodes   []cmn.Node
	OldVnodes, CurVnodes *ring.Placement
}

// NewTask starts a fresh task at the given epoch and node transition.
func NewTask(epoch cmn.Epoch, oldNodes, curNodes []cmn.Node) *Task {
	return &Task{
		State:     StateInit,
		Epoch:     epoch,
		OldNodes:  oldNodes,
		CurNodes:  curNodes,
		OldVnodes: ring.New(oldNodes),
		CurVnodes: ring.New(curNodes),
	}
}

// SortOids sorts t.Oids by obj_cmp (FNV-1a-64 hash), the ordering spec.md
// §4.5 requires so the blocking-prefix promotion's binary search works.
func (t *Task) SortOids() {
	sort.Slice(t.Oids, func(i, j int) bool {
		return ring.ObjCmp(t.Oids[i], t.Oids[j]) < 0
	})
}

// MergeOids merges newOids into t.Oids, keeping the sorted-by-obj_cmp
// invariant and dropping duplicates (fill_obj_list's merge step).
func (t *Task) MergeOids(newOids []cmn.OID) {
	seen := make(map[cmn.OID]bool, len(t.Oids))
	for _, o := range t.Oids {
		seen[o] = true
	}
	for _, o := range newOids {
		if !seen[o] {
			seen[o] = true
			t.Oids = append(t.Oids, o)
		}
	}
	t.SortOids()
	t.Count = len(t.Oids)
}

// IsRecoveringOid implements the foreground-priority coupling predicate
// is_recoverying_oid of spec.md §4.5.
//
//  1. If the task is still INIT, or running against an epoch older than
//     currentEpoch, foreground I/O always waits.
//  2. If oid is already in the blocking prefix, it waits.
//  3. Otherwise binary-search the sorted tail for oid (restricted to
//     hashes >= the current head hash); if found, promote it into the
//     blocking prefix and wait. Note the search floor is the *head*
//     hash, not oid's own hash: this gate is intentionally tight and can
//     occasionally miss a promotion candidate whose hash precedes the
//     head — a deliberate, preserved trade-off (spec.md §9), not a bug.
//  4. Otherwise the foreground I/O proceeds against peers that already
//     have the object.
func (t *Task) IsRecoveringOid(oid cmn.OID, currentEpoch cmn.Epoch) bool {
	if t.State == StateInit || t.Epoch < currentEpoch {
		return true
	}

	blockEnd := t.Done + t.NrBlocking
	for i := t.Done; i < blockEnd && i < len(t.Oids); i++ {
		if t.Oids[i] == oid {
			return true
		}
	}

	tailStart := blockEnd
	if tailStart >= t.Count || tailStart >= len(t.Oids) {
		return false
	}
	headHash := ring.FnvHash(t.Oids[t.Done])
	oidHash := ring.FnvHash(oid)
	if oidHash < headHash {
		return false
	}

	tail := t.Oids[tailStart:t.Count]
	idx := sort.Search(len(tail), func(i int) bool {
		return ring.FnvHash(tail[i]) >= oidHash
	})
	if idx >= len(tail) || tail[idx] != oid {
		return false
	}

	t.promote(tailStart+idx, tailStart)
	return true
}

// promote swaps the OID at absolute index idx into position
// t.Done+t.NrBlocking (dst) and grows the blocking prefix by one. The
// remaining tail (everything after dst, excluding the now-promoted slot)
// is re-sorted by obj_cmp so the "sorted tail" invariant (spec.md §8)
// holds after any sequence of promotions, not just the first.
func (t *Task) promote(idx, tailStart int) {
	dst := t.Done + t.NrBlocking
	if idx != dst {
		t.Oids[dst], t.Oids[idx] = t.Oids[idx], t.Oids[dst]
	}
	t.NrBlocking++

	rest := t.Oids[tailStart+1 : t.Count]
	sort.Slice(rest, func(i, j int) bool {
		return ring.ObjCmp(rest[i], rest[j]) < 0
	})
}

// Finished reports whether every planned OID has been processed.
func (t *Task) Finished() bool {
	return t.Done >= t.Count
}
