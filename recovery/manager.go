package recovery

import (
	"sync"
	"time"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/ring"
	"github.com/ovisfs/sheep/wqueue"
	"github.com/ovisfs/sheep/xlog"
)

// ObjLister fetches the object list a peer believes it holds for an epoch,
// request_obj_list in spec.md §4.5.
type ObjLister interface {
	RequestObjList(node cmn.Node, epoch cmn.Epoch) ([]cmn.OID, error)
}

// Source resolves the vnode placement and node list effective as of a
// given epoch, consulting local epoch logs first and remote peers second
// (get_vnodes_from_epoch).
type Source interface {
	VnodesAtEpoch(epoch cmn.Epoch) (*ring.Placement, []cmn.Node, error)
}

// LocalStore is the subset of the store driver recovery touches directly.
type LocalStore interface {
	HasLocal(oid cmn.OID, epoch cmn.Epoch) bool
	LinkLocal(oid cmn.OID, epoch, tgtEpoch cmn.Epoch) error
	PutLocal(oid cmn.OID, epoch cmn.Epoch, body []byte) error
}

// RemoteFetcher reads an object from a peer for recovery (RECOVERY|IO_LOCAL
// flagged).
type RemoteFetcher interface {
	FetchRemote(node cmn.Node, oid cmn.OID, tgtEpoch cmn.Epoch) ([]byte, cmn.ResultCode, error)
}

// Manager owns the single live recovery task plus its queued successor and
// any task suspended on a foreground-request collision, per spec.md §4.5's
// single-owner convention.
type Manager struct {
	Self          cmn.Node
	Copies        uint8
	Lister        ObjLister
	Source        Source
	Store         LocalStore
	Remote        RemoteFetcher
	Queue         wqueue.Queue
	Ledger        *Ledger
	RetryInterval time.Duration // fill_obj_list's 1s backoff
	RunRetryDelay time.Duration // RUN's 2s retry timer

	mu                    sync.Mutex
	recoveringWork        *Task
	nextRw                *Task
	suspendedRecoveryWork *Task
	abort                 chan struct{}
}

func NewManager(self cmn.Node, copies uint8, lister ObjLister, source Source, store LocalStore, remote RemoteFetcher, queue wqueue.Queue, ledger *Ledger) *Manager {
	return &Manager{
		Self:          self,
		Copies:        copies,
		Lister:        lister,
		Source:        source,
		Store:         store,
		Remote:        remote,
		Queue:         queue,
		Ledger:        ledger,
		RetryInterval: time.Second,
		RunRetryDelay: 2 * time.Second,
	}
}

// Start begins recovery for a new epoch transition. A new incoming epoch
// while recovery is in flight replaces any queued successor, because only
// the newest epoch's view is correct.
func (m *Manager) Start(epoch cmn.Epoch, oldNodes, curNodes []cmn.Node) {
	t := NewTask(epoch, oldNodes, curNodes)

	m.mu.Lock()
	if m.recoveringWork != nil {
		m.nextRw = t
		m.mu.Unlock()
		return
	}
	if m.abort != nil {
		close(m.abort)
	}
	m.abort = make(chan struct{})
	m.recoveringWork = t
	m.mu.Unlock()

	go m.fillObjList(t)
}

// CurrentTask returns the live recovery task, or nil if idle. Exposed for
// the gateway's is_recoverying_oid check.
func (m *Manager) CurrentTask() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoveringWork
}

// fillObjList implements the INIT state's object-list reconciliation: for
// every current-epoch node also present in old_nodes (i.e. not newly
// joined), fetch its epoch-1 object list, retrying up to MaxRetryCnt with
// a 1-second sleep between attempts, then screen and merge.
func (m *Manager) fillObjList(t *Task) {
	abort := m.abort
	oldSet := make(map[cmn.Node]bool, len(t.OldNodes))
	for _, n := range t.OldNodes {
		oldSet[n] = true
	}

	copies := int(m.Copies)
	for _, node := range t.CurNodes {
		if !oldSet[node] {
			continue // newly joined node has nothing to contribute
		}
		select {
		case <-abort:
			return
		default:
		}

		oids, ok := m.requestWithRetry(node, t.Epoch-1, abort)
		if !ok {
			continue
		}
		screened := screenForThisNode(oids, t.CurVnodes, m.Self, copies)
		t.MergeOids(screened)
	}

	select {
	case <-abort:
		return
	default:
	}
	m.transitionToRun(t)
}

func (m *Manager) requestWithRetry(node cmn.Node, epoch cmn.Epoch, abort chan struct{}) ([]cmn.OID, bool) {
	for attempt := 0; attempt < MaxRetryCnt; attempt++ {
		oids, err := m.Lister.RequestObjList(node, epoch)
		if err == nil {
			return oids, true
		}
		xlog.Warningf("recovery: request_obj_list %s epoch=%d attempt=%d: %v", node, epoch, attempt, err)
		select {
		case <-abort:
			return nil, false
		case <-time.After(m.RetryInterval):
		}
	}
	return nil, false
}

// screenForThisNode keeps only OIDs for which self is among the top
// `copies` replicas at the current epoch.
func screenForThisNode(oids []cmn.OID, curVnodes *ring.Placement, self cmn.Node, copies int) []cmn.OID {
	out := oids[:0:0]
	for _, oid := range oids {
		for _, n := range curVnodes.Replicas(oid, copies) {
			if n.Equal(self) {
				out = append(out, oid)
				break
			}
		}
	}
	return out
}

func (m *Manager) transitionToRun(t *Task) {
	t.State = StateRun
	m.runNext(t)
}

// runNext drains the task one OID at a time on the recovery worker queue.
func (m *Manager) runNext(t *Task) {
	if t.Finished() {
		m.finish(t)
		return
	}
	oid := t.Oids[t.Done]
	if err := m.Queue.Submit(func() { m.recoverObject(t, oid) }); err != nil {
		// Worker pool saturated; retry shortly rather than dropping the OID.
		wqueue.AfterFunc(m.RunRetryDelay, func() { m.runNext(t) })
	}
}

// doRecoverMain is the RUN completion callback: advances done (unless
// retry was set), decrements nr_blocking if positive, then schedules the
// next OID, a 2-second retry timer, or finishes (spec.md §4.5).
func (m *Manager) doRecoverMain(t *Task) {
	if !t.Retry {
		t.Done++
	}
	if t.NrBlocking > 0 {
		t.NrBlocking--
	}

	if t.Retry {
		t.Retry = false
		wqueue.AfterFunc(m.RunRetryDelay, func() { m.runNext(t) })
		return
	}
	m.runNext(t)
}

func (m *Manager) finish(t *Task) {
	m.mu.Lock()
	next := m.nextRw
	m.nextRw = nil
	if m.recoveringWork == t {
		m.recoveringWork = next
	}
	if next != nil {
		if m.abort != nil {
			close(m.abort)
		}
		m.abort = make(chan struct{})
	}
	m.mu.Unlock()

	if next != nil {
		go m.fillObjList(next)
	}
}

// recoverObject implements recover_object: skip if already local, else
// determine this node's copy_idx and try do_recover_object, falling back
// across other copy indices until one succeeds or all fail.
func (m *Manager) recoverObject(t *Task, oid cmn.OID) {
	defer m.doRecoverMain(t)

	if m.Store.HasLocal(oid, t.Epoch) {
		return
	}

	copies := int(m.Copies)
	curReplicas := t.CurVnodes.Replicas(oid, copies)
	copyIdx := -1
	for i, n := range curReplicas {
		if n.Equal(m.Self) {
			copyIdx = i
			break
		}
	}
	if copyIdx < 0 {
		xlog.Warningf("recovery: oid=%d has no replica slot for self at epoch=%d", oid, t.Epoch)
		m.Ledger.RecordLost(oid, t.Epoch, "no replica slot for self")
		return
	}

	order := append([]int{copyIdx}, otherIndices(copyIdx, len(curReplicas))...)
	for _, idx := range order {
		if m.doRecoverObject(t, oid, idx, curReplicas) {
			return
		}
		if t.Retry {
			return // transient/stale-view: defer to the RUN retry timer
		}
	}
	m.Ledger.RecordLost(oid, t.Epoch, "exhausted all replica-slot attempts")
}

func otherIndices(exclude, n int) []int {
	out := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != exclude {
			out = append(out, i)
		}
	}
	return out
}

// doRecoverObject implements do_recover_object's epoch walk: starting at
// epoch-1, find the correspondence target via find_tgt_node, recover
// locally via hard-link if the target lives here, else fetch remotely and
// atomic_put; on hard failure walk one epoch older.
func (m *Manager) doRecoverObject(t *Task, oid cmn.OID, copyIdx int, curReplicas []cmn.Node) bool {
	copies := int(m.Copies)
	tgtEpoch := t.Epoch - 1

	oldPlacement, _, err := m.Source.VnodesAtEpoch(tgtEpoch)
	if err != nil {
		return false
	}
	oldReplicas := oldPlacement.Replicas(oid, copies)

	for {
		if len(oldReplicas) <= copyIdx {
			return false // previous epoch couldn't hold this replica slot
		}
		tgtIdx := ring.FindTgtNode(curReplicas, oldReplicas, copyIdx)
		if tgtIdx >= len(oldReplicas) {
			return false
		}
		tgtNode := oldReplicas[tgtIdx]

		var ok bool
		if tgtNode.Equal(m.Self) {
			ok = m.Store.LinkLocal(oid, t.Epoch, tgtEpoch) == nil
		} else {
			body, result, err := m.Remote.FetchRemote(tgtNode, oid, tgtEpoch)
			switch {
			case err != nil, result.IsTransient(), result.IsStaleView():
				t.Retry = true
				return false
			case result == cmn.ResSuccess:
				ok = m.Store.PutLocal(oid, t.Epoch, body) == nil
			default:
				ok = false
			}
		}
		if ok {
			return true
		}

		tgtEpoch--
		if tgtEpoch < 1 {
			return false
		}
		curReplicas = oldReplicas
		nextPlacement, _, err := m.Source.VnodesAtEpoch(tgtEpoch)
		if err != nil {
			return false
		}
		oldPlacement = nextPlacement
		oldReplicas = oldPlacement.Replicas(oid, copies)
	}
}
