// Package gateway implements the I/O forwarding path of spec.md §4.3:
// local-vs-forward dispatch, poll-based multi-replica write coordination,
// and read-path consistency repair.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/metrics"
	"github.com/ovisfs/sheep/peer"
	"github.com/ovisfs/sheep/ring"
	"github.com/ovisfs/sheep/xlog"
)

// DefaultSocketTimeout bounds forwarded writes, per spec.md §4.3.
const DefaultSocketTimeout = 3 * time.Second

// LocalExecutor runs a request against this node's own store/object cache.
// Kept as an interface so the gateway's dispatch logic is testable without
// a real store driver wired in.
type LocalExecutor interface {
	ExecLocal(req cmn.RequestHeader, body []byte) (cmn.ResponseHeader, []byte, error)
}

// Gateway dispatches requests either locally or to replica peers.
type Gateway struct {
	Self    cmn.Node
	Local   LocalExecutor
	Peers   *peer.Pool
	Timeout time.Duration

	// Metrics is consulted passively, never fed back into dispatch
	// decisions; nil disables observation entirely.
	Metrics *metrics.Metrics
}

func New(self cmn.Node, local LocalExecutor, peers *peer.Pool) *Gateway {
	return &Gateway{Self: self, Local: local, Peers: peers, Timeout: DefaultSocketTimeout}
}

// replicaCount computes min(hdr.copies or default, req.nr_zones), the
// effective replica count of spec.md §4.3 step 1.
func replicaCount(hdr cmn.RequestHeader, defaultCopies uint8) int {
	copies := hdr.Copies
	if copies == 0 {
		copies = defaultCopies
	}
	if hdr.NrZones > 0 && int(copies) > hdr.NrZones {
		return hdr.NrZones
	}
	return int(copies)
}

// ForwardRead implements forward_read_obj_req: if this node is among the
// first `copies` replicas, serve locally; otherwise dispatch to replica 0.
func (g *Gateway) ForwardRead(hdr cmn.RequestHeader, replicas []cmn.Node, defaultCopies uint8) (cmn.ResponseHeader, []byte, error) {
	if g.Metrics != nil {
		start := time.Now()
		defer func() { g.Metrics.GatewayReadLatency.Observe(time.Since(start).Seconds()) }()
	}
	copies := replicaCount(hdr, defaultCopies)
	if copies > len(replicas) {
		copies = len(replicas)
	}
	for i := 0; i < copies; i++ {
		if replicas[i].Equal(g.Self) {
			return g.Local.ExecLocal(hdr, nil)
		}
	}
	if len(replicas) == 0 {
		return cmn.ResponseHeader{Result: cmn.ResEIO}, nil, nil
	}
	target := replicas[0]
	fwd := hdr
	fwd.Flags |= cmn.FlagCmdIOLocal
	resp, body, err := g.Peers.Exec(target, hdr.Epoch, fwd, nil)
	if err != nil {
		return cmn.ResponseHeader{Result: cmn.ResNetworkError}, nil, err
	}
	return resp, body, nil
}

type writeOutcome struct {
	result cmn.ResultCode
}

// ForwardWrite implements forward_write_obj_req's poll-one,
// compact-then-continue coordination: each replica's request is dispatched
// concurrently, local I/O runs synchronously, and the aggregate result is
// SUCCESS iff every replica succeeded; otherwise the first non-success
// observed (spec.md §4.3 step 5).
func (g *Gateway) ForwardWrite(hdr cmn.RequestHeader, body []byte, replicas []cmn.Node, defaultCopies uint8) (resp cmn.ResponseHeader, err error) {
	if g.Metrics != nil {
		start := time.Now()
		defer func() {
			g.Metrics.GatewayWriteLatency.Observe(time.Since(start).Seconds())
			if resp.Result == cmn.ResSuccess {
				g.Metrics.ForwardedWritesOK.Inc()
			} else {
				g.Metrics.ForwardedWritesFailed.Inc()
			}
		}()
	}
	copies := replicaCount(hdr, defaultCopies)
	if copies > len(replicas) {
		copies = len(replicas)
	}
	if copies == 0 {
		return cmn.ResponseHeader{Result: cmn.ResSuccess}, nil
	}

	fwd := hdr
	fwd.Flags |= cmn.FlagCmdIOLocal

	var localResp cmn.ResponseHeader
	var localExecuted bool
	var remotes []cmn.Node
	for i := 0; i < copies; i++ {
		if replicas[i].Equal(g.Self) {
			localExecuted = true
			var err error
			localResp, _, err = g.Local.ExecLocal(fwd, body)
			if err != nil {
				localResp.Result = cmn.ResEIO
			}
			continue
		}
		remotes = append(remotes, replicas[i])
	}

	if localExecuted && (localResp.Result != cmn.ResSuccess || len(remotes) == 0) {
		return localResp, nil
	}
	if len(remotes) == 0 {
		return cmn.ResponseHeader{Result: cmn.ResSuccess}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	results := make(chan writeOutcome, len(remotes))
	var wg sync.WaitGroup
	for _, n := range remotes {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _, err := g.Peers.Exec(n, hdr.Epoch, fwd, body)
			if err != nil {
				results <- writeOutcome{result: cmn.ResNetworkError}
				return
			}
			results <- writeOutcome{result: resp.Result}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	first := cmn.ResSuccess
	count := 0
	for count < len(remotes) {
		select {
		case out, ok := <-results:
			if !ok {
				count = len(remotes)
				break
			}
			count++
			if first == cmn.ResSuccess && out.result != cmn.ResSuccess {
				first = out.result
			}
		case <-ctx.Done():
			for _, n := range remotes {
				g.Peers.Evict(n, hdr.Epoch)
			}
			return cmn.ResponseHeader{Result: cmn.ResNetworkError}, nil
		}
	}

	if localExecuted && localResp.Result != cmn.ResSuccess && first == cmn.ResSuccess {
		first = localResp.Result
	}
	return cmn.ResponseHeader{Result: first}, nil
}

// FixObjectConsistency implements the read-path consistency repair of
// spec.md §4.3: fetch the authoritative body via a forwarded read, then
// write it back to every replica, upgrading stale copies. Idempotent
// w.r.t. request headers.
func (g *Gateway) FixObjectConsistency(hdr cmn.RequestHeader, replicas []cmn.Node, defaultCopies uint8) (cmn.ResponseHeader, []byte, error) {
	orig := hdr
	readResp, body, err := g.ForwardRead(hdr, replicas, defaultCopies)
	if err != nil || readResp.Result != cmn.ResSuccess {
		return readResp, nil, err
	}

	writeHdr := orig
	writeHdr.Opcode = cmn.OpWrite
	if _, err := g.ForwardWrite(writeHdr, body, replicas, defaultCopies); err != nil {
		xlog.Warningf("gateway: consistency repair write-back failed for oid=%d: %v", orig.Oid, err)
	}
	return readResp, body, nil
}

// ReadCopyFromCluster implements read_copy_from_cluster: try every vnode
// in ring order, skipping candidates on stale-view or other errors,
// returning EIO only once every candidate has failed.
func (g *Gateway) ReadCopyFromCluster(hdr cmn.RequestHeader, placement *ring.Placement) (cmn.ResponseHeader, []byte, error) {
	for _, v := range placement.Vnodes() {
		n := v.Node()
		var (
			resp cmn.ResponseHeader
			body []byte
			err  error
		)
		if n.Equal(g.Self) {
			resp, body, err = g.Local.ExecLocal(hdr, nil)
		} else {
			resp, body, err = g.Peers.Exec(n, hdr.Epoch, hdr, nil)
		}
		if err != nil {
			continue
		}
		if resp.Result == cmn.ResOldNodeVer || resp.Result == cmn.ResNewNodeVer {
			continue
		}
		if resp.Result != cmn.ResSuccess {
			continue
		}
		return resp, body, nil
	}
	return cmn.ResponseHeader{Result: cmn.ResEIO}, nil, nil
}
