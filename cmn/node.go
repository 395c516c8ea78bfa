package cmn

import "fmt"

// Node is a sheep process, identified by its address/port (spec.md §3).
// Zone is a fault-domain tag used to cap the effective replication factor.
type Node struct {
	Addr    string
	Port    int
	NodeIdx int
	Zone    uint32
}

// Equal reports whether two nodes are the same sheep process: equality is
// by addr+port only, per spec.md §3.
func (n Node) Equal(o Node) bool {
	return n.Addr == o.Addr && n.Port == o.Port
}

func (n Node) String() string {
	return fmt.Sprintf("%s:%d", n.Addr, n.Port)
}

// VNode is one point on the 64-bit consistent-hash ring attributed to a
// node.
type VNode struct {
	Addr      string
	Port      int
	NodeIdx   int
	HashPoint uint64
}

func (v VNode) Node() Node {
	return Node{Addr: v.Addr, Port: v.Port, NodeIdx: v.NodeIdx}
}

// Epoch is the monotonically increasing membership-snapshot counter.
type Epoch uint32

// EpochRecord is the membership snapshot recorded for one epoch: an ordered
// node list and the time it was opened.
type EpochRecord struct {
	Epoch     Epoch
	Nodes     []Node
	Timestamp int64 // unix seconds
}

// DistinctZones returns the number of distinct zones represented among
// nodes.
func DistinctZones(nodes []Node) int {
	seen := make(map[uint32]struct{}, len(nodes))
	for _, n := range nodes {
		seen[n.Zone] = struct{}{}
	}
	return len(seen)
}

// MinCopies clamps configuredCopies to nrZones: the effective replication
// factor never exceeds the number of distinct fault domains available
// (spec.md §3, §8 boundary behaviors).
func MinCopies(configuredCopies, nrZones int) int {
	if configuredCopies < nrZones {
		return configuredCopies
	}
	return nrZones
}
