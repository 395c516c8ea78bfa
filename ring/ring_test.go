package ring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovisfs/sheep/cmn"
)

func fiveNodes() []cmn.Node {
	return []cmn.Node{
		{Addr: "10.0.0.1", Port: 7000, NodeIdx: 0, Zone: 1},
		{Addr: "10.0.0.2", Port: 7000, NodeIdx: 1, Zone: 2},
		{Addr: "10.0.0.3", Port: 7000, NodeIdx: 2, Zone: 3},
		{Addr: "10.0.0.4", Port: 7000, NodeIdx: 3, Zone: 4},
		{Addr: "10.0.0.5", Port: 7000, NodeIdx: 4, Zone: 5},
	}
}

func TestObjToSheepDeterministicAndDistinct(t *testing.T) {
	p := New(fiveNodes())
	oid := cmn.OID(0xdeadbeef)

	first := p.Replicas(oid, 3)
	second := p.Replicas(oid, 3)
	require.Equal(t, first, second)

	seen := map[cmn.Node]bool{}
	for _, n := range first {
		require.False(t, seen[n], "replica nodes must be distinct")
		seen[n] = true
	}
}

func TestObjToSheepBeyondClusterSizeFails(t *testing.T) {
	p := New(fiveNodes())
	_, ok := p.ObjToSheep(cmn.OID(1), 5)
	require.False(t, ok)
}

func TestFindTgtNodeLocalRecoveryCommonCase(t *testing.T) {
	nodes := fiveNodes()
	cur := []cmn.Node{nodes[0], nodes[1]}
	old := []cmn.Node{nodes[0], nodes[2]}

	idx := FindTgtNode(cur, old, 0)
	require.Equal(t, 0, idx)
	require.True(t, old[idx].Equal(nodes[0]))
}

func TestFindTgtNodeInjectiveWhenOldCopiesSufficient(t *testing.T) {
	nodes := fiveNodes()
	cur := []cmn.Node{nodes[0], nodes[1], nodes[2]}
	old := []cmn.Node{nodes[3], nodes[1], nodes[4]}

	seen := map[int]bool{}
	for copyIdx := 0; copyIdx < len(cur); copyIdx++ {
		j := FindTgtNode(cur, old, copyIdx)
		require.False(t, seen[j], "find_tgt_node must be injective: copyIdx=%d reused old idx %d", copyIdx, j)
		seen[j] = true
	}
}

func TestObjCmpOrdersByFnvNotNumericValue(t *testing.T) {
	a, b := cmn.OID(1), cmn.OID(2)
	cmp := ObjCmp(a, b)
	// Whichever direction it goes, it must be consistent with the raw
	// FNV hashes, not simply a < b.
	ha, hb := FnvHash(a), FnvHash(b)
	if ha < hb {
		require.Equal(t, -1, cmp)
	} else if ha > hb {
		require.Equal(t, 1, cmp)
	} else {
		require.Equal(t, 0, cmp)
	}
}
