package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/peer"
)

type fakeLocal struct {
	resp cmn.ResponseHeader
	body []byte
	err  error
}

func (f *fakeLocal) ExecLocal(req cmn.RequestHeader, body []byte) (cmn.ResponseHeader, []byte, error) {
	return f.resp, f.body, f.err
}

type fakeConn struct {
	resp  cmn.ResponseHeader
	err   error
	delay time.Duration
}

func (f *fakeConn) Exec(req cmn.RequestHeader, body []byte) (cmn.ResponseHeader, []byte, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return cmn.ResponseHeader{Result: cmn.ResNetworkError}, nil, f.err
	}
	return f.resp, body, nil
}
func (f *fakeConn) Close() {}

func n(i int, zone uint32) cmn.Node {
	return cmn.Node{Addr: "10.0.0.1", Port: 7000 + i, NodeIdx: i, Zone: zone}
}

func TestForwardReadServesLocallyWhenSelfIsReplica(t *testing.T) {
	self := n(0, 1)
	local := &fakeLocal{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}, body: []byte("local-body")}
	g := New(self, local, peer.NewPool(time.Second))

	replicas := []cmn.Node{self, n(1, 2)}
	hdr := cmn.RequestHeader{Copies: 2, NrZones: 2}
	resp, body, err := g.ForwardRead(hdr, replicas, 2)
	require.NoError(t, err)
	require.Equal(t, cmn.ResSuccess, resp.Result)
	require.Equal(t, "local-body", string(body))
}

func TestForwardReadDispatchesToReplicaZeroWhenNotLocal(t *testing.T) {
	self := n(0, 1)
	other := n(1, 2)
	local := &fakeLocal{}
	pool := peer.NewPool(time.Second)
	pool.Set(other, 1, &fakeConn{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}})
	g := New(self, local, pool)

	replicas := []cmn.Node{other, n(2, 3)}
	hdr := cmn.RequestHeader{Epoch: 1, Copies: 2, NrZones: 2}
	resp, _, err := g.ForwardRead(hdr, replicas, 2)
	require.NoError(t, err)
	require.Equal(t, cmn.ResSuccess, resp.Result)
}

func TestForwardWriteAllSucceed(t *testing.T) {
	self := n(0, 1)
	r1, r2 := n(1, 2), n(2, 3)
	local := &fakeLocal{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}}
	pool := peer.NewPool(time.Second)
	pool.Set(r1, 1, &fakeConn{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}})
	pool.Set(r2, 1, &fakeConn{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}})
	g := New(self, local, pool)

	hdr := cmn.RequestHeader{Epoch: 1, Copies: 3, NrZones: 3}
	resp, err := g.ForwardWrite(hdr, []byte("body"), []cmn.Node{self, r1, r2}, 3)
	require.NoError(t, err)
	require.Equal(t, cmn.ResSuccess, resp.Result)
}

func TestForwardWriteSurfacesFirstNonSuccess(t *testing.T) {
	self := n(0, 1)
	r1, r2 := n(1, 2), n(2, 3)
	local := &fakeLocal{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}}
	pool := peer.NewPool(time.Second)
	pool.Set(r1, 1, &fakeConn{resp: cmn.ResponseHeader{Result: cmn.ResEIO}})
	pool.Set(r2, 1, &fakeConn{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}})
	g := New(self, local, pool)

	hdr := cmn.RequestHeader{Epoch: 1, Copies: 3, NrZones: 3}
	resp, err := g.ForwardWrite(hdr, []byte("body"), []cmn.Node{self, r1, r2}, 3)
	require.NoError(t, err)
	require.Equal(t, cmn.ResEIO, resp.Result)
}

func TestForwardWriteTimesOutAndEvictsAll(t *testing.T) {
	self := n(0, 1)
	r1 := n(1, 2)
	local := &fakeLocal{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}}
	pool := peer.NewPool(time.Second)
	pool.Set(r1, 1, &fakeConn{resp: cmn.ResponseHeader{Result: cmn.ResSuccess}, delay: 200 * time.Millisecond})
	g := New(self, local, pool)
	g.Timeout = 10 * time.Millisecond

	hdr := cmn.RequestHeader{Epoch: 1, Copies: 2, NrZones: 2}
	resp, err := g.ForwardWrite(hdr, []byte("body"), []cmn.Node{self, r1}, 2)
	require.NoError(t, err)
	require.Equal(t, cmn.ResNetworkError, resp.Result)
	require.Equal(t, 0, pool.Len())
}

func TestForwardWriteLocalFailureShortCircuits(t *testing.T) {
	self := n(0, 1)
	local := &fakeLocal{resp: cmn.ResponseHeader{Result: cmn.ResNoObj}}
	g := New(self, local, peer.NewPool(time.Second))

	hdr := cmn.RequestHeader{Epoch: 1, Copies: 1, NrZones: 1}
	resp, err := g.ForwardWrite(hdr, []byte("body"), []cmn.Node{self}, 1)
	require.NoError(t, err)
	require.Equal(t, cmn.ResNoObj, resp.Result)
}
