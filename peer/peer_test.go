package peer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ovisfs/sheep/cmn"
)

type fakeConn struct {
	closed bool
	err    error
}

func (f *fakeConn) Exec(req cmn.RequestHeader, body []byte) (cmn.ResponseHeader, []byte, error) {
	if f.err != nil {
		return cmn.ResponseHeader{Result: cmn.ResNetworkError}, nil, f.err
	}
	return cmn.ResponseHeader{Result: cmn.ResSuccess}, body, nil
}

func (f *fakeConn) Close() { f.closed = true }

func node() cmn.Node { return cmn.Node{Addr: "10.0.0.1", Port: 7000, NodeIdx: 0, Zone: 1} }

func TestGetCachesByKey(t *testing.T) {
	p := NewPool(time.Second)
	c1 := p.Get(node(), 1)
	c2 := p.Get(node(), 1)
	require.Same(t, c1, c2)
	require.Equal(t, 1, p.Len())
}

func TestEpochIsPartOfKey(t *testing.T) {
	p := NewPool(time.Second)
	c1 := p.Get(node(), 1)
	c2 := p.Get(node(), 2)
	require.NotSame(t, c1, c2)
	require.Equal(t, 2, p.Len())
}

func TestExecEvictsOnTransportFailure(t *testing.T) {
	p := NewPool(time.Second)
	fake := &fakeConn{err: errors.New("boom")}
	p.Set(node(), 1, fake)

	_, _, err := p.Exec(node(), 1, cmn.RequestHeader{}, nil)
	require.Error(t, err)
	require.True(t, fake.closed)
	require.Equal(t, 0, p.Len())
}

func TestEvictRemovesEntry(t *testing.T) {
	p := NewPool(time.Second)
	p.Get(node(), 1)
	require.Equal(t, 1, p.Len())
	p.Evict(node(), 1)
	require.Equal(t, 0, p.Len())
}
