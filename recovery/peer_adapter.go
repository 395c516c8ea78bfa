package recovery

import (
	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/peer"
)

// PeerAdapter wires peer.Pool into the ObjLister and RemoteFetcher
// contracts recovery depends on.
type PeerAdapter struct {
	Pool *peer.Pool
}

func NewPeerAdapter(pool *peer.Pool) *PeerAdapter {
	return &PeerAdapter{Pool: pool}
}

func (a *PeerAdapter) RequestObjList(node cmn.Node, epoch cmn.Epoch) ([]cmn.OID, error) {
	req := cmn.RequestHeader{Opcode: cmn.OpGetObjList, Epoch: epoch}
	resp, body, err := a.Pool.Exec(node, epoch, req, nil)
	if err != nil {
		return nil, err
	}
	if resp.Result != cmn.ResSuccess {
		return nil, resp.Result
	}
	return decodeOidList(body), nil
}

func (a *PeerAdapter) FetchRemote(node cmn.Node, oid cmn.OID, tgtEpoch cmn.Epoch) ([]byte, cmn.ResultCode, error) {
	req := cmn.RequestHeader{
		Opcode:   cmn.OpRead,
		Epoch:    tgtEpoch,
		TgtEpoch: tgtEpoch,
		Oid:      oid,
		Flags:    cmn.FlagCmdRecovery | cmn.FlagCmdIOLocal,
	}
	resp, body, err := a.Pool.Exec(node, tgtEpoch, req, nil)
	if err != nil {
		return nil, cmn.ResNetworkError, err
	}
	return body, resp.Result, nil
}

func decodeOidList(body []byte) []cmn.OID {
	const width = 8
	out := make([]cmn.OID, 0, len(body)/width)
	for i := 0; i+width <= len(body); i += width {
		var v uint64
		for j := 0; j < width; j++ {
			v = v<<8 | uint64(body[i+j])
		}
		out = append(out, cmn.OID(v))
	}
	return out
}
