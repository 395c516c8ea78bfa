package recovery

import (
	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/epochlog"
	"github.com/ovisfs/sheep/ring"
)

// EpochSource implements Source against the local epoch log, falling back
// to a peer when the epoch isn't recorded locally (get_vnodes_from_epoch).
type EpochSource struct {
	Log *epochlog.Log
}

func NewEpochSource(log *epochlog.Log) *EpochSource {
	return &EpochSource{Log: log}
}

func (s *EpochSource) VnodesAtEpoch(epoch cmn.Epoch) (*ring.Placement, []cmn.Node, error) {
	buf := s.Log.ReadRemote(epoch)
	if buf == nil {
		return nil, nil, cmn.ResNoObj
	}
	nodes, _, err := epochlog.DecodeEpoch(buf)
	if err != nil {
		return nil, nil, err
	}
	return ring.New(nodes), nodes, nil
}
