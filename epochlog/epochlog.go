// Package epochlog implements the append-only per-epoch membership log of
// spec.md §4.4: one file per epoch holding the ordered node list followed
// by a timestamp, written with O_DSYNC semantics so a crash never leaves a
// torn record.
package epochlog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/xlog"
)

const nodeRecordSize = 128 // addr (NUL-padded, up to 108 bytes) + port + node_idx + zone (4 bytes each), zero-padded to fixed width

// Log reads and writes epoch records under a single epoch directory.
type Log struct {
	dir string
	// fetchRemote, when set, is consulted by ReadRemote when the local
	// file is missing: it queries peers for their copy of the epoch.
	fetchRemote func(epoch cmn.Epoch) ([]byte, bool)
}

func New(dir string) *Log {
	return &Log{dir: dir}
}

// SetRemoteFetcher installs the callback ReadRemote uses to ask peers for
// an epoch this node doesn't have locally.
func (l *Log) SetRemoteFetcher(f func(epoch cmn.Epoch) ([]byte, bool)) {
	l.fetchRemote = f
}

func (l *Log) pathFor(epoch cmn.Epoch) string {
	return filepath.Join(l.dir, fmt.Sprintf("%08d", uint32(epoch)))
}

// Update atomically records the current node list followed by a timestamp
// to <epoch_path>/<E:08d>: the record is written to a .tmp sibling opened
// with syncFlag, then renamed into place.
func (l *Log) Update(epoch cmn.Epoch, nodes []cmn.Node, timestamp int64) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return cmn.ResSystemError
	}
	buf := encodeEpoch(nodes, timestamp)
	path := l.pathFor(epoch)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|syncFlag(), 0o644)
	if err != nil {
		return cmn.ResEIO
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return cmn.ResEIO
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return cmn.ResEIO
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cmn.ResEIO
	}
	return nil
}

// Read returns the raw bytes recorded for epoch; callers divide the node
// portion's length by nodeRecordSize for the node count (spec.md §4.4).
func (l *Log) Read(epoch cmn.Epoch) ([]byte, error) {
	buf, err := os.ReadFile(l.pathFor(epoch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cmn.ResNoObj
		}
		return nil, cmn.ResEIO
	}
	return buf, nil
}

// ReadRemote behaves like Read but, when the local file is missing, queries
// every other node (via the installed fetchRemote callback) in turn until
// one returns it. Returns an empty slice (not an error) if no peer has the
// epoch either, per spec.md §8's boundary behavior.
func (l *Log) ReadRemote(epoch cmn.Epoch) []byte {
	if buf, err := l.Read(epoch); err == nil {
		return buf
	}
	if l.fetchRemote == nil {
		return nil
	}
	if buf, ok := l.fetchRemote(epoch); ok {
		return buf
	}
	return nil
}

// Latest scans the epoch directory and returns the maximum
// decimal-parseable filename. Per spec.md §4.4 this aborts on a directory
// read failure: an unreadable epoch directory with no known cause is an
// invariant violation, not a recoverable error.
func (l *Log) Latest() cmn.Epoch {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		xlog.Fatalf("epochlog: cannot read epoch directory %s: %v", l.dir, err)
	}
	var max cmn.Epoch
	found := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		if ep := cmn.Epoch(n); !found || ep > max {
			max, found = ep, true
		}
	}
	return max
}

// NodeCount derives the number of nodes recorded in buf (as returned by
// Read/ReadRemote).
func NodeCount(buf []byte) int {
	if len(buf) < 8 {
		return 0
	}
	return (len(buf) - 8) / nodeRecordSize
}

func encodeEpoch(nodes []cmn.Node, timestamp int64) []byte {
	buf := make([]byte, len(nodes)*nodeRecordSize+8)
	for i, n := range nodes {
		off := i * nodeRecordSize
		addr := []byte(n.Addr)
		if len(addr) > 108 {
			addr = addr[:108]
		}
		copy(buf[off:off+108], addr)
		binary.LittleEndian.PutUint32(buf[off+108:off+112], uint32(n.Port))
		binary.LittleEndian.PutUint32(buf[off+112:off+116], uint32(n.NodeIdx))
		binary.LittleEndian.PutUint32(buf[off+116:off+120], n.Zone)
	}
	binary.LittleEndian.PutUint64(buf[len(buf)-8:], uint64(timestamp))
	return buf
}

// DecodeEpoch is the inverse of encodeEpoch, exported for tests and for
// recovery's epoch-walk which needs the actual node list, not just the
// count.
func DecodeEpoch(buf []byte) (nodes []cmn.Node, timestamp int64, err error) {
	if len(buf) < 8 {
		return nil, 0, fmt.Errorf("truncated epoch record")
	}
	n := (len(buf) - 8) / nodeRecordSize
	nodes = make([]cmn.Node, 0, n)
	for i := 0; i < n; i++ {
		off := i * nodeRecordSize
		addrRaw := buf[off : off+108]
		nul := len(addrRaw)
		for j, b := range addrRaw {
			if b == 0 {
				nul = j
				break
			}
		}
		nodes = append(nodes, cmn.Node{
			Addr:    string(addrRaw[:nul]),
			Port:    int(binary.LittleEndian.Uint32(buf[off+108 : off+112])),
			NodeIdx: int(binary.LittleEndian.Uint32(buf[off+112 : off+116])),
			Zone:    binary.LittleEndian.Uint32(buf[off+116 : off+120]),
		})
	}
	timestamp = int64(binary.LittleEndian.Uint64(buf[len(buf)-8:]))
	return nodes, timestamp, nil
}
