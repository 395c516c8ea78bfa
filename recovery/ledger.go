package recovery

import (
	"fmt"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/sdomino/scribble"
	"github.com/teris-io/shortid"
	"go.uber.org/atomic"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/xlog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const lostObjectsCollection = "lost_objects"

// lostRecord is what gets persisted per lost OID: purely additive
// bookkeeping so an operator can inspect what recovery gave up on without
// grepping logs. It never feeds back into recovery's control flow.
type lostRecord struct {
	Oid    cmn.OID
	Epoch  cmn.Epoch
	Reason string
}

// Ledger records OIDs recoverObject gave up on: no replica slot for this
// node, or every replica-slot attempt failed. Modeled directly
// on the teacher's downloader job database: an in-memory cache flushed to
// a scribble-backed embedded JSON store once it grows past a threshold,
// rather than a write-through on every record (recovery misses should be
// rare; a write-through would be needless disk I/O on the hot path).
type Ledger struct {
	mu     sync.Mutex
	driver *scribble.Driver
	cache  []lostRecord
	// seq backstops batch ID generation if shortid's global generator
	// ever fails; Inc is lock-free so it costs nothing on the common path.
	seq atomic.Uint64
}

const cacheFlushSize = 100

// OpenLedger opens (or creates) the ledger database rooted at dir.
func OpenLedger(dir string) (*Ledger, error) {
	driver, err := scribble.New(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Ledger{driver: driver}, nil
}

// RecordLost appends a lost-object entry, flushing to disk once the cache
// grows past cacheFlushSize. A nil Ledger records nothing.
func (l *Ledger) RecordLost(oid cmn.OID, epoch cmn.Epoch, reason string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = append(l.cache, lostRecord{Oid: oid, Epoch: epoch, Reason: reason})
	if len(l.cache) < cacheFlushSize {
		return
	}
	l.flushLocked()
}

// Flush forces any cached entries to disk.
func (l *Ledger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

func (l *Ledger) flushLocked() {
	if len(l.cache) == 0 {
		return
	}
	id, err := shortid.Generate()
	if err != nil {
		id = fmt.Sprintf("batch-%d", l.seq.Inc())
	}
	if err := l.driver.Write(lostObjectsCollection, id, l.cache); err != nil {
		xlog.Errorf("recovery: failed to persist lost-object ledger batch: %v", err)
		return
	}
	l.cache = l.cache[:0]
}

// All returns every persisted lost-object record plus anything still
// cached in memory, for operator inspection.
func (l *Ledger) All() ([]lostRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.driver.ReadAll(lostObjectsCollection)
	if err != nil {
		if os.IsNotExist(err) {
			return append([]lostRecord(nil), l.cache...), nil
		}
		return nil, err
	}

	var out []lostRecord
	for _, r := range raw {
		var batch []lostRecord
		if err := json.Unmarshal([]byte(r), &batch); err != nil {
			xlog.Warningf("recovery: skipping unparseable ledger batch: %v", err)
			continue
		}
		out = append(out, batch...)
	}
	out = append(out, l.cache...)
	return out, nil
}
