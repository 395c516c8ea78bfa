package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovisfs/sheep/cmn"
)

func TestLedgerMultipleFlushesPersistDistinctBatches(t *testing.T) {
	dir := t.TempDir()
	ledger, err := OpenLedger(dir)
	require.NoError(t, err)

	// Two full batches: each RecordLost call past cacheFlushSize triggers a
	// flush, so this exercises flushLocked twice. Before the batch-ID fix,
	// both batches landed under the same derived ID and the first one was
	// silently overwritten.
	for i := 0; i < 2*cacheFlushSize; i++ {
		ledger.RecordLost(cmn.OID(i), cmn.Epoch(1), "exhausted retries")
	}

	all, err := ledger.All()
	require.NoError(t, err)
	require.Len(t, all, 2*cacheFlushSize)
}

func TestLedgerAllIncludesUnflushedCache(t *testing.T) {
	dir := t.TempDir()
	ledger, err := OpenLedger(dir)
	require.NoError(t, err)

	ledger.RecordLost(cmn.OID(1), cmn.Epoch(1), "not enough replicas")

	all, err := ledger.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, cmn.OID(1), all[0].Oid)
}
