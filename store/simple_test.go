package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovisfs/sheep/cmn"
)

func dataOid(vid uint32) cmn.OID {
	return cmn.OID(uint64(vid) << cmn.VDISpaceShift)
}

func TestOpenCreateWriteReadRoundtrip(t *testing.T) {
	s := NewSimple(t.TempDir())
	oid := dataOid(1)

	iocb := &IOCB{Epoch: 1, Buf: []byte("hello object"), Length: int64(len("hello object")), COW: true}
	require.NoError(t, s.Open(oid, iocb, true))
	require.NoError(t, s.Write(oid, iocb))
	require.NoError(t, s.Close(oid, iocb))

	readBuf := make([]byte, len("hello object"))
	riocb := &IOCB{Epoch: 1, Buf: readBuf, Length: int64(len(readBuf))}
	require.NoError(t, s.Open(oid, riocb, false))
	require.NoError(t, s.Read(oid, riocb))
	require.NoError(t, s.Close(oid, riocb))
	require.Equal(t, "hello object", string(readBuf[:riocb.Length]))
}

func TestOpenMissingReturnsNoObj(t *testing.T) {
	s := NewSimple(t.TempDir())
	iocb := &IOCB{Epoch: 1}
	err := s.Open(dataOid(9), iocb, false)
	require.Equal(t, cmn.ResNoObj, err)
}

func TestAtomicPutLeavesNoTmpFile(t *testing.T) {
	root := t.TempDir()
	s := NewSimple(root)
	oid := dataOid(2)
	payload := []byte("atomic-body")
	require.NoError(t, s.AtomicPut(oid, &IOCB{Epoch: 1, Buf: payload, Length: int64(len(payload))}))

	final := s.objPath(1, oid)
	_, err := os.Stat(final)
	require.NoError(t, err)
	_, err = os.Stat(final + tmpSuffix)
	require.True(t, os.IsNotExist(err))

	got, err := os.ReadFile(final)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLinkHardlinksFromTargetEpoch(t *testing.T) {
	s := NewSimple(t.TempDir())
	oid := dataOid(3)
	payload := []byte("link-body")
	require.NoError(t, s.AtomicPut(oid, &IOCB{Epoch: 5, Buf: payload, Length: int64(len(payload))}))

	err := s.Link(oid, &IOCB{Epoch: 6}, 5)
	require.NoError(t, err)

	got, err := os.ReadFile(s.objPath(6, oid))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLinkMissingSourceReturnsNoObj(t *testing.T) {
	s := NewSimple(t.TempDir())
	err := s.Link(dataOid(4), &IOCB{Epoch: 2}, 1)
	require.Equal(t, cmn.ResNoObj, err)
}

func TestGetObjListSkipsTmpAndUnparseable(t *testing.T) {
	root := t.TempDir()
	s := NewSimple(root)
	oid := dataOid(7)
	require.NoError(t, s.AtomicPut(oid, &IOCB{Epoch: 1, Buf: []byte("x"), Length: 1}))

	epochDir := s.epochDir(1)
	require.NoError(t, os.WriteFile(filepath.Join(epochDir, "not-a-tmp.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(epochDir, "zzz"), []byte("x"), 0o644))

	list, err := s.GetObjList(1, true)
	require.NoError(t, err)
	require.Equal(t, []cmn.OID{oid}, list)
}

func TestFormatRemovesEpochsUpToAndIncluding(t *testing.T) {
	root := t.TempDir()
	s := NewSimple(root)
	require.NoError(t, s.AtomicPut(dataOid(1), &IOCB{Epoch: 1, Buf: []byte("a"), Length: 1}))
	require.NoError(t, s.AtomicPut(dataOid(2), &IOCB{Epoch: 2, Buf: []byte("b"), Length: 1}))
	require.NoError(t, s.AtomicPut(dataOid(3), &IOCB{Epoch: 3, Buf: []byte("c"), Length: 1}))

	require.NoError(t, s.Format(2))

	_, err := os.Stat(s.epochDir(1))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.epochDir(2))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.epochDir(3))
	require.NoError(t, err)
}

func TestPreallocFallsBackToZeroWrite(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "prealloc")
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, preallocByZeroWrite(f, 4096))
	info, err := f.Stat()
	require.NoError(t, err)
	require.GreaterOrEqual(t, info.Size(), int64(4096-sectorSize))
}
