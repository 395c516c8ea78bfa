// Package xjournal implements the write-ahead journal contract of
// spec.md §4.2: a record is written and fsynced before the caller mutates
// its target file, and removed once the mutation completes. On crash,
// Recover replays surviving records so the target file ends up in either
// its pre- or post-mutation state, never a mix.
package xjournal

import (
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/xlog"
)

const recordExt = ".jrnl"
const magic = uint32(0x53484a31) // "SHJ1"

// Handle identifies a single in-flight journal record.
type Handle struct {
	dir        string
	recordPath string
	TargetPath string
	Offset     int64
	Payload    []byte
}

// Begin writes {targetPath, offset, payload} under jrnlDir, fsynced, before
// the caller is allowed to mutate targetPath.
func Begin(payload []byte, offset int64, targetPath, jrnlDir string) (*Handle, error) {
	if err := os.MkdirAll(jrnlDir, 0o755); err != nil {
		return nil, cmn.ResSystemError
	}
	id := uuid.New().String()
	recordPath := filepath.Join(jrnlDir, id+recordExt)

	buf := encodeRecord(targetPath, offset, payload)
	f, err := os.OpenFile(recordPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, cmn.ResEIO
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return nil, cmn.ResEIO
	}
	if err := f.Sync(); err != nil {
		return nil, cmn.ResEIO
	}
	return &Handle{dir: jrnlDir, recordPath: recordPath, TargetPath: targetPath, Offset: offset, Payload: payload}, nil
}

// End removes h's journal record once the guarded mutation has completed.
func End(h *Handle) error {
	if h == nil {
		return nil
	}
	if err := os.Remove(h.recordPath); err != nil && !os.IsNotExist(err) {
		return cmn.ResEIO
	}
	return nil
}

// Recover replays every surviving record under jrnlDir: each payload is
// re-written to its target path at its recorded offset, then the record is
// removed. Safe to call on a directory with no records. A file lock guards
// against two processes replaying the same directory concurrently.
func Recover(jrnlDir string) (int, error) {
	if _, err := os.Stat(jrnlDir); os.IsNotExist(err) {
		return 0, nil
	}
	lock := flock.New(filepath.Join(jrnlDir, ".replay.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return 0, cmn.ResSystemError
	}
	if !locked {
		return 0, fmt.Errorf("journal recovery already in progress under %s", jrnlDir)
	}
	defer lock.Unlock()

	entries, err := ioutil.ReadDir(jrnlDir)
	if err != nil {
		return 0, cmn.ResEIO
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		recordPath := filepath.Join(jrnlDir, e.Name())
		if err := replay(recordPath); err != nil {
			xlog.Errorf("journal: failed to replay %s: %v", recordPath, err)
			continue
		}
		n++
	}
	return n, nil
}

func replay(recordPath string) error {
	raw, err := ioutil.ReadFile(recordPath)
	if err != nil {
		return err
	}
	targetPath, offset, payload, err := decodeRecord(raw)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(payload, offset); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Remove(recordPath)
}

func encodeRecord(targetPath string, offset int64, payload []byte) []byte {
	tp := []byte(targetPath)
	buf := make([]byte, 0, 4+4+len(tp)+8+4+len(payload))
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, magic)
	buf = append(buf, hdr...)

	tplen := make([]byte, 4)
	binary.BigEndian.PutUint32(tplen, uint32(len(tp)))
	buf = append(buf, tplen...)
	buf = append(buf, tp...)

	off := make([]byte, 8)
	binary.BigEndian.PutUint64(off, uint64(offset))
	buf = append(buf, off...)

	plen := make([]byte, 4)
	binary.BigEndian.PutUint32(plen, uint32(len(payload)))
	buf = append(buf, plen...)
	buf = append(buf, payload...)
	return buf
}

func decodeRecord(buf []byte) (targetPath string, offset int64, payload []byte, err error) {
	if len(buf) < 8 {
		return "", 0, nil, fmt.Errorf("truncated journal record")
	}
	if binary.BigEndian.Uint32(buf[0:4]) != magic {
		return "", 0, nil, fmt.Errorf("bad journal record magic")
	}
	pos := 4
	tplen := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	if len(buf) < pos+tplen+8+4 {
		return "", 0, nil, fmt.Errorf("truncated journal record")
	}
	targetPath = string(buf[pos : pos+tplen])
	pos += tplen
	offset = int64(binary.BigEndian.Uint64(buf[pos : pos+8]))
	pos += 8
	plen := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	if len(buf) < pos+plen {
		return "", 0, nil, fmt.Errorf("truncated journal record payload")
	}
	payload = append([]byte(nil), buf[pos:pos+plen]...)
	return targetPath, offset, payload, nil
}
