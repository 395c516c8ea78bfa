package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/karrick/godirwalk"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/xlog"
)

const tmpSuffix = ".tmp"

// Simple is the file-per-object backend of spec.md §4.1: objects live at
// <obj_root>/<epoch:08d>/<oid:016x>, with epoch directories created lazily.
type Simple struct {
	root string

	mu      sync.Mutex
	dirsMkd map[cmn.Epoch]bool
}

func NewSimple(root string) *Simple {
	return &Simple{root: root, dirsMkd: map[cmn.Epoch]bool{}}
}

func (s *Simple) Init(path string) error {
	s.root = path
	return os.MkdirAll(path, 0o755)
}

func (s *Simple) epochDir(epoch cmn.Epoch) string {
	return filepath.Join(s.root, fmt.Sprintf("%08d", uint32(epoch)))
}

func (s *Simple) objPath(epoch cmn.Epoch, oid cmn.OID) string {
	return filepath.Join(s.epochDir(epoch), fmt.Sprintf("%016x", uint64(oid)))
}

func (s *Simple) ensureEpochDir(epoch cmn.Epoch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirsMkd[epoch] {
		return nil
	}
	if err := os.MkdirAll(s.epochDir(epoch), 0o755); err != nil {
		return err
	}
	s.dirsMkd[epoch] = true
	return nil
}

// Open opens the file at <obj>/<epoch>/<oid>, per spec.md §4.1: O_SYNC|
// O_RDWR (os.O_SYNC standing in for O_DSYNC), plus O_DIRECT for data
// objects when requested, plus O_CREAT|O_TRUNC when creating. Non-COW
// creates are preallocated.
func (s *Simple) Open(oid cmn.OID, iocb *IOCB, create bool) error {
	if err := s.ensureEpochDir(iocb.Epoch); err != nil {
		return cmn.ResEIO
	}
	path := s.objPath(iocb.Epoch, oid)

	useDirect := iocb.DirectIO && cmn.IsDataObj(oid)
	flags := os.O_RDWR | os.O_SYNC
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}

	var (
		f   *os.File
		err error
	)
	if useDirect {
		f, err = openDirect(path, flags, 0o644)
	} else {
		f, err = os.OpenFile(path, flags, 0o644)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return cmn.ResNoObj
		}
		return cmn.ResEIO
	}
	iocb.FD = f

	if create && !iocb.COW {
		if err := prealloc(f, cmn.SizeOf(oid)); err != nil {
			f.Close()
			return cmn.ResEIO
		}
	}
	return nil
}

func (s *Simple) Read(oid cmn.OID, iocb *IOCB) error {
	if iocb.FD == nil {
		return cmn.ResSystemError
	}
	n, err := iocb.FD.ReadAt(iocb.Buf[:iocb.Length], iocb.Offset)
	if err != nil && n == 0 {
		return cmn.ResEIO
	}
	iocb.Length = int64(n)
	return nil
}

func (s *Simple) Write(oid cmn.OID, iocb *IOCB) error {
	if iocb.FD == nil {
		return cmn.ResSystemError
	}
	if _, err := iocb.FD.WriteAt(iocb.Buf[:iocb.Length], iocb.Offset); err != nil {
		return cmn.ResEIO
	}
	return nil
}

func (s *Simple) Close(oid cmn.OID, iocb *IOCB) error {
	if iocb.FD == nil {
		return nil
	}
	err := iocb.FD.Close()
	iocb.FD = nil
	if err != nil {
		return cmn.ResEIO
	}
	return nil
}

// Link hard-links <obj>/<tgt_epoch>/<oid> into <obj>/<iocb.Epoch>/<oid>: the
// fast path used by recovery when the source replica already exists
// locally (spec.md §4.1, §4.5).
func (s *Simple) Link(oid cmn.OID, iocb *IOCB, tgtEpoch cmn.Epoch) error {
	if err := s.ensureEpochDir(iocb.Epoch); err != nil {
		return cmn.ResEIO
	}
	src := s.objPath(tgtEpoch, oid)
	dst := s.objPath(iocb.Epoch, oid)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return cmn.ResNoObj
	}
	if err := os.Link(src, dst); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return cmn.ResEIO
	}
	return nil
}

// AtomicPut writes the full object body via a <oid>.tmp sibling, then
// renames it into place (spec.md §4.1; used by remote recovery's slow
// path).
func (s *Simple) AtomicPut(oid cmn.OID, iocb *IOCB) error {
	if err := s.ensureEpochDir(iocb.Epoch); err != nil {
		return cmn.ResEIO
	}
	final := s.objPath(iocb.Epoch, oid)
	tmp := final + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return cmn.ResEIO
	}
	if _, err := f.Write(iocb.Buf[:iocb.Length]); err != nil {
		f.Close()
		os.Remove(tmp)
		return cmn.ResEIO
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return cmn.ResEIO
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return cmn.ResEIO
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return cmn.ResEIO
	}
	return nil
}

// GetObjList enumerates OIDs across all on-disk epoch directories, or only
// the current one when currentOnly is set (used by init_objlist_cache).
// Entries ".", "..", zero-parse names, and .tmp siblings are skipped.
func (s *Simple) GetObjList(epoch cmn.Epoch, currentOnly bool) ([]cmn.OID, error) {
	var dirs []string
	if currentOnly {
		dirs = []string{s.epochDir(epoch)}
	} else {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, cmn.ResEIO
		}
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(s.root, e.Name()))
			}
		}
	}

	var out []cmn.OID
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := godirwalk.Walk(dir, &godirwalk.Options{
			Unsorted: true,
			Callback: func(path string, de *godirwalk.Dirent) error {
				if de.IsDir() {
					return nil
				}
				name := filepath.Base(path)
				if name == "." || name == ".." || strings.HasSuffix(name, tmpSuffix) {
					return nil
				}
				v, err := strconv.ParseUint(name, 16, 64)
				if err != nil {
					return nil
				}
				out = append(out, cmn.OID(v))
				return nil
			},
		})
		if err != nil {
			return nil, cmn.ResEIO
		}
	}
	return out, nil
}

// Format wipes all epoch directories <= uptoEpoch under the object root.
// Re-recording the store-driver name is the config store's job, not this
// driver's.
func (s *Simple) Format(uptoEpoch cmn.Epoch) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cmn.ResEIO
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		if cmn.Epoch(n) > uptoEpoch {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return cmn.ResEIO
		}
	}
	s.mu.Lock()
	s.dirsMkd = map[cmn.Epoch]bool{}
	s.mu.Unlock()
	xlog.Infof("store: formatted epoch dirs <= %d under %s", uptoEpoch, s.root)
	return nil
}

func (s *Simple) BeginRecover(epoch cmn.Epoch) error { return nil }
func (s *Simple) EndRecover(epoch cmn.Epoch) error   { return nil }

var _ Driver = (*Simple)(nil)
