package sysconfig

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/xjournal"
)

// StoreNameLen is STORE_LEN from spec.md §3: the fixed width of the
// store-driver name field in the on-disk config record.
const StoreNameLen = 16

const (
	offCtime     = 0
	offFlags     = 8
	offCopies    = 10
	offStoreName = 11
	recordSize   = offStoreName + StoreNameLen
)

// Record is the in-memory view of the on-disk config record
// {ctime:8, flags:2, copies:1, store_name:STORE_LEN}.
type Record struct {
	Ctime     uint64
	Flags     uint16
	Copies    uint8
	StoreName string
}

// Store is the durable config record at <base>/config, with all mutations
// journal-protected and a cached in-memory copy for hot-path reads (spec.md
// §4.4).
type Store struct {
	path    string
	jrnlDir string

	mu     sync.RWMutex
	cached Record
}

// Open opens (creating if necessary) the config record at path, priming the
// in-memory cache from disk.
func Open(path, jrnlDir string, initial Record) (*Store, error) {
	s := &Store{path: path, jrnlDir: jrnlDir}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeWhole(path, initial); err != nil {
			return nil, err
		}
	}
	rec, err := readWhole(path)
	if err != nil {
		return nil, err
	}
	s.cached = rec
	return s, nil
}

// Get returns the cached config record. Never touches disk.
func (s *Store) Get() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached
}

// SetCopies journals and persists a new `copies` value, then refreshes the
// cache.
func (s *Store) SetCopies(copies uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := []byte{copies}
	h, err := xjournal.Begin(buf, offCopies, s.path, s.jrnlDir)
	if err != nil {
		return cmn.ResSystemError
	}
	if err := writeAt(s.path, offCopies, buf); err != nil {
		return cmn.ResEIO
	}
	if err := xjournal.End(h); err != nil {
		return err
	}
	s.cached.Copies = copies
	return nil
}

// SetFlags journals and persists a new `flags` value, then refreshes the
// cache.
func (s *Store) SetFlags(flags uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, flags)
	h, err := xjournal.Begin(buf, offFlags, s.path, s.jrnlDir)
	if err != nil {
		return cmn.ResSystemError
	}
	if err := writeAt(s.path, offFlags, buf); err != nil {
		return cmn.ResEIO
	}
	if err := xjournal.End(h); err != nil {
		return err
	}
	s.cached.Flags = flags
	return nil
}

// SetStoreName journals and persists a new fixed-width store-driver name,
// then refreshes the cache. Called by `format` to re-record the driver name
// after wiping epoch dirs (spec.md §3's Lifecycle line).
func (s *Store) SetStoreName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, StoreNameLen)
	copy(buf, name)
	h, err := xjournal.Begin(buf, offStoreName, s.path, s.jrnlDir)
	if err != nil {
		return cmn.ResSystemError
	}
	if err := writeAt(s.path, offStoreName, buf); err != nil {
		return cmn.ResEIO
	}
	if err := xjournal.End(h); err != nil {
		return err
	}
	s.cached.StoreName = name
	return nil
}

func writeWhole(path string, rec Record) error {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[offCtime:], rec.Ctime)
	binary.LittleEndian.PutUint16(buf[offFlags:], rec.Flags)
	buf[offCopies] = rec.Copies
	copy(buf[offStoreName:offStoreName+StoreNameLen], rec.StoreName)
	return os.WriteFile(path, buf, 0o644)
}

func readWhole(path string) (Record, error) {
	buf := make([]byte, recordSize)
	f, err := os.Open(path)
	if err != nil {
		return Record{}, cmn.ResEIO
	}
	defer f.Close()
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Record{}, cmn.ResEIO
	}
	name := buf[offStoreName : offStoreName+StoreNameLen]
	nul := len(name)
	for i, b := range name {
		if b == 0 {
			nul = i
			break
		}
	}
	return Record{
		Ctime:     binary.LittleEndian.Uint64(buf[offCtime:]),
		Flags:     binary.LittleEndian.Uint16(buf[offFlags:]),
		Copies:    buf[offCopies],
		StoreName: string(name[:nul]),
	}, nil
}

func writeAt(path string, offset int64, buf []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteAt(buf, offset); err != nil {
		return err
	}
	return f.Sync()
}
