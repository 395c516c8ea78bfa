// Package store implements the pluggable store-driver capability set of
// spec.md §4.1 and the "simple" file-per-object backend.
package store

import (
	"os"

	"github.com/ovisfs/sheep/cmn"
)

// IOCB carries the per-call I/O context every Driver method operates on
// (spec.md §4.1).
type IOCB struct {
	Epoch  cmn.Epoch
	FD     *os.File
	Buf    []byte
	Length int64
	Offset int64

	// COW marks a create as copy-on-write (initializing from CowOid);
	// prealloc is skipped for COW creates per spec.md §4.1.
	COW bool
	// DirectIO requests O_DIRECT for data objects, when the cluster opts
	// into it.
	DirectIO bool
}

// Driver is the capability set a store backend implements (spec.md §4.1).
// Not every backend implements BeginRecover/EndRecover; Simple's are no-ops.
type Driver interface {
	Init(path string) error
	Open(oid cmn.OID, iocb *IOCB, create bool) error
	Read(oid cmn.OID, iocb *IOCB) error
	Write(oid cmn.OID, iocb *IOCB) error
	Close(oid cmn.OID, iocb *IOCB) error
	Link(oid cmn.OID, iocb *IOCB, tgtEpoch cmn.Epoch) error
	AtomicPut(oid cmn.OID, iocb *IOCB) error
	GetObjList(epoch cmn.Epoch, currentOnly bool) ([]cmn.OID, error)
	Format(uptoEpoch cmn.Epoch) error
	BeginRecover(epoch cmn.Epoch) error
	EndRecover(epoch cmn.Epoch) error
}
