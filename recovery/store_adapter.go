package recovery

import (
	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/objcache"
	"github.com/ovisfs/sheep/store"
)

// StoreAdapter wires store.Driver and the object-list cache into the
// narrow LocalStore contract recovery depends on.
type StoreAdapter struct {
	Driver store.Driver
	Cache  *objcache.Cache
}

func NewStoreAdapter(driver store.Driver, cache *objcache.Cache) *StoreAdapter {
	return &StoreAdapter{Driver: driver, Cache: cache}
}

// HasLocal reports whether oid already exists locally at epoch, by opening
// <obj>/<epoch>/<oid> through the store driver. The object-list cache is
// not consulted: it lists OIDs present under any epoch directory.
func (a *StoreAdapter) HasLocal(oid cmn.OID, epoch cmn.Epoch) bool {
	iocb := &store.IOCB{Epoch: epoch}
	if err := a.Driver.Open(oid, iocb, false); err != nil {
		return false
	}
	a.Driver.Close(oid, iocb)
	return true
}

// LinkLocal hard-links the object from tgtEpoch into epoch, then records
// it in the object-list cache.
func (a *StoreAdapter) LinkLocal(oid cmn.OID, epoch, tgtEpoch cmn.Epoch) error {
	err := a.Driver.Link(oid, &store.IOCB{Epoch: epoch}, tgtEpoch)
	if err != nil {
		return err
	}
	return a.Cache.Insert(oid)
}

// PutLocal atomic_puts body into epoch's directory, then records oid in
// the object-list cache.
func (a *StoreAdapter) PutLocal(oid cmn.OID, epoch cmn.Epoch, body []byte) error {
	err := a.Driver.AtomicPut(oid, &store.IOCB{Epoch: epoch, Buf: body, Length: int64(len(body))})
	if err != nil {
		return err
	}
	return a.Cache.Insert(oid)
}
