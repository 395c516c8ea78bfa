// Package objcache backs the sorted-OID-set contract of spec.md §4.6: a
// per-node index of locally-present object IDs, warmed from the store
// driver's get_objlist at startup and kept current as objects are written
// and recovered.
package objcache

import (
	"fmt"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/ovisfs/sheep/cmn"
)

// keyWidth is wide enough for any uint64 OID in hex, zero-padded so
// buntdb's lexicographic ascending order matches numeric OID order.
const keyWidth = 16

// Cache is a sorted OID index backed by an embedded ordered KV store.
// A sync.RWMutex guards the bulk warm-up path: buntdb transactions alone
// don't give "insert is best-effort, duplicates silently dropped"
// without an extra existence check per insert, which the warm-up path
// wants to avoid doing one-by-one under a write transaction per key.
type Cache struct {
	mu sync.RWMutex
	db *buntdb.DB
}

// Open creates (or reopens) the cache at path. An empty path uses an
// in-memory store, useful for tests and for nodes whose config opts out of
// persisting the index across restarts.
func Open(path string) (*Cache, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func key(oid cmn.OID) string {
	return fmt.Sprintf("%0*x", keyWidth, uint64(oid))
}

// Insert best-effort adds oid to the index; re-inserting an OID already
// present is a silent no-op, matching the set semantics of spec.md §4.6.
func (c *Cache) Insert(oid cmn.OID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key(oid), "1", nil)
		return err
	})
}

// Remove drops oid from the index. Removing an absent OID is a no-op.
func (c *Cache) Remove(oid cmn.OID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key(oid))
		return err
	})
	if err == buntdb.ErrNotFound {
		return nil
	}
	return err
}

// Has reports whether oid is currently indexed.
func (c *Cache) Has(oid cmn.OID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	found := false
	c.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(key(oid))
		found = err == nil
		return nil
	})
	return found
}

// WarmUp bulk-loads oids (typically the result of store.GetObjList at
// startup) into the index, silently skipping ones already present.
func (c *Cache) WarmUp(oids []cmn.OID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *buntdb.Tx) error {
		for _, oid := range oids {
			if _, _, err := tx.Set(key(oid), "1", nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetObjList returns every indexed OID in ascending numeric order, the
// GET_OBJ_LIST enumeration contract of spec.md §4.6.
func (c *Cache) GetObjList() ([]cmn.OID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []cmn.OID
	err := c.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("*", func(k, _ string) bool {
			var v uint64
			if _, err := fmt.Sscanf(k, "%x", &v); err == nil {
				out = append(out, cmn.OID(v))
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len reports the number of indexed objects.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	c.db.View(func(tx *buntdb.Tx) error {
		var err error
		n, err = tx.Len()
		return err
	})
	return n
}
