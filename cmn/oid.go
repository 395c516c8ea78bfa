package cmn

// OID is the 64-bit opaque object identifier described in spec.md §3. The
// upper bits carve out the object's class; the rest is either a VDI ID
// (vid) plus an index, or an opaque value for plain data objects.
type OID uint64

// Classification bits. Mirrors the original sheepdog layout closely enough
// to preserve the documented classification predicates: a VDI inode object
// sets only the VDI bit, a VDI attribute object additionally sets the attr
// bit, and a VM-state object sets its own bit. Anything left over is a data
// object.
const (
	vdiBit     OID = 1 << 63
	vdiAttrBit OID = 1 << 62
	vmstateBit OID = 1 << 61

	// VDISpaceShift is the number of low bits reserved for the per-VDI
	// object index (data object ordinal within its VDI).
	VDISpaceShift = 32
)

// Fixed object sizes per class (spec.md §3). SDDataObjSize is the dominant
// size and the one prealloc exists to serve.
const (
	SDInodeSize   = 16 << 20 // fixed-size VDI inode metadata object
	SDAttrObjSize = 512 << 10
	SDDataObjSize = 4 << 20
)

// IsVdiObj reports whether oid identifies a VDI inode object.
func IsVdiObj(oid OID) bool {
	return oid&vdiBit != 0 && oid&vdiAttrBit == 0 && oid&vmstateBit == 0
}

// IsVdiAttrObj reports whether oid identifies a VDI attribute object.
func IsVdiAttrObj(oid OID) bool {
	return oid&vdiAttrBit != 0
}

// IsVmstateObj reports whether oid identifies a VM-state object.
func IsVmstateObj(oid OID) bool {
	return oid&vmstateBit != 0
}

// IsDataObj reports whether oid identifies a plain data object: none of the
// VDI/attr/vmstate classification bits are set.
func IsDataObj(oid OID) bool {
	return !IsVdiObj(oid) && !IsVdiAttrObj(oid) && !IsVmstateObj(oid)
}

// SizeOf returns the fixed on-disk size for oid's class.
func SizeOf(oid OID) int64 {
	switch {
	case IsVdiObj(oid):
		return SDInodeSize
	case IsVdiAttrObj(oid):
		return SDAttrObjSize
	default:
		return SDDataObjSize
	}
}

// VID returns the VDI ID carved out of a data or attribute OID's upper bits.
func (oid OID) VID() uint32 {
	return uint32((oid &^ (vdiBit | vdiAttrBit | vmstateBit)) >> VDISpaceShift)
}
