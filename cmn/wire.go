package cmn

import "time"

// OpCode is one of the request opcodes this core consumes (spec.md §6). The
// wire framing itself is out of scope; this is only the semantic shape a
// transport implementation marshals.
type OpCode uint32

const (
	OpRead OpCode = iota
	OpWrite
	OpCreateAndWrite
	OpRemoveObj
	OpGetObjList
	OpGetEpoch
	OpTrace
	OpTraceCat
)

// ReqFlag is a bitmask of request flags (spec.md §6).
type ReqFlag uint32

const (
	FlagCmdWrite ReqFlag = 1 << iota
	FlagCmdCow
	FlagCmdIOLocal  // disables further forwarding
	FlagCmdRecovery // read for recovery; target epoch from TgtEpoch
	FlagCmdCache    // use object cache even if bypass would apply
)

func (f ReqFlag) Has(bit ReqFlag) bool { return f&bit != 0 }

// RequestHeader is the semantic request header of spec.md §6.
type RequestHeader struct {
	Opcode           OpCode
	Epoch            Epoch
	Flags            ReqFlag
	Oid              OID
	CowOid           OID
	DataLength       uint32
	Offset           uint64
	Copies           uint8
	TgtEpoch         Epoch
	NrZones          int  // number of distinct zones visible to the requester
	CheckConsistency bool // triggers fix_object_consistency on first read
}

// ResponseHeader is the semantic response header of spec.md §6.
type ResponseHeader struct {
	Result     ResultCode
	DataLength uint32
	Copies     uint8
}

// TraceEntry re-exports xlog's trace record shape for TRACE_CAT responses
// without importing xlog into cmn's dependents unnecessarily; callers that
// need the ring itself use xlog.TraceRing directly.
type TraceEntry struct {
	Type       string
	Depth      int
	Fname      string
	EntryTime  time.Time
	ReturnTime time.Time
}
