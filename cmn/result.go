package cmn

// ResultCode is the enumerated SD_RES_* domain error set (spec.md §6/§7).
// It implements error so it can be returned, compared with errors.Is, and
// wrapped with github.com/pkg/errors when a low-level cause needs to be
// attached.
type ResultCode int

const (
	ResSuccess ResultCode = iota
	ResNoObj
	ResEIO
	ResNoMem
	ResNetworkError
	ResOldNodeVer
	ResNewNodeVer
	ResSystemError
	ResUnknown
)

var resultNames = map[ResultCode]string{
	ResSuccess:      "SUCCESS",
	ResNoObj:        "NO_OBJ",
	ResEIO:          "EIO",
	ResNoMem:        "NO_MEM",
	ResNetworkError: "NETWORK_ERROR",
	ResOldNodeVer:   "OLD_NODE_VER",
	ResNewNodeVer:   "NEW_NODE_VER",
	ResSystemError:  "SYSTEM_ERROR",
	ResUnknown:      "UNKNOWN",
}

func (r ResultCode) Error() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "UNKNOWN"
}

// OK reports whether r is ResSuccess.
func (r ResultCode) OK() bool { return r == ResSuccess }

// IsStaleView reports whether r indicates the caller's membership view is
// stale and should be retried after re-fetching the node list (spec.md §7).
func (r ResultCode) IsStaleView() bool {
	return r == ResOldNodeVer || r == ResNewNodeVer
}

// IsTransient reports whether r is a transport-layer failure that should be
// retried against a different peer rather than surfaced as fatal.
func (r ResultCode) IsTransient() bool {
	return r == ResNetworkError
}
